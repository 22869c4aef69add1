package blackboard

import (
	"fmt"

	"github.com/voxelforge/mobai/internal/mathx"
)

// Kind tags the payload stored in a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindVec3
	KindQuat
	KindHandle // entity handle (opaque id)
	KindOpaque // raw bytes with a caller-supplied codec id
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindVec3:
		return "vec3"
	case KindQuat:
		return "quat"
	case KindHandle:
		return "handle"
	case KindOpaque:
		return "opaque"
	default:
		return "invalid"
	}
}

// Value is a closed tagged union over the blackboard payload types.
// Exactly one payload field is meaningful, selected by Kind.
type Value struct {
	kind    Kind
	b       bool
	i       int64
	f       float64
	s       string
	v3      mathx.Vec3
	q       mathx.Quat
	handle  uint64
	raw     []byte
	codecID uint32
}

func Bool(v bool) Value       { return Value{kind: KindBool, b: v} }
func Int(v int64) Value       { return Value{kind: KindInt, i: v} }
func Float(v float64) Value   { return Value{kind: KindFloat, f: v} }
func String(v string) Value   { return Value{kind: KindString, s: v} }
func Vec3(v mathx.Vec3) Value { return Value{kind: KindVec3, v3: v} }
func Quat(v mathx.Quat) Value { return Value{kind: KindQuat, q: v} }
func Handle(id uint64) Value  { return Value{kind: KindHandle, handle: id} }

// Opaque wraps raw bytes; codecID identifies the caller's codec.
func Opaque(codecID uint32, raw []byte) Value {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Value{kind: KindOpaque, raw: cp, codecID: codecID}
}

// Kind returns the payload tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)             { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)         { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)         { return v.s, v.kind == KindString }
func (v Value) AsVec3() (mathx.Vec3, bool)       { return v.v3, v.kind == KindVec3 }
func (v Value) AsQuat() (mathx.Quat, bool)       { return v.q, v.kind == KindQuat }
func (v Value) AsHandle() (uint64, bool)         { return v.handle, v.kind == KindHandle }
func (v Value) AsOpaque() (uint32, []byte, bool) { return v.codecID, v.raw, v.kind == KindOpaque }

// Equal reports deep equality of kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindVec3:
		return v.v3 == o.v3
	case KindQuat:
		return v.q == o.q
	case KindHandle:
		return v.handle == o.handle
	case KindOpaque:
		if v.codecID != o.codecID || len(v.raw) != len(o.raw) {
			return false
		}
		for i := range v.raw {
			if v.raw[i] != o.raw[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("bool(%v)", v.b)
	case KindInt:
		return fmt.Sprintf("int(%d)", v.i)
	case KindFloat:
		return fmt.Sprintf("float(%g)", v.f)
	case KindString:
		return fmt.Sprintf("string(%q)", v.s)
	case KindVec3:
		return fmt.Sprintf("vec3(%.2f, %.2f, %.2f)", v.v3.X, v.v3.Y, v.v3.Z)
	case KindQuat:
		return fmt.Sprintf("quat(%.2f, %.2f, %.2f, %.2f)", v.q.W, v.q.X, v.q.Y, v.q.Z)
	case KindHandle:
		return fmt.Sprintf("handle(%d)", v.handle)
	case KindOpaque:
		return fmt.Sprintf("opaque(codec=%d, %dB)", v.codecID, len(v.raw))
	default:
		return "none"
	}
}
