package ai

// Mode is a coordinator policy knob. It adjusts the active-agent
// cap, debug capture, and whether the ad-hoc task queue runs on
// worker goroutines.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeDebug
	ModePerformance
	ModeLearning
	ModeMinimal
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDebug:
		return "debug"
	case ModePerformance:
		return "performance"
	case ModeLearning:
		return "learning"
	case ModeMinimal:
		return "minimal"
	default:
		return "unknown"
	}
}

// policy is what a mode concretely means.
type policy struct {
	maxActiveAgents int
	debugCapture    bool
	useWorkers      bool
}

func policyFor(m Mode, baseCap int) policy {
	switch m {
	case ModeDebug:
		return policy{maxActiveAgents: baseCap, debugCapture: true, useWorkers: true}
	case ModePerformance:
		return policy{maxActiveAgents: baseCap * 2, debugCapture: false, useWorkers: true}
	case ModeLearning:
		return policy{maxActiveAgents: baseCap, debugCapture: true, useWorkers: true}
	case ModeMinimal:
		return policy{maxActiveAgents: baseCap / 4, debugCapture: false, useWorkers: false}
	default:
		return policy{maxActiveAgents: baseCap, debugCapture: false, useWorkers: true}
	}
}
