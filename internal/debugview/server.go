package debugview

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server streams debug frames to websocket viewers. Each viewer gets
// a buffered channel; a slow viewer drops frames instead of stalling
// the tick.
type Server struct {
	buffer   *Buffer
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[string]chan Frame
}

func NewServer(buffer *Buffer) *Server {
	return &Server{
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev tool, loopback use
		},
		viewers: make(map[string]chan Frame),
	}
}

// Broadcast fans a frame out to every connected viewer. Called by
// the coordinator after Flush. Frames that don't fit a viewer's
// buffer are dropped for that viewer.
func (s *Server) Broadcast(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.viewers {
		select {
		case ch <- f:
		default:
			slog.Debug("debug viewer lagging, frame dropped", "session", id, "tick", f.Tick)
		}
	}
}

// ViewerCount returns connected viewer sessions.
func (s *Server) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// Handler upgrades the connection and streams frames until the
// client disconnects.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := uuid.NewString()
		ch := make(chan Frame, 16)
		s.mu.Lock()
		s.viewers[sid] = ch
		s.mu.Unlock()
		slog.Info("debug viewer connected", "session", sid, "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			delete(s.viewers, sid)
			s.mu.Unlock()
			slog.Info("debug viewer disconnected", "session", sid)
		}()

		// Reader goroutine only notices disconnects.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case f := <-ch:
				b, err := json.Marshal(f)
				if err != nil {
					slog.Warn("debug frame marshal failed", "error", err)
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}
