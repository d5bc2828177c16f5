package api

import (
	"sync"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/infrastructure/logging"
	"github.com/nerrad567/capture-core/internal/telemetry"
)

// Terminator implements capture.ProcessTerminator for remote requesters.
// There is no process to kill, so a terminated process loses its tokens:
// authMiddleware refuses every requester token carrying its process id.
type Terminator struct {
	mu     sync.RWMutex
	killed map[int]termination
	hub    *Hub // optional
	logger *logging.Logger
}

type termination struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// NewTerminator creates a Terminator. hub may be nil.
func NewTerminator(hub *Hub, logger *logging.Logger) *Terminator {
	return &Terminator{
		killed: make(map[int]termination),
		hub:    hub,
		logger: logger,
	}
}

// Terminate records the process as terminated, tells operators and drops
// the process's WebSocket connections.
func (t *Terminator) Terminate(processID int, reason string) {
	term := termination{Reason: reason, At: time.Now().UTC()}
	t.mu.Lock()
	t.killed[processID] = term
	t.mu.Unlock()

	t.logger.Warn("requester process terminated", "process_id", processID, "reason", reason)
	if t.hub != nil {
		t.hub.Broadcast(telemetry.ChannelRequests, telemetry.Message{
			Type: "terminated",
			Data: map[string]any{"process_id": processID, "reason": term.Reason, "at": term.At},
		})
		t.hub.DisconnectProcess(processID)
	}
}

// Terminated reports whether processID was terminated.
func (t *Terminator) Terminated(processID int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.killed[processID]
	return ok
}

var _ capture.ProcessTerminator = (*Terminator)(nil)
