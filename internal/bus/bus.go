// Package bus implements the Message Bus of spec §4.2: a named-worker
// registry that routes a request to exactly one handler and awaits its
// reply. Unlike a pub/sub bus, sends are request/reply and are never
// serialized across workers — concurrency across workers is the caller's
// choice, not the bus's.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// Handler processes one (worker, action) request. req.Snapshot carries the
// Session snapshot attached by Send. The handler's error is never propagated to the
// caller's goroutine as a panic or an unwrapped error — Send converts it into
// a Reply with Success=false.
type Handler func(ctx context.Context, req Request) (Reply, error)

// Request is the payload passed to a Handler, plus the session snapshot
// the spec requires every message to carry ("attaches the current session
// snapshot to each message").
type Request struct {
	Action   string
	Payload  any
	Snapshot *types.Session
}

// Reply is what Send returns. Success=false replies never come back as a Go
// error from Send; the caller inspects Reply.Success and Reply.Error.
type Reply struct {
	Success bool
	Data    any
	Error   string
}

type key struct {
	worker string
	action string
}

// Bus is a registry of (worker, action) -> Handler.
type Bus struct {
	mu       sync.RWMutex
	handlers map[key]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[key]Handler)}
}

// Register installs the handler for (worker, action). Registering the same
// (worker, action) pair twice replaces the previous handler — the spec
// guarantees exactly one handler per pair, registration order decides which
// wins.
func (b *Bus) Register(worker, action string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key{worker, action}] = handler
}

// Send invokes the registered handler for (worker, action), attaching
// snapshot to the request. A missing handler, a returned error, or a handler
// panic are all captured here and converted to a Reply{Success: false}
// rather than surfaced as a Go error — this is the bus boundary spec §4.2
// and §7 describe ("captures any raised failure as a structured reply").
func (b *Bus) Send(ctx context.Context, worker, action string, payload any, snapshot *types.Session) (reply Reply) {
	b.mu.RLock()
	handler, ok := b.handlers[key{worker, action}]
	b.mu.RUnlock()

	if !ok {
		return Reply{Success: false, Error: fmt.Sprintf("no handler registered for %s.%s", worker, action)}
	}

	defer func() {
		if r := recover(); r != nil {
			reply = Reply{Success: false, Error: fmt.Sprintf("%s.%s panicked: %v", worker, action, r)}
		}
	}()

	req := Request{Action: action, Payload: payload, Snapshot: snapshot}
	result, err := handler(ctx, req)
	if err != nil {
		werr := &types.WorkerError{Worker: worker, Action: action, Cause: err}
		return Reply{Success: false, Error: werr.Error()}
	}
	if !result.Success && result.Error == "" {
		result.Error = fmt.Sprintf("%s.%s reported failure with no error detail", worker, action)
	}
	return result
}
