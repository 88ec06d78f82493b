package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Broker matches inbound tool calls to registered handlers and sends a
// correlated response for every call, without ever blocking the inbound
// dispatch path. Multiple calls may be in flight concurrently.
//
// A call with no registered handler, or whose handler fails, still gets
// a response carrying the error: leaving the endpoint's call unresolved
// is a protocol violation risk, not something to ignore.
type Broker struct {
	logger *slog.Logger
	send   func(*ClientMessage) error

	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[string]PendingCall

	wg sync.WaitGroup
}

// NewBroker creates a broker that emits responses through send.
func NewBroker(send func(*ClientMessage) error, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger:   logger.With("component", "broker"),
		send:     send,
		handlers: make(map[string]Handler),
		pending:  make(map[string]PendingCall),
	}
}

// Register adds a handler for a tool name, replacing any previous one.
func (b *Broker) Register(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = h
}

// RegisterAll adds every handler in the map.
func (b *Broker) RegisterAll(handlers map[string]Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, h := range handlers {
		b.handlers[name] = h
	}
}

// HandleCall dispatches one inbound call onto its own goroutine and
// returns immediately. Exactly one response is sent per call id.
func (b *Broker) HandleCall(ctx context.Context, call ToolCall) {
	b.mu.Lock()
	if _, dup := b.pending[call.ID]; dup {
		b.mu.Unlock()
		b.logger.Warn("duplicate tool call ignored", "id", call.ID, "tool", call.Name)
		return
	}
	b.pending[call.ID] = PendingCall{
		ID:       call.ID,
		Name:     call.Name,
		Args:     call.Args,
		IssuedAt: time.Now(),
	}
	handler, registered := b.handlers[call.Name]
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.resolve(ctx, call, handler, registered)
	}()
}

// resolve runs the handler and sends the correlated response.
func (b *Broker) resolve(ctx context.Context, call ToolCall, handler Handler, registered bool) {
	var result string
	switch {
	case !registered:
		result = fmt.Sprintf("Error: unknown tool %q", call.Name)
		b.logger.Warn("no handler registered for tool", "tool", call.Name)
	default:
		var err error
		result, err = handler(ctx, call.Args)
		if err != nil {
			// Recovered locally: the endpoint gets the error text and
			// the session stays healthy.
			result = fmt.Sprintf("Error: %v", err)
			b.logger.Warn("tool handler failed", "tool", call.Name, "error", err)
		}
	}

	b.mu.Lock()
	if _, ok := b.pending[call.ID]; !ok {
		// Cancelled or flushed while the handler ran; the session is
		// gone, so there is nowhere to send the response.
		b.mu.Unlock()
		return
	}
	delete(b.pending, call.ID)
	b.mu.Unlock()

	msg := &ClientMessage{
		ToolResponse: &ToolResponse{
			FunctionResponses: []FunctionResponse{{
				ID:       call.ID,
				Name:     call.Name,
				Response: map[string]any{"result": result},
			}},
		},
	}

	if err := b.send(msg); err != nil {
		b.logger.Warn("failed to send tool response", "tool", call.Name, "error", err)
	}
}

// Cancel drops pending calls whose ids the server withdrew. Their
// handlers finish but no response is sent.
func (b *Broker) Cancel(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.pending, id)
	}
}

// Reset clears the pending set. Used on disconnect so no correlation
// record outlives the session.
func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = make(map[string]PendingCall)
}

// Pending returns the number of unresolved calls.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Wait blocks until all in-flight handlers have finished.
// Used by tests and by orderly shutdown.
func (b *Broker) Wait() {
	b.wg.Wait()
}
