package session

import (
	"sync"
	"time"
)

// Metrics tracks one conversation turn: the span from the first
// captured audio sent after the previous turn until the model finishes
// responding.
type Metrics struct {
	// TurnStartTime is when the current turn began.
	TurnStartTime time.Time

	// FirstAudioTime is when the first synthesized chunk arrived.
	FirstAudioTime time.Time

	// FirstAudioLatency is the wait from turn start to first audio.
	FirstAudioLatency time.Duration

	// AudioChunksIn counts synthesized chunks received this turn.
	AudioChunksIn int

	// AudioChunksOut counts captured frames sent this turn.
	AudioChunksOut int

	// ToolCalls counts tool invocations this turn.
	ToolCalls int

	// Interrupted records whether the turn ended in barge-in.
	Interrupted bool
}

// Collector accumulates turn metrics. It is goroutine-safe and may be
// updated from the capture pump and the dispatch path concurrently.
type Collector struct {
	mu      sync.Mutex
	current Metrics

	turns      int64
	interrupts int64

	onUpdate func(Metrics)
}

// NewCollector creates an empty metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// OnUpdate sets a callback that fires when a turn completes.
func (c *Collector) OnUpdate(fn func(Metrics)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// IncrementAudioOut counts one captured frame sent upstream.
// The first frame of a fresh turn marks the turn start.
func (c *Collector) IncrementAudioOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.TurnStartTime.IsZero() {
		c.current.TurnStartTime = time.Now()
	}
	c.current.AudioChunksOut++
}

// IncrementAudioIn counts one synthesized chunk and stamps first audio.
func (c *Collector) IncrementAudioIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.AudioChunksIn++
	if c.current.FirstAudioTime.IsZero() {
		c.current.FirstAudioTime = time.Now()
		if !c.current.TurnStartTime.IsZero() {
			c.current.FirstAudioLatency = c.current.FirstAudioTime.Sub(c.current.TurnStartTime)
		}
	}
}

// IncrementToolCall counts one tool invocation.
func (c *Collector) IncrementToolCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.ToolCalls++
}

// MarkInterrupted records barge-in on the current turn.
func (c *Collector) MarkInterrupted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Interrupted = true
	c.interrupts++
}

// MarkTurnComplete finalizes the current turn and resets for the next.
func (c *Collector) MarkTurnComplete() {
	c.mu.Lock()
	done := c.current
	c.current = Metrics{}
	c.turns++
	cb := c.onUpdate
	c.mu.Unlock()

	if cb != nil {
		cb(done)
	}
}

// Current returns a snapshot of the in-progress turn.
func (c *Collector) Current() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Turns returns the number of completed turns.
func (c *Collector) Turns() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns
}

// Interrupts returns the number of barge-ins observed.
func (c *Collector) Interrupts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}
