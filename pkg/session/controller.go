package session

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/studiokit/voicelive/pkg/audioio"
	"github.com/studiokit/voicelive/pkg/pcm"
	"github.com/studiokit/voicelive/pkg/playback"
	"github.com/studiokit/voicelive/pkg/vision"
)

// State is the lifecycle phase of a session.
type State string

const (
	// StateDisconnected means no session is active.
	StateDisconnected State = "disconnected"

	// StateConnecting means a connect attempt is in flight.
	StateConnecting State = "connecting"

	// StateConnected means the session is live and streaming.
	StateConnected State = "connected"
)

// DialFunc establishes a transport. The production implementation wraps
// Connect; tests substitute their own.
type DialFunc func(ctx context.Context, cfg Config, setup *SetupPayload, d *Dispatcher, onClosed func(error)) (Transport, error)

// Controller ties the capture source, the playback scheduler, the tool
// broker, and the transport into one full-duplex session. It owns the
// session lifecycle: Disconnected -> Connecting -> Connected and back.
//
// All exported methods are safe for concurrent use. Callbacks fire on
// internal goroutines and must not block.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	source    audioio.Source
	scheduler *playback.Scheduler
	camera    vision.Snapshotter

	dial    DialFunc
	metrics *Collector

	mu        sync.Mutex
	state     State
	transport Transport
	broker    *Broker
	sessionID string
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	snapMu       sync.Mutex
	lastSnapshot []byte

	volume atomic.Uint64

	// OnStateChange fires on every lifecycle transition.
	OnStateChange func(State)

	// OnSessionDropped fires when a live session fails mid-stream. By
	// the time it fires the session has been torn down and the
	// controller is Disconnected; the handler may reconnect.
	OnSessionDropped func(error)

	// OnText receives incremental model text when the endpoint sends it.
	OnText func(string)

	// OnSnapshot fires with each context snapshot streamed upstream,
	// so a UI can mirror what the session sees.
	OnSnapshot func(data []byte, mimeType string)

	// OnTurn fires with the completed turn's metrics.
	OnTurn func(Metrics)
}

// NewController creates a controller. The camera may be nil; video is
// then unavailable regardless of what Connect requests.
func NewController(cfg Config, source audioio.Source, scheduler *playback.Scheduler, camera vision.Snapshotter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:       cfg,
		logger:    logger.With("component", "session"),
		source:    source,
		scheduler: scheduler,
		camera:    camera,
		metrics:   NewCollector(),
		state:     StateDisconnected,
	}
	c.dial = func(ctx context.Context, cfg Config, setup *SetupPayload, d *Dispatcher, onClosed func(error)) (Transport, error) {
		return Connect(ctx, cfg, setup, d, onClosed)
	}
	c.metrics.OnUpdate(func(m Metrics) {
		if cb := c.OnTurn; cb != nil {
			cb(m)
		}
	})
	return c
}

// SetDialFunc replaces the transport factory. Call before Connect.
func (c *Controller) SetDialFunc(dial DialFunc) {
	c.dial = dial
}

// Connect establishes a session advertising the given tools and starts
// the capture pump. With enableVideo set and a camera present, periodic
// context snapshots are streamed alongside audio.
//
// Returns ErrAlreadyActive if a session is connecting or connected; a
// failed attempt always leaves the controller Disconnected.
func (c *Controller) Connect(ctx context.Context, tools []Tool, enableVideo bool) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	d := NewDispatcher(c.logger)
	broker := NewBroker(c.send, c.logger)
	for _, tool := range tools {
		if tool.Handler != nil {
			broker.Register(tool.Name, tool.Handler)
		}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	d.OnAudio = func(data []byte) {
		c.metrics.IncrementAudioIn()
		if err := c.scheduler.Enqueue(data); err != nil {
			c.logger.Warn("failed to schedule audio chunk", "error", err)
		}
	}
	d.OnInterrupted = func() {
		c.logger.Debug("barge-in, flushing playback")
		c.metrics.MarkInterrupted()
		c.scheduler.Interrupt()
	}
	d.OnToolCall = func(call ToolCall) {
		c.metrics.IncrementToolCall()
		broker.HandleCall(pumpCtx, call)
	}
	d.OnToolCallCancellation = func(ids []string) {
		broker.Cancel(ids)
	}
	d.OnTurnComplete = func() {
		c.metrics.MarkTurnComplete()
	}
	d.OnText = func(text string) {
		if cb := c.OnText; cb != nil {
			cb(text)
		}
	}

	tr, err := c.dial(ctx, c.cfg, c.buildSetup(tools), d, c.handleDropped)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.notifyState(StateDisconnected)
		return err
	}

	if err := c.source.Start(pumpCtx); err != nil {
		cancel()
		_ = tr.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.notifyState(StateDisconnected)
		return err
	}
	frames := c.source.Stream()

	c.mu.Lock()
	c.transport = tr
	c.broker = broker
	c.cancel = cancel
	c.sessionID = uuid.NewString()
	c.state = StateConnected
	id := c.sessionID

	c.wg.Add(1)
	go c.capturePump(pumpCtx, frames)
	if enableVideo && c.camera != nil {
		c.wg.Add(1)
		go c.videoPump(pumpCtx)
	}
	c.mu.Unlock()

	c.logger.Info("session connected",
		"session_id", id,
		"model", c.cfg.Model,
		"video", enableVideo && c.camera != nil)
	c.notifyState(StateConnected)
	return nil
}

// Disconnect tears the session down: stops capture, closes the
// transport, flushes scheduled playback, and abandons pending tool
// calls. Safe to call at any time, from any state, any number of times.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	tr := c.transport
	broker := c.broker
	cancel := c.cancel
	id := c.sessionID
	c.transport = nil
	c.broker = nil
	c.cancel = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = c.source.Stop()
	if tr != nil {
		_ = tr.Close()
	}
	// Flush, don't stop: the scheduler survives for the next session.
	c.scheduler.Interrupt()
	if broker != nil {
		broker.Reset()
	}
	c.wg.Wait()
	c.volume.Store(0)

	c.logger.Info("session disconnected", "session_id", id)
	c.notifyState(StateDisconnected)
	return nil
}

// handleDropped runs on a transport goroutine when a live connection
// fails. The transport guarantees it never fires after Close returns.
func (c *Controller) handleDropped(err error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	// The transport has already torn itself down; closing it from
	// inside its own drop callback would deadlock against Close's
	// wait for the callback.
	c.transport = nil
	c.mu.Unlock()

	c.logger.Warn("session dropped", "error", err)
	_ = c.Disconnect()
	if cb := c.OnSessionDropped; cb != nil {
		cb(&SessionDroppedError{Err: err})
	}
}

// capturePump streams captured frames upstream until the source stops
// or the session ends. A full send queue drops the frame; capture never
// stalls on the network.
func (c *Controller) capturePump(ctx context.Context, frames <-chan audioio.Frame) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			c.volume.Store(math.Float64bits(frame.RMS()))

			// Devices that cannot open at the endpoint's input rate
			// deliver frames at their native rate; resample on the way
			// out so the wire always carries the negotiated rate.
			data := frame.Bytes()
			if frame.SampleRate != c.cfg.InputSampleRate {
				data = pcm.ResampleBytes(data, frame.SampleRate, c.cfg.InputSampleRate)
			}

			msg := &ClientMessage{
				RealtimeInput: &RealtimeInput{
					MediaChunks: []MediaBlob{{
						MimeType: c.cfg.inputMimeType(),
						Data:     pcm.ToTransportText(data),
					}},
				},
			}
			if err := c.send(msg); err != nil {
				if err == ErrSendQueueFull {
					c.logger.Debug("capture frame dropped, send queue full")
					continue
				}
				return
			}
			c.metrics.IncrementAudioOut()
		}
	}
}

// videoPump streams one context snapshot per interval. Snapshot
// failures are logged and skipped; the audio path is unaffected.
func (c *Controller) videoPump(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.VideoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, mimeType, err := c.camera.Snapshot(ctx)
			if err != nil {
				c.logger.Warn("snapshot failed", "error", err)
				continue
			}
			c.snapMu.Lock()
			c.lastSnapshot = data
			c.snapMu.Unlock()
			if cb := c.OnSnapshot; cb != nil {
				cb(data, mimeType)
			}
			if err := c.SendContextSnapshot(data, mimeType); err != nil && err != ErrSendQueueFull {
				return
			}
		}
	}
}

// SendContextSnapshot sends one image frame as session context.
func (c *Controller) SendContextSnapshot(data []byte, mimeType string) error {
	return c.send(&ClientMessage{
		RealtimeInput: &RealtimeInput{
			MediaChunks: []MediaBlob{{
				MimeType: mimeType,
				Data:     pcm.ToTransportText(data),
			}},
		},
	})
}

// SendText injects a complete user text turn into the conversation.
func (c *Controller) SendText(text string) error {
	return c.send(&ClientMessage{
		ClientContent: &ClientContent{
			Turns: []Content{{
				Role:  "user",
				Parts: []Part{{Text: text}},
			}},
			TurnComplete: true,
		},
	})
}

// send forwards a message to the live transport.
func (c *Controller) send(msg *ClientMessage) error {
	c.mu.Lock()
	tr := c.transport
	c.mu.Unlock()
	if tr == nil {
		return ErrNotConnected
	}
	return tr.Send(msg)
}

// buildSetup assembles the setup payload from config and tools.
func (c *Controller) buildSetup(tools []Tool) *SetupPayload {
	setup := &SetupPayload{
		Model: c.cfg.Model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{
				VoiceConfig: &VoiceConfig{
					PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
				},
			},
		},
	}

	if c.cfg.SystemPrompt != "" {
		setup.SystemInstruction = &Content{
			Parts: []Part{{Text: c.cfg.SystemPrompt}},
		}
	}

	if len(tools) > 0 {
		decls := make([]FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		setup.Tools = []ToolDeclaration{{FunctionDeclarations: decls}}
	}

	return setup
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a session is live.
func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected
}

// IsSpeaking reports whether synthesized audio is scheduled or playing.
func (c *Controller) IsSpeaking() bool {
	return c.scheduler.Speaking()
}

// IsListening reports whether the session is waiting on the user.
// Capture runs through playback too (that is how barge-in is heard),
// but the session counts as listening only while nothing synthesized
// is scheduled or playing.
func (c *Controller) IsListening() bool {
	return c.IsConnected() && !c.scheduler.Speaking()
}

// Volume returns the RMS level of the most recent captured frame, in
// the range [0, 1].
func (c *Controller) Volume() float64 {
	return math.Float64frombits(c.volume.Load())
}

// SessionID returns the id of the current session, or "" when
// disconnected.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return ""
	}
	return c.sessionID
}

// Snapshot returns the most recent video snapshot, or nil if none has
// been captured.
func (c *Controller) Snapshot() []byte {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	if c.lastSnapshot == nil {
		return nil
	}
	out := make([]byte, len(c.lastSnapshot))
	copy(out, c.lastSnapshot)
	return out
}

// Metrics returns the in-progress turn's metrics.
func (c *Controller) Metrics() Metrics {
	return c.metrics.Current()
}

// Turns returns the number of completed turns.
func (c *Controller) Turns() int64 {
	return c.metrics.Turns()
}

// notifyState fires the state callback outside all locks.
func (c *Controller) notifyState(s State) {
	if cb := c.OnStateChange; cb != nil {
		cb(s)
	}
}
