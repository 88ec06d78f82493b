package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/studiokit/voicelive/pkg/pcm"
)

// ErrStopped is returned when enqueueing after Stop.
var ErrStopped = errors.New("playback: scheduler stopped")

// item is one decoded chunk on the timeline, from scheduling until its
// playback completes or an interruption kills it.
type item struct {
	id       uint64
	startAt  time.Duration
	duration time.Duration
	data     []byte

	startTimer Timer
	doneTimer  Timer
}

// Scheduler lays received audio chunks onto a single gapless timeline.
//
// It keeps a monotonically increasing watermark marking the next free
// playback start. Each chunk starts at max(now, watermark): if earlier
// chunks are still playing or queued the new one begins exactly where
// they end, and after an idle gap playback resumes immediately instead
// of skipping ahead.
//
// All mutation of the watermark and the active set goes through one
// mutex, shared by the enqueue path and the interrupt path, so a chunk
// scheduled concurrently with an interruption can never survive it.
type Scheduler struct {
	clock  Clock
	sink   Sink
	logger *slog.Logger

	sampleRate int
	channels   int

	mu        sync.Mutex
	watermark time.Duration
	active    map[uint64]*item
	nextID    uint64
	stopped   bool

	// OnPlaybackStart fires when the active set becomes non-empty.
	OnPlaybackStart func()

	// OnPlaybackEnd fires when the active set becomes empty, either by
	// completion or interruption. Used for turn-taking/UI signaling.
	OnPlaybackEnd func()
}

// NewScheduler creates a scheduler for PCM16 audio at the given rate.
func NewScheduler(sink Sink, clock Clock, sampleRate, channels int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = NewRealClock()
	}

	return &Scheduler{
		clock:      clock,
		sink:       sink,
		logger:     logger.With("component", "playback"),
		sampleRate: sampleRate,
		channels:   channels,
		active:     make(map[uint64]*item),
	}
}

// Enqueue schedules a received PCM16 chunk onto the timeline.
//
// A malformed chunk is dropped: it does not advance or corrupt the
// watermark and does not affect other scheduled chunks. The error is
// returned for logging only.
func (s *Scheduler) Enqueue(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(data)%2 != 0 {
		s.logger.Warn("dropping malformed audio chunk", "bytes", len(data))
		return pcm.ErrTruncated
	}

	d := pcm.Duration(len(data), s.sampleRate, s.channels)

	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}

	now := s.clock.Now()
	startAt := s.watermark
	if now > startAt {
		startAt = now
	}

	s.nextID++
	it := &item{
		id:       s.nextID,
		startAt:  startAt,
		duration: d,
		data:     data,
	}

	wasQuiet := len(s.active) == 0
	s.active[it.id] = it
	s.watermark = startAt + d

	it.startTimer = s.clock.AfterFunc(startAt-now, func() { s.deliver(it.id) })
	it.doneTimer = s.clock.AfterFunc(startAt-now+d, func() { s.complete(it.id) })

	cb := s.OnPlaybackStart
	s.mu.Unlock()

	if wasQuiet && cb != nil {
		cb()
	}

	return nil
}

// deliver hands a chunk to the sink at its scheduled start time.
// Runs under the scheduler mutex so an interruption either removes the
// item before delivery or flushes the sink after it; in both orders the
// audio is gone.
func (s *Scheduler) deliver(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.active[id]
	if !ok {
		return
	}

	if err := s.sink.Write(it.data); err != nil {
		s.logger.Warn("sink write failed", "error", err)
	}
	it.data = nil
}

// complete removes a finished chunk from the active set.
func (s *Scheduler) complete(id uint64) {
	s.mu.Lock()

	if _, ok := s.active[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	quiet := len(s.active) == 0
	cb := s.OnPlaybackEnd
	s.mu.Unlock()

	if quiet && cb != nil {
		cb()
	}
}

// Interrupt stops every playing and pending chunk, clears the active
// set, and resets the watermark to the current clock reading. Atomic
// with respect to concurrent Enqueue calls.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()

	wasActive := len(s.active) > 0
	for _, it := range s.active {
		it.startTimer.Stop()
		it.doneTimer.Stop()
	}
	s.active = make(map[uint64]*item)
	s.watermark = s.clock.Now()

	if err := s.sink.Clear(); err != nil {
		s.logger.Warn("sink clear failed", "error", err)
	}

	cb := s.OnPlaybackEnd
	s.mu.Unlock()

	if wasActive {
		s.logger.Debug("playback interrupted")
		if cb != nil {
			cb()
		}
	}
}

// Stop interrupts playback and rejects further chunks.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, it := range s.active {
		it.startTimer.Stop()
		it.doneTimer.Stop()
	}
	s.active = make(map[uint64]*item)
	s.watermark = s.clock.Now()
	_ = s.sink.Clear()
	s.mu.Unlock()
}

// Active returns the number of chunks playing or pending.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Speaking reports whether any audio is playing or pending.
func (s *Scheduler) Speaking() bool {
	return s.Active() > 0
}

// Watermark returns the next free playback start time.
func (s *Scheduler) Watermark() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}
