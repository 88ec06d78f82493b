package playback

import (
	"sort"
	"testing"
	"time"

	"github.com/studiokit/voicelive/pkg/pcm"
)

const testRate = 24000

// chunkOf returns a PCM16 mono buffer of the given duration at testRate.
func chunkOf(d time.Duration) []byte {
	samples := int(d.Seconds() * testRate)
	return make([]byte, samples*2)
}

func newTestScheduler() (*Scheduler, *MockClock, *MockSink) {
	clock := NewMockClock()
	sink := NewMockSink(nil)
	s := NewScheduler(sink, clock, testRate, 1, nil)
	return s, clock, sink
}

func (s *Scheduler) startTimes() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var starts []time.Duration
	for _, it := range s.active {
		starts = append(starts, it.startAt)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

func TestScheduler_GaplessSchedule(t *testing.T) {
	s, _, _ := newTestScheduler()

	// Clock held at t=0, three 200ms chunks arrive back to back.
	for i := 0; i < 3; i++ {
		if err := s.Enqueue(chunkOf(200 * time.Millisecond)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	want := []time.Duration{0, 200 * time.Millisecond, 400 * time.Millisecond}
	got := s.startTimes()
	if len(got) != len(want) {
		t.Fatalf("expected %d scheduled items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected start %v, got %v", i, want[i], got[i])
		}
	}

	if wm := s.Watermark(); wm != 600*time.Millisecond {
		t.Errorf("expected watermark 600ms, got %v", wm)
	}
}

func TestScheduler_WatermarkMonotonic(t *testing.T) {
	s, _, _ := newTestScheduler()

	durations := []time.Duration{
		50 * time.Millisecond,
		120 * time.Millisecond,
		30 * time.Millisecond,
		200 * time.Millisecond,
	}

	var total time.Duration
	prev := s.Watermark()
	for _, d := range durations {
		if err := s.Enqueue(chunkOf(d)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		total += d

		wm := s.Watermark()
		if wm < prev {
			t.Errorf("watermark decreased: %v -> %v", prev, wm)
		}
		prev = wm
	}

	if wm := s.Watermark(); wm != total {
		t.Errorf("expected watermark %v, got %v", total, wm)
	}

	// Items must not overlap: each next start equals previous end.
	starts := s.startTimes()
	var cursor time.Duration
	for i, d := range durations {
		if starts[i] != cursor {
			t.Errorf("chunk %d: expected start %v, got %v", i, cursor, starts[i])
		}
		cursor += d
	}
}

func TestScheduler_ResumeAfterIdleGap(t *testing.T) {
	s, clock, _ := newTestScheduler()

	if err := s.Enqueue(chunkOf(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Let playback finish and the timeline idle well past the watermark.
	clock.Advance(500 * time.Millisecond)

	if err := s.Enqueue(chunkOf(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The new chunk resumes at now, not at the stale watermark.
	starts := s.startTimes()
	if len(starts) != 1 {
		t.Fatalf("expected 1 active item, got %d", len(starts))
	}
	if starts[0] != 500*time.Millisecond {
		t.Errorf("expected start at 500ms (now), got %v", starts[0])
	}
	if wm := s.Watermark(); wm != 600*time.Millisecond {
		t.Errorf("expected watermark 600ms, got %v", wm)
	}
}

func TestScheduler_DeliveryReachesSink(t *testing.T) {
	s, clock, sink := newTestScheduler()

	data := chunkOf(50 * time.Millisecond)
	if err := s.Enqueue(data); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Start timer is due at t=0.
	clock.Advance(0)

	writes := sink.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected 1 sink write, got %d", len(writes))
	}
	if len(writes[0]) != len(data) {
		t.Errorf("expected %d bytes written, got %d", len(data), len(writes[0]))
	}
}

func TestScheduler_Interrupt(t *testing.T) {
	s, clock, sink := newTestScheduler()

	for i := 0; i < 3; i++ {
		if err := s.Enqueue(chunkOf(200 * time.Millisecond)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// Partway through the first chunk.
	clock.Advance(100 * time.Millisecond)

	s.Interrupt()

	if n := s.Active(); n != 0 {
		t.Errorf("expected empty active set after interrupt, got %d", n)
	}
	if wm := s.Watermark(); wm != 100*time.Millisecond {
		t.Errorf("expected watermark reset to now (100ms), got %v", wm)
	}
	if sink.ClearCount() != 1 {
		t.Errorf("expected 1 sink clear, got %d", sink.ClearCount())
	}

	// No previously scheduled chunk may produce audio after the interrupt.
	before := len(sink.Writes())
	clock.Advance(time.Second)
	if after := len(sink.Writes()); after != before {
		t.Errorf("interrupted chunks still produced %d writes", after-before)
	}
}

func TestScheduler_InterruptThenResume(t *testing.T) {
	s, clock, _ := newTestScheduler()

	s.Enqueue(chunkOf(200 * time.Millisecond))
	clock.Advance(50 * time.Millisecond)
	s.Interrupt()

	// New audio after barge-in starts immediately at now.
	if err := s.Enqueue(chunkOf(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	starts := s.startTimes()
	if starts[0] != 50*time.Millisecond {
		t.Errorf("expected resume at 50ms, got %v", starts[0])
	}
}

func TestScheduler_MalformedChunkDropped(t *testing.T) {
	s, _, _ := newTestScheduler()

	s.Enqueue(chunkOf(100 * time.Millisecond))
	before := s.Watermark()

	if err := s.Enqueue([]byte{0x01, 0x02, 0x03}); err != pcm.ErrTruncated {
		t.Errorf("expected ErrTruncated, got %v", err)
	}

	if wm := s.Watermark(); wm != before {
		t.Errorf("malformed chunk moved the watermark: %v -> %v", before, wm)
	}
	if n := s.Active(); n != 1 {
		t.Errorf("malformed chunk disturbed the active set: %d items", n)
	}

	// Empty chunks are ignored without error.
	if err := s.Enqueue(nil); err != nil {
		t.Errorf("empty chunk should be a no-op, got %v", err)
	}
}

func TestScheduler_PlaybackCallbacks(t *testing.T) {
	s, clock, _ := newTestScheduler()

	var started, ended int
	s.OnPlaybackStart = func() { started++ }
	s.OnPlaybackEnd = func() { ended++ }

	s.Enqueue(chunkOf(100 * time.Millisecond))
	s.Enqueue(chunkOf(100 * time.Millisecond))

	if started != 1 {
		t.Errorf("expected 1 playback start, got %d", started)
	}

	clock.Advance(150 * time.Millisecond)
	if ended != 0 {
		t.Errorf("playback end fired while audio still pending")
	}

	clock.Advance(100 * time.Millisecond)
	if ended != 1 {
		t.Errorf("expected 1 playback end, got %d", ended)
	}
	if s.Speaking() {
		t.Error("expected not speaking after all chunks complete")
	}
}

func TestScheduler_InterruptFiresPlaybackEnd(t *testing.T) {
	s, _, _ := newTestScheduler()

	var ended int
	s.OnPlaybackEnd = func() { ended++ }

	s.Enqueue(chunkOf(200 * time.Millisecond))
	s.Interrupt()

	if ended != 1 {
		t.Errorf("expected playback end on interrupt, got %d", ended)
	}

	// Interrupting an already quiet scheduler stays silent.
	s.Interrupt()
	if ended != 1 {
		t.Errorf("idle interrupt fired playback end, got %d", ended)
	}
}

func TestScheduler_StopRejectsEnqueue(t *testing.T) {
	s, _, _ := newTestScheduler()

	s.Enqueue(chunkOf(100 * time.Millisecond))
	s.Stop()
	s.Stop() // idempotent

	if err := s.Enqueue(chunkOf(100 * time.Millisecond)); err != ErrStopped {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if n := s.Active(); n != 0 {
		t.Errorf("expected empty active set after stop, got %d", n)
	}
}
