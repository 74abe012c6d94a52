package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// scriptedReader plays back a sequence of read errors, then succeeds
// forever.
type scriptedReader struct {
	mu       sync.Mutex
	readErrs []error
	reads    int
	reopens  int
	interval time.Duration
	closed   bool
}

func (r *scriptedReader) Read(dst *gocv.Mat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if len(r.readErrs) > 0 {
		err := r.readErrs[0]
		r.readErrs = r.readErrs[1:]
		return err
	}
	return nil
}

func (r *scriptedReader) Reopen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reopens++
	return nil
}

func (r *scriptedReader) FrameInterval() time.Duration { return r.interval }

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *scriptedReader) stats() (reads, reopens int, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads, r.reopens, r.closed
}

// sleepRecorder captures requested sleep durations without sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
}

func (s *sleepRecorder) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

func TestLoopReopensAfterReadFailure(t *testing.T) {
	src := &scriptedReader{readErrs: []error{ErrNoFrame}}
	buf := NewBuffer()
	rec := &sleepRecorder{}

	loop := NewLoop(src, buf, zerolog.Nop())
	loop.sleep = rec.sleep
	loop.Start()

	// The failed read triggers a backoff and a reopen, and the loop
	// keeps acquiring afterwards.
	require.Eventually(t, func() bool {
		reads, reopens, _ := src.stats()
		return reopens == 1 && reads >= 3
	}, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		f, ok := buf.Read()
		if ok {
			f.Close()
		}
		return ok
	}, 2*time.Second, time.Millisecond)

	loop.Stop()

	assert.Contains(t, rec.durations(), reconnectDelay)
	_, _, closed := src.stats()
	assert.True(t, closed)
}

func TestLoopPacesFileSources(t *testing.T) {
	src := &scriptedReader{interval: 50 * time.Millisecond}
	buf := NewBuffer()
	rec := &sleepRecorder{}

	loop := NewLoop(src, buf, zerolog.Nop())
	loop.sleep = rec.sleep
	loop.Start()

	require.Eventually(t, func() bool {
		reads, _, _ := src.stats()
		return reads >= 3
	}, 2*time.Second, time.Millisecond)

	loop.Stop()

	// Every paced frame sleeps out the remainder of the nominal
	// interval.
	durations := rec.durations()
	require.NotEmpty(t, durations)
	for _, d := range durations {
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}

func TestLoopLiveSourceNeverPaced(t *testing.T) {
	src := &scriptedReader{}
	buf := NewBuffer()
	rec := &sleepRecorder{}

	loop := NewLoop(src, buf, zerolog.Nop())
	loop.sleep = rec.sleep
	loop.Start()

	require.Eventually(t, func() bool {
		reads, _, _ := src.stats()
		return reads >= 5
	}, 2*time.Second, time.Millisecond)

	loop.Stop()

	assert.Empty(t, rec.durations())
}

func TestLoopStopIdempotent(t *testing.T) {
	src := &scriptedReader{}
	loop := NewLoop(src, NewBuffer(), zerolog.Nop())
	loop.Start()

	loop.Stop()
	loop.Stop()

	_, _, closed := src.stats()
	assert.True(t, closed)
}
