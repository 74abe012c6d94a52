package capture

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// reconnectDelay is how long the loop waits after a read failure before
// reopening the handle.
const reconnectDelay = time.Second

// FrameReader is the capture handle as the acquisition loop sees it.
// *Source satisfies it.
type FrameReader interface {
	Read(dst *gocv.Mat) error
	Reopen() error
	FrameInterval() time.Duration
	Close() error
}

// Loop is the acquisition half of the pipeline: it owns the FrameReader
// exclusively and writes frames into the Buffer. A transient read failure
// closes and reopens the handle and keeps going; the loop never terminates
// on its own.
type Loop struct {
	src FrameReader
	buf *Buffer
	log zerolog.Logger

	// sleep is injectable so pacing is testable without wall-clock waits.
	sleep func(time.Duration)

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	seq  int64
}

func NewLoop(src FrameReader, buf *Buffer, log zerolog.Logger) *Loop {
	return &Loop{
		src:   src,
		buf:   buf,
		log:   log.With().Str("component", "acquisition").Logger(),
		sleep: time.Sleep,
		done:  make(chan struct{}),
	}
}

// Start launches the acquisition goroutine.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
	l.log.Debug().Msg("acquisition loop started")
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		default:
		}

		iterStart := time.Now()
		mat := gocv.NewMat()
		if err := l.src.Read(&mat); err != nil {
			mat.Close()
			l.log.Warn().Err(err).Msg("read failed, reopening source")
			l.sleep(reconnectDelay)
			if err := l.src.Reopen(); err != nil {
				// Stay alive: the next iteration retries the reopen path.
				l.log.Error().Err(err).Msg("reopen failed, will retry")
			}
			continue
		}

		l.seq++
		l.buf.Put(Frame{Mat: mat, Seq: l.seq, Timestamp: time.Now()})

		// Approximate real-time playback for file sources by sleeping out
		// the remainder of the nominal frame interval.
		if interval := l.src.FrameInterval(); interval > 0 {
			if rem := interval - time.Since(iterStart); rem > 0 {
				l.sleep(rem)
			}
		}
	}
}

// Stop joins the acquisition goroutine, drops any buffered frame and
// closes the capture handle. It guarantees no orphaned handle keeps a
// device or file open, and is safe to call more than once.
func (l *Loop) Stop() {
	l.once.Do(func() {
		close(l.done)
		l.wg.Wait()
		l.buf.Drain()
		if err := l.src.Close(); err != nil {
			l.log.Error().Err(err).Msg("failed to close capture handle")
		}
		l.log.Info().Int64("frames_acquired", l.seq).Msg("acquisition loop stopped")
	})
}
