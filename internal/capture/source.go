// Package capture owns the video handle and the acquisition side of the
// pipeline: a reconnecting frame source feeding a depth-1 latest-wins
// buffer that decouples acquisition from processing.
package capture

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

var (
	// ErrSourceUnavailable means the capture handle could not be opened,
	// even after the backoff retry.
	ErrSourceUnavailable = errors.New("video source unavailable")

	// ErrNoFrame is a transient read miss. The acquisition loop retries
	// these indefinitely; they are never surfaced upward.
	ErrNoFrame = errors.New("no frame available")
)

const openRetryBackoff = 2 * time.Second

// Source wraps a gocv capture handle for one video source. Exactly one
// goroutine (the acquisition loop) may use it at a time.
type Source struct {
	spec   string
	isFile bool
	fps    float64

	cap *gocv.VideoCapture
	log zerolog.Logger

	sleep func(time.Duration)
}

// Open opens the video source. Numeric specs select a device index,
// anything else is treated as a file path or stream URL. A failed open is
// retried once after a fixed backoff before giving up.
func Open(spec string, log zerolog.Logger) (*Source, error) {
	s := &Source{
		spec:  spec,
		log:   log.With().Str("component", "capture").Str("source", spec).Logger(),
		sleep: time.Sleep,
	}
	if _, err := os.Stat(spec); err == nil {
		s.isFile = true
	}

	if err := s.open(); err != nil {
		s.log.Warn().Err(err).Dur("backoff", openRetryBackoff).Msg("open failed, retrying")
		s.sleep(openRetryBackoff)
		if err := s.open(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, spec)
		}
	}

	s.log.Info().Bool("file_source", s.isFile).Float64("fps", s.fps).Msg("video source opened")
	return s, nil
}

func (s *Source) open() error {
	var arg interface{} = s.spec
	if idx, err := strconv.Atoi(s.spec); err == nil {
		arg = idx
	}

	cap, err := gocv.OpenVideoCapture(arg)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.spec, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("open %s: handle not opened", s.spec)
	}

	s.cap = cap
	s.fps = s.probeFPS()
	return nil
}

// probeFPS reads the source frame rate, defaulting file sources to 30fps
// when the container carries no usable metadata.
func (s *Source) probeFPS() float64 {
	fps := s.cap.Get(gocv.VideoCaptureFPS)
	if fps > 1 {
		return fps
	}
	if s.isFile {
		return 30.0
	}
	return 0
}

// Read grabs the next frame into dst. A failed or empty read returns
// ErrNoFrame.
func (s *Source) Read(dst *gocv.Mat) error {
	if ok := s.cap.Read(dst); !ok || dst.Empty() {
		return ErrNoFrame
	}
	return nil
}

// Reopen closes and reopens the handle after a read failure. The derived
// frame rate is re-probed, resetting file playback pacing.
func (s *Source) Reopen() error {
	if s.cap != nil {
		s.cap.Close()
		s.cap = nil
	}
	if err := s.open(); err != nil {
		s.sleep(openRetryBackoff)
		if err := s.open(); err != nil {
			return fmt.Errorf("%w: %s", ErrSourceUnavailable, s.spec)
		}
	}
	s.log.Info().Float64("fps", s.fps).Msg("video source reopened")
	return nil
}

// FrameInterval returns the nominal frame interval for file playback
// pacing, or zero for live sources (which run as fast as frames arrive).
func (s *Source) FrameInterval() time.Duration {
	if s.isFile && s.fps > 0 {
		return time.Duration(float64(time.Second) / s.fps)
	}
	return 0
}

// Close releases the capture handle.
func (s *Source) Close() error {
	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.cap = nil
	return err
}
