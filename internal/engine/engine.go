package engine

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/hybridgroup/mjpeg"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"parkwatch-service/internal/capture"
	"parkwatch-service/internal/config"
	"parkwatch-service/internal/detect"
	"parkwatch-service/internal/domain/violation"
	"parkwatch-service/internal/evidence"
	"parkwatch-service/internal/notify"
	"parkwatch-service/internal/zones"
)

const idleSleep = 10 * time.Millisecond

var (
	colorOutside   = color.RGBA{G: 200, A: 255}
	colorTimed     = color.RGBA{R: 255, G: 200, A: 255}
	colorViolating = color.RGBA{R: 255, A: 255}
	colorZone      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Engine wires the capture loop, detector, occupancy tracker, evidence
// writer and notifier into the per-frame processing pipeline.
type Engine struct {
	cfg      config.Engine
	loop     *capture.Loop
	buf      *capture.Buffer
	detector detect.Detector
	zoneMap  *zones.Map
	writer   *evidence.Writer
	notifier *notify.Dispatcher
	stream   *mjpeg.Stream
	log      zerolog.Logger

	// sleep is injectable so the idle wait is testable without
	// wall-clock delays, same as the acquisition loop's pacing.
	sleep func(time.Duration)

	done    chan struct{}
	wg      sync.WaitGroup
	started time.Time

	// jobs tracks in-flight evidence captures so Stop can wait for them.
	jobs sync.WaitGroup

	frames     uint64
	violations uint64
	cleared    uint64
}

func New(
	cfg config.Engine,
	loop *capture.Loop,
	buf *capture.Buffer,
	detector detect.Detector,
	zoneMap *zones.Map,
	writer *evidence.Writer,
	notifier *notify.Dispatcher,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		loop:     loop,
		buf:      buf,
		detector: detector,
		zoneMap:  zoneMap,
		writer:   writer,
		notifier: notifier,
		stream:   mjpeg.NewStream(),
		log:      log.With().Str("component", "engine").Logger(),
		sleep:    time.Sleep,
		done:     make(chan struct{}),
	}
}

// Stream is the live annotated MJPEG feed.
func (e *Engine) Stream() *mjpeg.Stream { return e.stream }

// Start launches the capture loop and the processing loop.
func (e *Engine) Start() {
	e.started = time.Now()
	e.loop.Start()
	e.notifier.Start()
	e.wg.Add(1)
	go e.run()
}

// Stop shuts the pipeline down in order: capture first so no new frames
// arrive, then the processing loop, then in-flight evidence jobs, then
// the notifier queue.
func (e *Engine) Stop() {
	e.loop.Stop()
	close(e.done)
	e.wg.Wait()
	e.jobs.Wait()
	e.notifier.Stop()
	e.zoneMap.Close()
	e.detector.Close()

	elapsed := time.Since(e.started)
	fps := 0.0
	if elapsed > 0 {
		fps = float64(e.frames) / elapsed.Seconds()
	}
	e.log.Info().
		Uint64("frames", e.frames).
		Float64("avg_fps", fps).
		Dur("elapsed", elapsed).
		Uint64("violations", e.violations).
		Uint64("cleared", e.cleared).
		Msg("session summary")
}

func (e *Engine) run() {
	defer e.wg.Done()

	tracker := NewOccupancyTracker(
		e.zoneMap,
		e.cfg.ViolationClasses,
		e.cfg.ViolationThresholdDuration(),
		e.cfg.GracePeriodDuration(),
	)

	scaled := false
	for {
		select {
		case <-e.done:
			return
		default:
		}

		frame, ok := e.buf.Read()
		if !ok {
			e.sleep(idleSleep)
			continue
		}

		// Zones are authored against a reference resolution; the live
		// resolution is only known once the first frame arrives.
		if !scaled {
			m, err := e.zoneMap.ScaleTo(frame.Mat.Cols(), frame.Mat.Rows())
			if err != nil {
				e.log.Error().Err(err).Msg("failed to scale zones to live resolution")
				frame.Close()
				return
			}
			e.zoneMap.Close()
			e.zoneMap = m
			tracker.zoneMap = m
			scaled = true
			e.log.Info().
				Int("width", frame.Mat.Cols()).
				Int("height", frame.Mat.Rows()).
				Msg("zones scaled to live resolution")
		}

		e.process(tracker, frame)
		frame.Close()
	}
}

func (e *Engine) process(tracker *OccupancyTracker, frame capture.Frame) {
	e.frames++
	now := frame.Timestamp

	dets, err := e.detector.Detect(frame.Mat)
	if err != nil {
		e.log.Warn().Err(err).Int64("seq", frame.Seq).Msg("detection failed, frame skipped")
		return
	}

	obs := make([]Observation, len(dets))
	for i, det := range dets {
		obs[i] = tracker.Observe(det, now)
		if rec := obs[i].NewRecord; rec != nil {
			e.violations++
			e.log.Info().
				Int("track_id", rec.TrackID).
				Str("zone_name", rec.ZoneName).
				Str("class_label", rec.ClassLabel).
				Dur("elapsed", obs[i].Elapsed).
				Msg("violation confirmed")
			e.dispatch(frame.Mat, *rec)
		}
	}

	for _, ev := range tracker.Prune(now) {
		e.cleared++
		e.log.Info().
			Int("track_id", ev.TrackID).
			Str("zone_name", ev.ZoneName).
			Msg("violation cleared")
		e.notifier.Enqueue(violation.PayloadFromCleared(ev))
	}

	e.publish(frame.Mat, dets, obs)
}

// dispatch captures evidence off the hot path and sends the notification
// once the snapshot path is known. The frame is cloned because the loop
// closes it as soon as process returns.
func (e *Engine) dispatch(mat gocv.Mat, rec violation.Record) {
	clone := mat.Clone()
	zone, _ := e.zoneMap.Zone(rec.ZoneName)

	e.jobs.Add(1)
	go func() {
		defer e.jobs.Done()
		defer clone.Close()

		captured, err := e.writer.Capture(clone, rec, zone)
		if err != nil {
			e.log.Error().
				Err(err).
				Int("track_id", rec.TrackID).
				Msg("evidence capture incomplete")
		}
		e.notifier.Enqueue(violation.PayloadFromRecord(captured))
	}()
}

// publish draws the zone and detection overlay and pushes the frame to
// the live MJPEG feed.
func (e *Engine) publish(mat gocv.Mat, dets []violation.Detection, obs []Observation) {
	for _, z := range e.zoneMap.Zones() {
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{z.Points})
		gocv.Polylines(&mat, pv, true, colorZone, 2)
		pv.Close()
		if len(z.Points) > 0 {
			gocv.PutText(&mat, z.Name, z.Points[0], gocv.FontHersheySimplex, 0.5, colorZone, 1)
		}
	}

	for i, det := range dets {
		c := colorOutside
		label := det.ClassLabel
		switch obs[i].Status {
		case StatusTimed:
			c = colorTimed
			label = fmt.Sprintf("%s %.1fs", det.ClassLabel, obs[i].Elapsed.Seconds())
		case StatusViolating:
			c = colorViolating
			label = fmt.Sprintf("%s VIOLATION", det.ClassLabel)
		}
		if det.TrackID != nil {
			label = fmt.Sprintf("ID %d %s", *det.TrackID, label)
		}
		gocv.Rectangle(&mat, det.Box.Rect(), c, 2)
		gocv.PutText(&mat, label, image.Pt(det.Box.X1, det.Box.Y1-6), gocv.FontHersheySimplex, 0.5, c, 1)
	}

	jpg, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to encode live frame")
		return
	}
	defer jpg.Close()
	e.stream.UpdateJPEG(jpg.GetBytes())
}
