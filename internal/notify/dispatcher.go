// Package notify delivers violation events from the engine to the
// dashboard ingress. Delivery is decoupled from the detection loop by a
// bounded queue and a single worker, so a slow or unreachable dashboard
// can never stall zone-state processing.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"parkwatch-service/internal/domain/violation"
)

const (
	defaultQueueSize = 64
	requestTimeout   = 2 * time.Second
)

// Emitter is a secondary delivery channel alongside the HTTP ingress.
type Emitter interface {
	Emit(payload violation.EventPayload) error
	Close()
}

// Dispatcher posts events to the dashboard ingress from a worker
// goroutine fed by a bounded queue.
type Dispatcher struct {
	url      string
	client   *http.Client
	emitters []Emitter
	log      zerolog.Logger

	queue chan violation.EventPayload
	wg    sync.WaitGroup
	once  sync.Once

	// dropped is atomic: Enqueue runs concurrently from the processing
	// loop and the evidence-capture goroutines.
	dropped atomic.Int64
}

func NewDispatcher(dashboardURL string, log zerolog.Logger, emitters ...Emitter) *Dispatcher {
	return &Dispatcher{
		url:      dashboardURL,
		client:   &http.Client{Timeout: requestTimeout},
		emitters: emitters,
		log:      log.With().Str("component", "notify").Logger(),
		queue:    make(chan violation.EventPayload, defaultQueueSize),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for payload := range d.queue {
			d.deliver(payload)
		}
	}()
}

// Enqueue hands an event to the worker without blocking. When the queue
// is full the event is dropped and counted; backpressure is observable
// instead of stalling the caller.
func (d *Dispatcher) Enqueue(payload violation.EventPayload) bool {
	select {
	case d.queue <- payload:
		return true
	default:
		total := d.dropped.Add(1)
		d.log.Warn().
			Str("event", string(payload.Type())).
			Int("track_id", payload.TrackID).
			Int64("dropped_total", total).
			Msg("notify queue full, event dropped")
		return false
	}
}

func (d *Dispatcher) deliver(payload violation.EventPayload) {
	if err := d.post(payload); err != nil {
		// Per-event failure: logged, never propagated to the tracker.
		d.log.Error().Err(err).
			Str("event", string(payload.Type())).
			Int("track_id", payload.TrackID).
			Msg("dashboard delivery failed")
	} else {
		d.log.Debug().
			Str("event", string(payload.Type())).
			Int("track_id", payload.TrackID).
			Msg("event delivered to dashboard")
	}

	for _, em := range d.emitters {
		if err := em.Emit(payload); err != nil {
			d.log.Error().Err(err).Msg("secondary emitter failed")
		}
	}
}

func (d *Dispatcher) post(payload violation.EventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	resp, err := d.client.Post(d.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s: %w", d.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: status %d", d.url, resp.StatusCode)
	}
	return nil
}

// Stop drains the queue, waits for in-flight delivery and closes the
// secondary emitters.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
		for _, em := range d.emitters {
			em.Close()
		}
	})
}
