// Package broadcast fans violation events out to connected dashboard
// observers. Registration is explicit and a closed connection removes its
// entry deterministically; nothing relies on collection timing.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	sendBufferSize = 16
)

// Observer is one connected dashboard client.
type Observer struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub maintains the observer set and delivers each broadcast to every
// member independently. A failed delivery removes that observer only;
// neither the caller nor the other observers see the error.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	log       zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		observers: make(map[string]*Observer),
		log:       log.With().Str("component", "broadcast").Logger(),
	}
}

// Attach registers a new observer connection and starts its pumps. The
// hub owns the connection from here on.
func (h *Hub) Attach(conn *websocket.Conn) *Observer {
	obs := &Observer{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.observers[obs.ID] = obs
	count := len(h.observers)
	h.mu.Unlock()

	h.log.Info().Str("observer_id", obs.ID).Int("observers", count).Msg("observer connected")

	go h.writePump(obs)
	go h.readPump(obs)
	return obs
}

// remove detaches the observer and closes its connection. Idempotent.
func (h *Hub) remove(obs *Observer) {
	h.mu.Lock()
	_, present := h.observers[obs.ID]
	if present {
		delete(h.observers, obs.ID)
		close(obs.done)
	}
	count := len(h.observers)
	h.mu.Unlock()

	if present {
		obs.conn.Close()
		h.log.Info().Str("observer_id", obs.ID).Int("observers", count).Msg("observer disconnected")
	}
}

// writePump serializes all writes to one connection, including pings.
func (h *Hub) writePump(obs *Observer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-obs.done:
			obs.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case msg := <-obs.send:
			obs.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := obs.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Warn().Err(err).Str("observer_id", obs.ID).Msg("observer write failed")
				h.remove(obs)
				return
			}
		case <-ticker.C:
			obs.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := obs.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(obs)
				return
			}
		}
	}
}

// readPump consumes inbound frames solely to notice connection close.
func (h *Hub) readPump(obs *Observer) {
	defer h.remove(obs)

	obs.conn.SetReadLimit(512)
	obs.conn.SetReadDeadline(time.Now().Add(pongWait))
	obs.conn.SetPongHandler(func(string) error {
		obs.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := obs.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast delivers the payload to every connected observer. It never
// blocks on a slow observer: a full send buffer drops that observer
// rather than stalling the caller. Returns the number of observers the
// message was handed to.
func (h *Hub) Broadcast(payload interface{}) int {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("broadcast payload not serializable")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, obs := range targets {
		select {
		case <-obs.done:
			// Already detached between snapshot and send.
		case obs.send <- data:
			delivered++
		default:
			h.log.Warn().Str("observer_id", obs.ID).Msg("observer send buffer full, dropping connection")
			h.remove(obs)
		}
	}
	return delivered
}

// Count reports the current observer count.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.RLock()
	targets := make([]*Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.RUnlock()

	for _, obs := range targets {
		h.remove(obs)
	}
}
