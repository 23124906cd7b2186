// Package events fans composition job transitions out to websocket
// subscribers so storefront embeds can show live progress.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fitstudio/internal/domain"
	"fitstudio/internal/infra"
)

// JobUpdate is the wire shape pushed to subscribers on every transition.
type JobUpdate struct {
	Type       string          `json:"type"`
	JobID      string          `json:"job_id"`
	StoreID    string          `json:"store_id"`
	State      domain.JobState `json:"state"`
	ResultURLs []string        `json:"result_urls,omitempty"`
	TotalCost  float64         `json:"total_cost,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Hub tracks connected websocket clients and broadcasts job updates. Writes
// happen on a single pump goroutine so no client write ever interleaves.
type Hub struct {
	logger infra.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	once       sync.Once
}

// NewHub constructs a hub; call Start before registering clients.
func NewHub(logger infra.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Start runs the pump goroutine.
func (h *Hub) Start() {
	go h.pump()
}

// Stop closes every client connection and ends the pump.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register adds a websocket client to the broadcast set.
func (h *Hub) Register(conn *websocket.Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
	}
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish implements the orchestrator's publisher hook. A full broadcast
// buffer drops the update rather than stalling the pipeline.
func (h *Hub) Publish(job *domain.CompositionJob) {
	update := JobUpdate{
		Type:      "job_update",
		JobID:     job.ID,
		StoreID:   job.Request.StoreID,
		State:     job.State,
		Timestamp: time.Now().UTC(),
	}
	if job.State == domain.JobStateCompleted {
		update.ResultURLs = job.ResultURLs
		update.TotalCost = job.TotalCost.Float64()
	}
	if job.State == domain.JobStateFailed {
		update.Error = job.ErrorDetail
	}
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("events: marshal update")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn().Str("job_id", job.ID).Msg("events: broadcast buffer full, update dropped")
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) pump() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", count).Msg("events: client connected")
		case conn := <-h.unregister:
			h.drop(conn)
		case payload := <-h.broadcast:
			h.mu.Lock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.Unlock()
			for _, conn := range conns {
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					h.logger.Debug().Err(err).Msg("events: client write failed, dropping")
					h.drop(conn)
				}
			}
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}
