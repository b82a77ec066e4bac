// Package events distributes stream lifecycle events to WebSocket
// subscribers and, through redis, to other controller processes.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   32,
	}
}

type subscriber struct {
	id        string
	meetingID string
	send      chan domain.StreamEvent
}

func (s *subscriber) wants(e domain.StreamEvent) bool {
	return s.meetingID == "" || s.meetingID == e.MeetingID
}

// Hub is an EventPublisher that never blocks: a subscriber whose buffer is
// full misses the event.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[string]*subscriber

	onCount func(int)
	logger  *zap.SugaredLogger
}

func NewHub(cfg Config, logger *zap.SugaredLogger) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	h := &Hub{
		cfg:         cfg,
		subscribers: make(map[string]*subscriber),
		onCount:     func(int) {},
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// OnSubscriberCount registers a callback invoked whenever the number of
// subscribers changes.
func (h *Hub) OnSubscriberCount(fn func(int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCount = fn
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Hub) Publish(event domain.StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.send <- event:
		default:
			h.logger.Warnw("dropping event for slow subscriber",
				"subscriber", sub.id,
				"type", event.Type,
				"meeting_id", event.MeetingID,
			)
		}
	}
}

// HandleWebSocket upgrades the request and streams events until the client
// goes away. An optional meetingId query parameter narrows the feed.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := &subscriber{
		id:        uuid.NewString(),
		meetingID: r.URL.Query().Get("meetingId"),
		send:      make(chan domain.StreamEvent, h.cfg.BufferSize),
	}
	h.add(sub)
	defer h.remove(sub)

	h.logger.Infow("event subscriber connected", "subscriber", sub.id, "meeting_id", sub.meetingID)

	readTimeout := 2 * h.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Subscribers never send anything meaningful; reading only detects close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Infow("event subscriber disconnected", "subscriber", sub.id)
			return
		case event := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warnw("failed to write event", "subscriber", sub.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subscribers[sub.id] = sub
	n, onCount := len(h.subscribers), h.onCount
	h.mu.Unlock()
	onCount(n)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub.id)
	n, onCount := len(h.subscribers), h.onCount
	h.mu.Unlock()
	onCount(n)
}

var _ ports.EventPublisher = (*Hub)(nil)
