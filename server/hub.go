package server

import (
	"encoding/json"
	"sync"
	"time"

	"playd/logger"
)

// Subscriber is a control connection that switched into event-streaming mode.
type Subscriber struct {
	ID   string
	Send chan []byte
}

// Hub fans daemon events out to subscribed connections. All bookkeeping is
// done by the single Run goroutine; Notify and the register channels are safe
// to call from anywhere.
type Hub struct {
	subscribers map[*Subscriber]bool

	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan []byte, 256),
		done:        make(chan struct{}),
	}
}

// Run drives the hub until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.addSubscriber(sub)

		case sub := <-h.unregister:
			h.removeSubscriber(sub)

		case msg := <-h.broadcast:
			h.broadcastAll(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down and closes all subscriber channels.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register adds a subscriber. Its Send channel is closed by the hub on
// unregister or shutdown.
func (h *Hub) Register(sub *Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.Send)
	}
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Notify implements session.Notifier. Every event carries its name and a
// millisecond timestamp; the remaining fields come from the daemon.
func (h *Hub) Notify(event string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["event"] = event
	payload["timestamp"] = time.Now().UnixMilli()

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to marshal event", logger.ErrorField(err), logger.String("event", event))
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		logger.Warn("event broadcast queue full, dropping", logger.String("event", event))
	}
}

func (h *Hub) addSubscriber(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers[sub] = true
	logger.Info("subscriber registered", logger.String("conn", sub.ID))
}

func (h *Hub) removeSubscriber(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.Send)
		logger.Info("subscriber unregistered", logger.String("conn", sub.ID))
	}
}

func (h *Hub) broadcastAll(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.Send <- msg:
		default:
			// slow consumer, drop the event rather than stall the hub
			logger.Warn("subscriber send buffer full, dropping event", logger.String("conn", sub.ID))
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		close(sub.Send)
		delete(h.subscribers, sub)
	}
}
