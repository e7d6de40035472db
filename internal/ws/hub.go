package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans status updates out to subscribers by business ID.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	log       *slog.Logger
}

// message couples payload with business identifier.
type message struct {
	businessID string
	payload    []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	businessID string
	client     Subscriber
}

// NewHub creates a running Hub. Call Stop to release it.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		done:      make(chan struct{}),
		log:       logger.With("component", "ws"),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.businessID]; !ok {
				h.clients[sub.businessID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.businessID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.businessID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.businessID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.businessID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.businessID)
				}
			}
		}
	}
}

// Register adds a client to a business stream.
func (h *Hub) Register(businessID string, client Subscriber) {
	select {
	case h.register <- subscription{businessID: businessID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(businessID string, client Subscriber) {
	select {
	case h.unreg <- subscription{businessID: businessID, client: client}:
	case <-h.done:
	}
}

// Broadcast sends payload to all clients of a business.
func (h *Hub) Broadcast(businessID string, payload []byte) {
	select {
	case h.broadcast <- message{businessID: businessID, payload: payload}:
	case <-h.done:
	}
}

// Publish encodes v as JSON and broadcasts it.
func (h *Hub) Publish(businessID string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("status encode failed", "business_id", businessID, "error", err)
		return
	}
	h.Broadcast(businessID, payload)
}

// Stop closes every subscriber and waits for the hub loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}
