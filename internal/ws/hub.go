package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/notify"
	"github.com/saturnino-fabrica-de-software/ponto/internal/observability"
)

// Hub fans notifications out to connected WebSocket clients. A client
// subscribed with an empty kind receives every event.
type Hub struct {
	clients    map[*Client]bool
	kinds      map[notify.Kind]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		kinds:      make(map[notify.Kind]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	observability.WSConnections.Inc()

	if h.kinds[client.kind] == nil {
		h.kinds[client.kind] = make(map[*Client]bool)
	}
	h.kinds[client.kind][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	observability.WSConnections.Dec()
	delete(h.kinds[client.kind], client)
	if len(h.kinds[client.kind]) == 0 {
		delete(h.kinds, client.kind)
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.dropLocked(client)
	}
}

func (h *Hub) deliver(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, kind := range []notify.Kind{"", event.Kind} {
		for client := range h.kinds[kind] {
			select {
			case client.send <- message:
			default:
				h.dropLocked(client)
			}
		}
	}
}

// Publish queues msg for delivery. A full queue drops the message.
func (h *Hub) Publish(_ context.Context, msg notify.Message) error {
	event := Event{
		Kind:      msg.Kind,
		Type:      eventType(msg),
		Data:      msg,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- event:
	default:
	}
	return nil
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

var _ notify.Publisher = (*Hub)(nil)
