package socket

import (
	"encoding/json"
	"sync"

	"memonote/pkg/logger"
)

const (
	MemoCreatedType = "MEMO_CREATED" // A memo was created
	MemoUpdatedType = "MEMO_UPDATED" // Title/content/category changed
	MemoDeletedType = "MEMO_DELETED" // Memo and all pages removed
	PageChangedType = "PAGE_CHANGED" // A page was added, updated, or deleted
)

// Event is a change notification fanned out to the owning user's open
// connections. Payload carries the affected resource.
type Event struct {
	Type    string          `json:"type"`
	MemoID  string          `json:"memo_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub tracks the open websocket connections per user and fans change
// events out to them. A user only ever receives events for their own
// memos; there are no shared rooms.
type Hub struct {
	Sessions   map[string]map[*Client]bool // userID -> connections
	Broadcast  chan Event
	Register   chan *Client
	Unregister chan *Client
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Sessions:   make(map[string]map[*Client]bool),
		Broadcast:  make(chan Event),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Publish hands an event to the hub's event loop. The service calls this
// after every successful mutation.
func (h *Hub) Publish(evt Event) {
	h.Broadcast <- evt
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Sessions[client.UserID] == nil {
				h.Sessions[client.UserID] = make(map[*Client]bool)
			}
			h.Sessions[client.UserID][client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.drop(client)

		case evt := <-h.Broadcast:
			payload, err := json.Marshal(evt)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling event: %v", err)
				continue
			}

			// Collect recipients under the lock, send outside it.
			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Sessions[evt.UserID]))
			for client := range h.Sessions[evt.UserID] {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// Send buffer full, the client is lagging. Drop it
					// inline; sending to Unregister from here would
					// block the event loop on itself.
					logger.Sugar.Warnf("Client %s's send buffer is full. Dropping connection.", client.UserID)
					h.drop(client)
				}
			}
		}
	}
}

// drop removes a connection and closes its Send channel. Safe to call
// twice for the same client; the second call is a no-op.
func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Sessions[client.UserID][client]; ok {
		delete(h.Sessions[client.UserID], client)
		close(client.Send)
		if len(h.Sessions[client.UserID]) == 0 {
			delete(h.Sessions, client.UserID)
		}
	}
}
