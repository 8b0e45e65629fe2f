package socket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"docshare/pkg/logger"
)

const (
	WelcomeType        = "WELCOME"         // Sent once to a client after it joins
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined or left

	broadcastBuffer = 256
)

type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"docId"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UserStatus struct {
	UserID      string    `json:"userId"`
	Connections int       `json:"connections"`
	Since       time.Time `json:"since"`
}

// Hub fans server-side document events out to the viewers of each document.
// Rooms are only touched by the Run goroutine and under mu.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for docID, clients := range h.Rooms {
				for client := range clients {
					client.Conn.Close()
				}
				delete(h.Rooms, docID)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
			}
			h.Rooms[client.DocID][client] = true
			h.mu.Unlock()

			welcome, _ := json.Marshal(map[string]string{"title": client.Title})
			h.deliver([]*Client{client}, WSMessage{Type: WelcomeType, DocID: client.DocID, UserID: client.UserID, Payload: welcome})
			h.broadcastPresenceUpdate(client.DocID)

		case client := <-h.Unregister:
			if h.removeClient(client) {
				h.broadcastPresenceUpdate(client.DocID)
			}

		case msg := <-h.Broadcast:
			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.DocID]))
			for client := range h.Rooms[msg.DocID] {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			h.deliver(clientsToSend, msg)
		}
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Publish queues an event for every viewer of docID. It never blocks the
// caller; events are dropped when the hub is saturated.
func (h *Hub) Publish(docID, eventType, userID string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			logger.Sugar.Errorf("Error marshalling %s event: %v", eventType, err)
			return
		}
		raw = b
	}

	select {
	case h.Broadcast <- WSMessage{Type: eventType, DocID: docID, UserID: userID, Payload: raw}:
	default:
		logger.Sugar.Warnf("Hub broadcast buffer full, dropping %s for doc %s", eventType, docID)
	}
}

// CloseRoom disconnects every viewer of a deleted document.
func (h *Hub) CloseRoom(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.Rooms[docID] {
		// The read pump notices the closed socket and unregisters.
		client.Conn.Close()
	}
}

// Kick disconnects userID's sockets on docID after losing access.
func (h *Hub) Kick(docID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.Rooms[docID] {
		if client.UserID == userID {
			client.Conn.Close()
		}
	}
}

// Presence lists who is connected to docID.
func (h *Hub) Presence(docID string) []UserStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presenceLocked(docID)
}

func (h *Hub) presenceLocked(docID string) []UserStatus {
	byUser := make(map[string]*UserStatus)
	for client := range h.Rooms[docID] {
		st, ok := byUser[client.UserID]
		if !ok {
			st = &UserStatus{UserID: client.UserID, Since: client.JoinedAt}
			byUser[client.UserID] = st
		}
		st.Connections++
		if client.JoinedAt.Before(st.Since) {
			st.Since = client.JoinedAt
		}
	}

	statuses := make([]UserStatus, 0, len(byUser))
	for _, st := range byUser {
		statuses = append(statuses, *st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].UserID < statuses[j].UserID })
	return statuses
}

// removeClient drops client from its room and reports whether it was there.
// Disconnecting never touches the document lock.
func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Rooms[client.DocID][client]; !ok {
		return false
	}
	delete(h.Rooms[client.DocID], client)
	close(client.Send)

	if len(h.Rooms[client.DocID]) == 0 {
		delete(h.Rooms, client.DocID)
		logger.Sugar.Infof("Closed and cleaned up empty room: %s", client.DocID)
	}
	return true
}

// deliver must only be called from Run, which owns closing client.Send.
func (h *Hub) deliver(clients []*Client, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
			// A lagging client would stall the whole hub.
			logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.UserID)
			if h.removeClient(client) {
				client.Conn.Close()
			}
		}
	}
}

func (h *Hub) broadcastPresenceUpdate(docID string) {
	h.mu.Lock()
	statuses := h.presenceLocked(docID)
	clientsToSend := make([]*Client, 0, len(h.Rooms[docID]))
	for client := range h.Rooms[docID] {
		clientsToSend = append(clientsToSend, client)
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(statuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	h.deliver(clientsToSend, WSMessage{Type: PresenceUpdateType, DocID: docID, Payload: payload})
}
