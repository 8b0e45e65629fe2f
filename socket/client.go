package socket

import (
	"context"
	"net/http"
	"time"

	"docshare/pkg/apperror"
	"docshare/pkg/logger"
	"docshare/pkg/respond"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tokens, not cookies, authenticate the upgrade, so any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Authorizer decides whether userID may watch docID and returns its title.
type Authorizer interface {
	CanView(ctx context.Context, userID, docID string) (string, error)
}

type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	DocID    string
	UserID   string
	Title    string
	JoinedAt time.Time
	Send     chan []byte
}

// ServeWs checks access before upgrading so refusals are plain HTTP errors.
func ServeWs(hub *Hub, auth Authorizer, w http.ResponseWriter, r *http.Request, userID string) {
	id, err := uuid.Parse(r.URL.Query().Get("docId"))
	if err != nil {
		respond.FromError(w, r, apperror.Validation("Invalid id"))
		return
	}
	docID := id.String()

	title, err := auth.CanView(r.Context(), userID, docID)
	if err != nil {
		logger.Sugar.Warnf("Connection rejected for user %s on doc %s: %v", userID, docID, err)
		respond.FromError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:      hub,
		Conn:     conn,
		DocID:    docID,
		UserID:   userID,
		Title:    title,
		JoinedAt: time.Now().UTC(),
		Send:     make(chan []byte, sendBuffer),
	}
	if !hub.register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only keeps the connection alive. Documents are never changed over
// the socket, so inbound payloads are discarded.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
