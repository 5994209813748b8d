// Package ws pushes quotes and notifications to websocket clients
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Types of messages
const (
	TypeQuotes       = "quotes"
	TypeNotification = "notification"
)

// ErrStopped is returned when the hub doesn't run anymore
var ErrStopped = errors.New("websocket hub stopped")

// Message is what clients receive
type Message struct {
	Type   string        `json:"type"`
	Quotes []model.Quote `json:"quotes,omitempty"`
	Text   string        `json:"text,omitempty"`
}

type direct struct {
	accountID int64
	payload   []byte
}

// Hub keeps connected clients. Only Run touches the clients map
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan direct
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      int64

	upgrader websocket.Upgrader
}

// Client is one websocket connection of an account
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	accountID int64
}

// NewHub is constructor
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		direct:     make(chan direct),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run serves the hub until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			atomic.StoreInt64(&h.count, int64(len(h.clients)))
			log.WithField("account", client.accountID).Infof("client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.WithField("account", client.accountID).Infof("client disconnected. Total clients: %d", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				h.push(client, message)
			}

		case d := <-h.direct:
			for client := range h.clients {
				if client.accountID == d.accountID {
					h.push(client, d.payload)
				}
			}
		}
	}
}

// push drops clients that don't keep up
func (h *Hub) push(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	atomic.StoreInt64(&h.count, int64(len(h.clients)))
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	return int(atomic.LoadInt64(&h.count))
}

// BroadcastQuotes sends quotes to every client
func (h *Hub) BroadcastQuotes(ctx context.Context, quotes []model.Quote) error {
	message, err := json.Marshal(Message{Type: TypeQuotes, Quotes: quotes})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

// Send delivers text to every connection of the account. An account
// without connections silently misses the message.
func (h *Hub) Send(ctx context.Context, accountID int64, text string) error {
	payload, err := json.Marshal(Message{Type: TypeNotification, Text: text})
	if err != nil {
		return err
	}
	select {
	case h.direct <- direct{accountID: accountID, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

// Serve upgrades the request and registers the connection for the account
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, accountID int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		accountID: accountID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return ErrStopped
	}
	go client.writePump()
	go client.readPump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("account", c.accountID).Error(err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
