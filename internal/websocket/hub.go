// Package websocket serves the live quote feed: configurator pages send their
// current selection and get the server price back on every change.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/internal/httpx"
	"github.com/jogardn/dtc-configurator/internal/pricing"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const (
	TypeQuote          = "quote"
	TypeError          = "error"
	TypeProductUpdated = "product_updated"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

// Quoter prices a selection against a product.
type Quoter interface {
	Quote(ctx context.Context, productID string, sel models.Selection) (*pricing.Quote, error)
}

type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

type ErrorData struct {
	Kind    apperr.Kind         `json:"kind"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

type quoteRequest struct {
	Selection models.Selection `json:"selection"`
}

type Client struct {
	conn      *websocket.Conn
	send      chan Message
	hub       *Hub
	productID string

	mu     sync.Mutex
	closed bool
}

// trySend queues m without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) trySend(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// delivery is a broadcast to every client configuring productID.
type delivery struct {
	productID string
	message   Message
}

type Hub struct {
	quoter   Quoter
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	clients    map[*Client]bool
	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

// NewHub returns a hub that accepts connections from origins, a comma
// separated list where "*" allows any origin.
func NewHub(quoter Quoter, origins string, logger *logrus.Logger) *Hub {
	h := &Hub{
		quoter:     quoter,
		logger:     logger,
		clients:    make(map[*Client]bool),
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(origins)}
	return h
}

func originChecker(origins string) func(*http.Request) bool {
	allowed := map[string]bool{}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithFields(logrus.Fields{
				"client_count": count,
				"product_id":   client.productID,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Client disconnected")

		case d := <-h.deliver:
			h.mutex.Lock()
			for client := range h.clients {
				if client.productID != d.productID {
					continue
				}
				if !client.trySend(d.message) {
					h.logger.WithField("product_id", client.productID).Warn("Dropping slow websocket client")
					delete(h.clients, client)
					client.close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// ProductChanged tells every client configuring productID that its
// definition changed and quotes should be refreshed.
func (h *Hub) ProductChanged(productID, change string) {
	h.broadcast(delivery{
		productID: productID,
		message: newMessage(TypeProductUpdated, map[string]string{
			"product_id": productID,
			"change":     change,
		}),
	})
}

func (h *Hub) broadcast(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	default:
		h.logger.Warn("Delivery channel full, dropping message")
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product")
	if productID == "" {
		httpx.RespondWithError(w, h.logger, apperr.Validation(apperr.FieldError{
			Field:   "product",
			Message: "product is required",
		}))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan Message, sendBuffer),
		hub:       h,
		productID: productID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func newMessage(msgType string, data interface{}) Message {
	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func errorMessage(err error) Message {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		return newMessage(TypeError, ErrorData{Kind: e.Kind, Message: "Internal server error"})
	}
	return newMessage(TypeError, ErrorData{Kind: e.Kind, Message: e.Message, Fields: e.Fields})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithError(err).Warn("WebSocket error")
			}
			return
		}
		if !c.reply(data) {
			c.hub.logger.WithField("product_id", c.productID).Warn("Dropping slow websocket client")
			return
		}
	}
}

// reply answers one client message on the client's own queue.
func (c *Client) reply(data []byte) bool {
	return c.trySend(c.answer(data))
}

func (c *Client) answer(data []byte) Message {
	var req quoteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorMessage(apperr.Validation(apperr.FieldError{Field: "body", Message: "Invalid message"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	quote, err := c.hub.quoter.Quote(ctx, c.productID, req.Selection)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			c.hub.logger.WithError(err).WithField("product_id", c.productID).Error("Quote failed")
		}
		return errorMessage(err)
	}
	return newMessage(TypeQuote, quote)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
