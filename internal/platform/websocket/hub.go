// Package websocket pushes live events to connected triage stations. A
// station subscribes to topics and receives every event published to them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Event is the envelope written to subscribers.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is what a station sends to change its subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected station.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

func NewClient(topics []string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Topics: topics,
		Send:   make(chan []byte, sendBuffer),
	}
}

// Hub tracks clients by topic. Slow clients whose buffer is full miss
// events instead of blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	dropped int64
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister drops every subscription of client and closes its Send
// channel. Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, ok := h.topics[topic][client]; ok {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		drop[topic] = struct{}{}
		h.removeLocked(topic, client)
	}
	kept := client.Topics[:0]
	for _, topic := range client.Topics {
		if _, ok := drop[topic]; !ok {
			kept = append(kept, topic)
		}
	}
	client.Topics = kept
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// ProcessMessage applies a subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	default:
		h.logger.Debug().Str("client_id", client.ID).Str("action", msg.Action).Msg("ignoring unknown action")
	}
}

// Publish delivers event to the subscribers of event.Topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topics[event.Topic] {
		select {
		case client.Send <- data:
		default:
			atomic.AddInt64(&h.dropped, 1)
			h.logger.Warn().Str("client_id", client.ID).Str("type", event.Type).Msg("client buffer full, event dropped")
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped counts events skipped because a client's buffer was full.
func (h *Hub) Dropped() int64 { return atomic.LoadInt64(&h.dropped) }

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler upgrades HTTP requests to websocket connections bound to a Hub.
type Handler struct {
	hub           *Hub
	upgrader      gorillawebsocket.Upgrader
	defaultTopics []string
}

// NewHandler accepts connections whose Origin is in allowedOrigins ("*"
// allows any). Requests without an Origin header, such as non-browser
// station clients, are always accepted. Clients that name no topics are
// subscribed to defaultTopics.
func NewHandler(hub *Hub, allowedOrigins []string, defaultTopics ...string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	return &Handler{
		hub:           hub,
		defaultTopics: defaultTopics,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the request. ?topics=a,b picks the initial
// subscriptions.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	topics := wsh.defaultTopics
	if q := c.QueryParam("topics"); q != "" {
		topics = nil
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	client := NewClient(append([]string(nil), topics...))
	wsh.hub.Register(client)
	wsh.hub.logger.Info().Str("client_id", client.ID).Strs("topics", client.Topics).Msg("station connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
		wsh.hub.logger.Info().Str("client_id", client.ID).Msg("station disconnected")
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
