package websocket

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub maintains the set of active server-side connections, grouped by an
// opaque channel key, and fans out broadcast messages to every connection
// subscribed to a channel. Adapted from the teacher's user/org/project
// broadcast hub into a single channel key so callers decide what a channel
// means (a batch ID, a topic, anything else).
type Hub struct {
	clients        map[*HubClient]bool
	channelClients map[string]map[*HubClient]bool
	broadcast      chan channelMessage
	register       chan *HubClient
	unregister     chan *HubClient
	logger         *slog.Logger
	mu             sync.RWMutex
}

type channelMessage struct {
	channel string
	data    []byte
}

// NewHub creates a new, unstarted hub. Call Run in its own goroutine.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:        make(map[*HubClient]bool),
		channelClients: make(map[string]map[*HubClient]bool),
		broadcast:      make(chan channelMessage),
		register:       make(chan *HubClient),
		unregister:     make(chan *HubClient),
		logger:         logger,
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctx-less
// shutdown (the hub has no stop signal, matching the teacher's fire-and-run
// pattern; the process exit tears it down).
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastToChannel(msg.channel, msg.data)
		}
	}
}

func (h *Hub) registerClient(client *HubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.channelClients[client.Channel] == nil {
		h.channelClients[client.Channel] = make(map[*HubClient]bool)
	}
	h.channelClients[client.Channel][client] = true

	h.logger.Info("websocket client registered", "client_id", client.ID, "channel", client.Channel, "total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *HubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if peers, ok := h.channelClients[client.Channel]; ok {
		delete(peers, client)
		if len(peers) == 0 {
			delete(h.channelClients, client.Channel)
		}
	}
	close(client.Send)
	h.logger.Info("websocket client unregistered", "client_id", client.ID, "channel", client.Channel, "total_clients", len(h.clients))
}

func (h *Hub) broadcastToChannel(channel string, data []byte) {
	h.mu.RLock()
	peers := h.channelClients[channel]
	clientsSnapshot := make([]*HubClient, 0, len(peers))
	for c := range peers {
		clientsSnapshot = append(clientsSnapshot, c)
	}
	h.mu.RUnlock()

	for _, client := range clientsSnapshot {
		select {
		case client.Send <- data:
		default:
			h.unregisterClient(client)
		}
	}
}

// BroadcastToChannel asynchronously fans data out to every client currently
// registered on channel. Best-effort: if nobody is listening, this is a
// no-op.
func (h *Hub) BroadcastToChannel(channel string, data []byte) {
	h.broadcast <- channelMessage{channel: channel, data: data}
}

// ClientCount returns the number of live connections, for health/metrics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChannelClientCount returns the number of live connections on one channel.
func (h *Hub) ChannelClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channelClients[channel])
}

// HubClient is one upgraded server-side connection, pinned to a single
// channel for its lifetime.
type HubClient struct {
	ID      string
	Channel string
	Conn    *websocket.Conn
	Send    chan []byte
	hub     *Hub
	logger  *slog.Logger
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Upgrade upgrades an HTTP connection, registers a client on the given
// channel, and starts its read/write pumps. The caller is done once this
// returns; the client tears itself down when the connection closes.
func Upgrade(hub *Hub, w http.ResponseWriter, r *http.Request, channel string, logger *slog.Logger) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket connection: %w", err)
	}

	client := &HubClient{
		ID:      fmt.Sprintf("client_%d", time.Now().UnixNano()),
		Channel: channel,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		hub:     hub,
		logger:  logger,
	}

	hub.register <- client
	go client.writePump()
	go client.readPump()
	return nil
}

func (c *HubClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", "client_id", c.ID, "error", err)
			}
			break
		}
		// Inbound client messages aren't part of the progress protocol; the
		// connection is read-only from the dashboard's perspective beyond
		// keeping the read pump alive for pong handling.
	}
}

func (c *HubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
