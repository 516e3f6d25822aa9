package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chartstudio/collab/internal/history"
	"github.com/chartstudio/collab/internal/metrics"
	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/protocol"
	"github.com/chartstudio/collab/internal/session"
)

// Cursor and selection frames are ephemeral; clients misbehaving beyond
// this rate get their presence frames dropped, never disconnected.
const (
	cursorRateLimit = rate.Limit(20)
	cursorRateBurst = 40
)

// Client represents one WebSocket client connected to a workspace hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	limiter *rate.Limiter
	mu      sync.Mutex
	closed  bool
}

// NewClient creates a new hub client.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(cursorRateLimit, cursorRateBurst),
	}
}

// Send queues a message to be sent to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// UserID returns the user ID associated with this client.
func (c *Client) UserID() string {
	return c.userID
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// AllowPresence reports whether a cursor/selection frame from this client
// is within its rate budget.
func (c *Client) AllowPresence() bool {
	return c.limiter.Allow()
}

// Hub holds the authoritative collaboration session for one workspace and
// the set of connected clients.
type Hub struct {
	workspaceID string
	state       *session.State
	recent      *history.Ring

	mu      sync.RWMutex
	clients map[*Client]bool
	onEmpty func()
}

// NewHub creates a hub around an existing session snapshot (typically
// rehydrated from the repositories).
func NewHub(workspaceID string, sess *model.CollaborationSession, ringSize int) *Hub {
	if sess == nil {
		now := time.Now()
		sess = &model.CollaborationSession{
			ID:          uuid.New().String(),
			WorkspaceID: workspaceID,
			CreatedAt:   now,
			LastActive:  now,
		}
	}
	return &Hub{
		workspaceID: workspaceID,
		state:       session.New(sess),
		recent:      history.NewRing(ringSize),
		clients:     make(map[*Client]bool),
	}
}

// WorkspaceID returns the workspace this hub serves.
func (h *Hub) WorkspaceID() string {
	return h.workspaceID
}

// State returns the hub's session state.
func (h *Hub) State() *session.State {
	return h.state
}

// Recent returns the bounded in-memory change history.
func (h *Hub) Recent() *history.Ring {
	return h.recent
}

// SetOnEmpty sets the callback invoked when the last client disconnects.
func (h *Hub) SetOnEmpty(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEmpty = callback
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	metrics.ConnectedClients.WithLabelValues(h.workspaceID).Inc()
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	onEmpty := h.onEmpty
	h.mu.Unlock()

	client.Close()
	if !present {
		return
	}
	metrics.ConnectedClients.WithLabelValues(h.workspaceID).Dec()

	if clientCount == 0 && onEmpty != nil {
		onEmpty()
	}
}

// Broadcast sends raw data to all connected clients, the originator
// included.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(data)
	}
}

// BroadcastFrame encodes a frame and sends it to all connected clients.
func (h *Hub) BroadcastFrame(t protocol.MessageType, payload interface{}) error {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	metrics.FramesRelayed.WithLabelValues(string(t)).Inc()
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasClients returns true if there are connected clients.
func (h *Hub) HasClients() bool {
	return h.ClientCount() > 0
}

// Close closes all client connections and the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
	metrics.ConnectedClients.WithLabelValues(h.workspaceID).Set(0)
}

// HubManager manages hubs across workspaces.
type HubManager struct {
	hubs map[string]*Hub
	mu   sync.RWMutex
}

// NewHubManager creates a new HubManager.
func NewHubManager() *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
	}
}

// GetOrCreate returns an existing hub or creates one via the supplied
// constructor. The constructor runs under the manager lock; keep it cheap.
func (m *HubManager) GetOrCreate(workspaceID string, create func() *Hub) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[workspaceID]; ok {
		return hub
	}

	hub := create()
	m.hubs[workspaceID] = hub
	return hub
}

// Get returns the hub for the workspace, or nil if not found.
func (m *HubManager) Get(workspaceID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[workspaceID]
}

// Remove removes the hub for the workspace.
func (m *HubManager) Remove(workspaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[workspaceID]; ok {
		hub.Close()
		delete(m.hubs, workspaceID)
	}
}

// Close closes all hubs.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		hub.Close()
	}
	m.hubs = make(map[string]*Hub)
}
