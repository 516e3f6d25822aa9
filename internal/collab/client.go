package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/protocol"
	"github.com/chartstudio/collab/internal/session"
)

const (
	defaultConnectTimeout       = 8 * time.Second
	defaultInitTimeout          = 5 * time.Second
	defaultPingInterval         = 30 * time.Second
	defaultPongTimeout          = 90 * time.Second
	defaultMaxReconnectAttempts = 5
	defaultBackoffBase          = 2 * time.Second
	defaultBackoffMax           = 30 * time.Second
	defaultCursorThreshold      = 15.0
)

// Conn is the subset of a WebSocket connection the client uses. It is
// satisfied by *websocket.Conn; tests substitute an in-memory pipe.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a collaboration socket. The production dialer wraps
// gorilla/websocket; tests inject fakes.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Identity describes the local actor joining a workspace.
type Identity struct {
	ID     string
	Name   string
	Email  string
	Avatar string
}

// Options configures a Client. Zero values select the documented defaults.
type Options struct {
	// BaseURL is the WebSocket base, e.g. "ws://localhost:8080". An empty
	// BaseURL puts the client in mock mode.
	BaseURL  string
	Identity Identity

	Dialer Dialer
	Logger *zap.Logger

	// Gate is the shared mock-mode switch. Construct one per application
	// and pass it to every client so a permanent fallback applies globally.
	Gate *MockGate

	ConnectTimeout       time.Duration
	InitTimeout          time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffMax           time.Duration

	// CursorThreshold is the minimum pixel distance between transmitted
	// cursor positions on the same chart.
	CursorThreshold float64
}

func (o *Options) fillDefaults() {
	if o.Dialer == nil {
		o.Dialer = wsDialer{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Gate == nil {
		o.Gate = NewMockGate(o.BaseURL == "")
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.InitTimeout == 0 {
		o.InitTimeout = defaultInitTimeout
	}
	if o.PingInterval == 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongTimeout == 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = defaultBackoffMax
	}
	if o.CursorThreshold == 0 {
		o.CursorThreshold = defaultCursorThreshold
	}
}

// Client is one application's connection to a collaboration workspace.
// It is an explicit instance, not a process-wide singleton; construct it
// at the top level and share it by reference.
type Client struct {
	opts       Options
	log        *zap.Logger
	gate       *MockGate
	dialer     Dialer
	dispatcher *Dispatcher
	recon      *Reconnector
	state      *session.State

	mu             sync.Mutex
	conn           Conn
	user           *model.CollaborationUser
	workspaceID    string
	mock           bool
	closed         bool
	lastPong       time.Time
	lastSentCursor *model.CursorPosition
	stop           chan struct{}
	wg             sync.WaitGroup
}

// NewClient creates an unconnected client.
func NewClient(opts Options) *Client {
	opts.fillDefaults()
	return &Client{
		opts:       opts,
		log:        opts.Logger,
		gate:       opts.Gate,
		dialer:     opts.Dialer,
		dispatcher: NewDispatcher(opts.Logger),
		recon:      NewReconnector(opts.BackoffBase, opts.BackoffMax, opts.MaxReconnectAttempts),
		state:      session.New(nil),
		stop:       make(chan struct{}),
	}
}

// Connect joins a workspace and returns the shared session and the local
// user entry. The call never fails over the network: any dial, handshake,
// or init failure falls back to a locally synthesized mock session. It
// returns an error only for a missing workspace ID, a closed client, or a
// canceled context. A superseding call for the already-joined workspace
// returns the existing session.
func (c *Client) Connect(ctx context.Context, workspaceID string) (*model.CollaborationSession, *model.CollaborationUser, error) {
	if workspaceID == "" {
		return nil, nil, model.ErrWorkspaceRequired
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, model.ErrClientClosed
	}
	if s := c.state.Session(); s != nil && c.workspaceID == workspaceID {
		user := c.user
		c.mu.Unlock()
		return s, user, nil
	}

	// Switching workspaces tears down the previous connection first so its
	// read pump exits before the new dial.
	prevConn := c.conn
	prevUser := c.user
	c.conn = nil
	c.mock = false
	c.lastSentCursor = nil

	user := c.newLocalUser()
	c.user = user
	c.workspaceID = workspaceID
	c.mu.Unlock()

	if prevConn != nil {
		if prevUser != nil {
			if data, err := protocol.Encode(protocol.MessageTypeLeave, protocol.LeavePayload{UserID: prevUser.ID}); err == nil {
				prevConn.WriteMessage(websocket.TextMessage, data)
			}
		}
		prevConn.Close()
	}

	if c.gate.Forced() || c.opts.BaseURL == "" {
		c.startMock(workspaceID, user)
		return c.state.Session(), user, nil
	}

	if err := c.connectOnce(ctx, workspaceID, user); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		c.log.Warn("collaboration connect failed, falling back to mock session",
			zap.String("workspace", workspaceID), zap.Error(err))
		c.startMock(workspaceID, user)
		return c.state.Session(), user, nil
	}

	c.dispatcher.NotifyConnection(true)
	return c.state.Session(), user, nil
}

func (c *Client) newLocalUser() *model.CollaborationUser {
	id := c.opts.Identity.ID
	if id == "" {
		id = "user-" + uuid.New().String()[:8]
	}
	name := c.opts.Identity.Name
	if name == "" {
		name = "Guest " + id[len(id)-4:]
	}
	return &model.CollaborationUser{
		ID:         id,
		Name:       name,
		Email:      c.opts.Identity.Email,
		Avatar:     c.opts.Identity.Avatar,
		Color:      pickColor(),
		Active:     true,
		LastActive: time.Now(),
	}
}

// startMock installs a synthesized session and reports the client as
// connected. Outgoing messages no longer leave the process.
func (c *Client) startMock(workspaceID string, user *model.CollaborationUser) {
	c.mu.Lock()
	c.mock = true
	c.conn = nil
	c.mu.Unlock()

	c.state.Replace(newMockSession(workspaceID, user))
	c.log.Info("collaboration running in mock mode", zap.String("workspace", workspaceID))
	c.dispatcher.NotifyConnection(true)
}

// connectOnce performs one full connection sequence: dial, await the init
// snapshot, announce the local user.
func (c *Client) connectOnce(ctx context.Context, workspaceID string, user *model.CollaborationUser) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	url := protocol.WorkspaceURL(c.opts.BaseURL, workspaceID, user.ID)
	conn, err := c.dialer.DialContext(dialCtx, url)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}

	if err := c.awaitInit(conn); err != nil {
		conn.Close()
		return err
	}

	// Make sure the local user appears in the mirrored session even before
	// the server echoes the join.
	joinFrame, err := protocol.NewFrame(protocol.MessageTypeJoin, protocol.JoinPayload{User: user})
	if err != nil {
		conn.Close()
		return err
	}
	if err := c.state.Apply(joinFrame); err != nil {
		conn.Close()
		return err
	}

	data, err := json.Marshal(joinFrame)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to marshal join frame: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send join frame: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mock = false
	c.lastPong = time.Now()
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop(conn, workspaceID, user)
	go c.pingLoop(conn)

	return nil
}

// awaitInit blocks until the server pushes the authoritative session
// snapshot, or the init timeout elapses.
func (c *Client) awaitInit(conn Conn) error {
	conn.SetReadDeadline(time.Now().Add(c.opts.InitTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("timed out waiting for init frame: %w", err)
		}
		frame, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warn("dropping malformed frame during handshake", zap.Error(err))
			continue
		}
		if frame.Type != protocol.MessageTypeInit {
			continue
		}
		if err := c.state.Apply(frame); err != nil {
			return fmt.Errorf("invalid init frame: %w", err)
		}
		return nil
	}
}

// readLoop pumps frames from the socket into session state and the
// dispatcher until the connection drops.
func (c *Client) readLoop(conn Conn, workspaceID string, user *model.CollaborationUser) {
	defer c.wg.Done()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionLoss(conn, workspaceID, user, err)
			return
		}

		frame, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		c.handleFrame(frame)
	}
}

// handleFrame applies a frame to session state, then fans it out. State is
// mutated before fanout so subscribers always observe consistent state.
func (c *Client) handleFrame(frame *protocol.Frame) {
	switch frame.Type {
	case protocol.MessageTypePong:
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()

	case protocol.MessageTypeError:
		var p protocol.ErrorPayload
		if err := protocol.DecodePayload(frame, &p); err == nil {
			c.log.Error("server reported error",
				zap.String("code", p.Code), zap.String("message", p.Message))
		}

	default:
		if err := c.state.Apply(frame); err != nil {
			// Unknown referents from remote frames are dropped silently;
			// everything else is worth a log line.
			c.log.Debug("frame not applied",
				zap.String("type", string(frame.Type)), zap.Error(err))
		}
	}

	c.dispatcher.Dispatch(frame)
}

// pingLoop sends a keepalive ping on each interval and proactively closes
// the connection when no pong has been observed within the pong timeout.
func (c *Client) pingLoop(conn Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				return
			}
			stale := time.Since(c.lastPong) > c.opts.PongTimeout
			c.mu.Unlock()

			if stale {
				c.log.Warn("no pong observed, treating connection as dead")
				conn.Close()
				return
			}
			if !c.writeFrame(conn, protocol.MessageTypePing, nil) {
				return
			}
		}
	}
}

// handleConnectionLoss runs the reconnect sequence after an unexpected
// socket close.
func (c *Client) handleConnectionLoss(conn Conn, workspaceID string, user *model.CollaborationUser, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		// Deliberate disconnect or an already superseded connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	// A normal closure is the server ending the session on purpose; only
	// abnormal closes enter the reconnect sequence.
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.log.Info("server closed the collaboration socket",
			zap.String("workspace", workspaceID))
		c.dispatcher.NotifyConnection(false)
		return
	}

	c.log.Warn("collaboration socket closed unexpectedly", zap.Error(cause))
	c.dispatcher.NotifyConnection(false)

	c.wg.Add(1)
	go c.reconnectLoop(workspaceID, user)
}

// reconnectLoop retries the connect sequence with exponential backoff.
// Exhausting the attempts trips the mock gate for the process lifetime
// and falls back to a mock session.
func (c *Client) reconnectLoop(workspaceID string, user *model.CollaborationUser) {
	defer c.wg.Done()

	for {
		delay, retry := c.recon.Next()
		if !retry {
			c.log.Warn("reconnect attempts exhausted, forcing mock mode permanently",
				zap.String("workspace", workspaceID))
			c.gate.Force()
			c.startMock(workspaceID, user)
			return
		}

		c.log.Info("scheduling reconnect attempt",
			zap.Int("attempt", c.recon.Attempt()), zap.Duration("delay", delay))

		select {
		case <-c.stop:
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.connectOnce(context.Background(), workspaceID, user); err != nil {
			c.log.Warn("reconnect attempt failed", zap.Error(err))
			continue
		}

		c.recon.Succeed()
		c.dispatcher.NotifyConnection(true)
		return
	}
}

// SendMessage transmits one frame. In mock mode it mutates local state for
// the cursor and comment kinds and reports success; in real mode it reports
// false when the socket is down. It never blocks on the network beyond the
// socket write itself.
func (c *Client) SendMessage(t protocol.MessageType, payload interface{}) bool {
	frame, err := protocol.NewFrame(t, payload)
	if err != nil {
		c.log.Warn("failed to build frame", zap.String("type", string(t)), zap.Error(err))
		return false
	}
	return c.send(frame)
}

// send transmits a pre-built frame, or absorbs it locally in mock mode.
func (c *Client) send(frame *protocol.Frame) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if c.mock {
		c.mu.Unlock()
		switch frame.Type {
		case protocol.MessageTypeCursorMove, protocol.MessageTypeCommentAdd:
			if err := c.state.Apply(frame); err != nil {
				c.log.Debug("mock frame not applied", zap.Error(err))
			}
		}
		return true
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return false
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}

// writeFrame writes a frame to a specific connection, serialized with all
// other writers.
func (c *Client) writeFrame(conn Conn, t protocol.MessageType, payload interface{}) bool {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}

// Disconnect leaves the workspace, closes the socket, stops all timers,
// and clears local session state. Connection subscribers are notified with
// false. The client cannot be reused afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	mock := c.mock
	user := c.user
	c.user = nil
	close(c.stop)
	c.mu.Unlock()

	if conn != nil && !mock && user != nil {
		if data, err := protocol.Encode(protocol.MessageTypeLeave, protocol.LeavePayload{UserID: user.ID}); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.Close()
	}

	c.state.Replace(nil)
	c.dispatcher.NotifyConnection(false)
	c.wg.Wait()
}

// OnMessage subscribes to one message kind. The returned function
// unsubscribes.
func (c *Client) OnMessage(t protocol.MessageType, fn MessageHandler) func() {
	return c.dispatcher.OnMessage(t, fn)
}

// OnConnectionChange subscribes to connection up/down transitions.
func (c *Client) OnConnectionChange(fn ConnectionHandler) func() {
	return c.dispatcher.OnConnectionChange(fn)
}

// Session returns the live shared session, or nil before Connect.
func (c *Client) Session() *model.CollaborationSession {
	return c.state.Session()
}

// SessionSnapshot returns a deep copy safe to hold across async boundaries.
func (c *Client) SessionSnapshot() *model.CollaborationSession {
	return c.state.Snapshot()
}

// CurrentUser returns the local user entry, or nil before Connect.
func (c *Client) CurrentUser() *model.CollaborationUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Connected reports whether the client has a usable session, real or mock.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && (c.conn != nil || c.mock)
}

// Mocked reports whether the client is running against a mock session.
func (c *Client) Mocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mock
}
