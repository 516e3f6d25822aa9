package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chartstudio/collab/internal/metrics"
	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next frame from the peer. The client sends
	// an application-level ping every 30 seconds.
	readWait = 120 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Handler upgrades HTTP connections and processes inbound frames for
// workspace hubs.
type Handler struct {
	service  *Service
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler.
func NewHandler(service *Service, log *zap.Logger, checkOrigin func(r *http.Request) bool) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// HandleConnection upgrades the HTTP connection and attaches the client to
// the workspace hub. The init snapshot is pushed immediately; join/leave
// are driven both by frames and by the socket lifecycle.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, workspaceID, userID string) error {
	hub, err := h.service.Workspace(r.Context(), workspaceID)
	if err != nil {
		http.Error(w, "Failed to load workspace", http.StatusInternalServerError)
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(hub, conn, userID)
	hub.Register(client)

	// Push the authoritative session snapshot before anything else; the
	// client abandons the connection if init does not arrive promptly.
	h.sendInit(client, hub)

	go h.writePump(client)
	go h.readPump(client, hub)

	return nil
}

// sendInit sends the session snapshot to a newly attached client.
func (h *Handler) sendInit(client *Client, hub *Hub) {
	data, err := protocol.Encode(protocol.MessageTypeInit, protocol.InitPayload{
		Session: hub.State().Snapshot(),
	})
	if err != nil {
		h.log.Error("failed to marshal init frame", zap.Error(err))
		return
	}
	client.Send(data)
}

// readPump pumps frames from the WebSocket connection into the hub.
func (h *Handler) readPump(client *Client, hub *Hub) {
	defer func() {
		h.handleDeparture(client, hub)
		hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(readWait))

	for {
		_, raw, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", zap.String("user", client.UserID()), zap.Error(err))
			}
			break
		}
		client.Conn().SetReadDeadline(time.Now().Add(readWait))

		frame, err := protocol.Decode(raw)
		if err != nil {
			h.log.Warn("dropping malformed frame", zap.Error(err))
			metrics.FramesDropped.WithLabelValues("malformed").Inc()
			continue
		}

		h.handleFrame(client, hub, frame)
	}
}

// writePump pumps queued messages to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	defer client.Conn().Close()

	for message := range client.SendChan() {
		client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
		// Send each message in a separate text frame so clients can parse
		// them independently.
		if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
	client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
}

// handleFrame applies one inbound frame to the hub session, persists what
// is durable, and relays it to every client including the originator.
func (h *Handler) handleFrame(client *Client, hub *Hub, frame *protocol.Frame) {
	ctx := context.Background()

	switch frame.Type {
	case protocol.MessageTypePing:
		data, err := protocol.Encode(protocol.MessageTypePong, nil)
		if err == nil {
			client.Send(data)
		}
		return

	case protocol.MessageTypePong:
		return

	case protocol.MessageTypeInit:
		// Only the server originates init.
		metrics.FramesDropped.WithLabelValues("unexpected_init").Inc()
		return

	case protocol.MessageTypeCursorMove, protocol.MessageTypeSelectionChange:
		if !client.AllowPresence() {
			metrics.FramesDropped.WithLabelValues("rate_limited").Inc()
			return
		}
		if err := hub.State().Apply(frame); err != nil {
			h.log.Debug("presence frame not applied", zap.Error(err))
			metrics.FramesDropped.WithLabelValues("not_applied").Inc()
			return
		}
		h.relay(hub, frame)
		return

	case protocol.MessageTypeJoin, protocol.MessageTypeLeave:
		// Membership frames only speak for the connection's own identity.
		if who := membershipUserOf(frame); who != client.UserID() {
			h.log.Warn("membership frame does not match connection identity",
				zap.String("conn_user", client.UserID()), zap.String("frame_user", who))
			metrics.FramesDropped.WithLabelValues("identity_mismatch").Inc()
			return
		}
		if err := hub.State().Apply(frame); err != nil {
			h.log.Debug("membership frame not applied",
				zap.String("type", string(frame.Type)), zap.Error(err))
			metrics.FramesDropped.WithLabelValues("not_applied").Inc()
			return
		}
		h.relay(hub, frame)
		return

	case protocol.MessageTypeCommentAdd:
		var p protocol.CommentAddPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			metrics.FramesDropped.WithLabelValues("malformed").Inc()
			return
		}
		if err := hub.State().Apply(frame); err != nil {
			metrics.FramesDropped.WithLabelValues("not_applied").Inc()
			return
		}
		if err := h.service.Comments().Create(ctx, hub.WorkspaceID(), "", p.Comment); err != nil {
			h.log.Error("failed to persist comment", zap.Error(err))
		}
		metrics.CommentsCreated.Inc()
		h.relay(hub, frame)
		return

	case protocol.MessageTypeCommentReply:
		var p protocol.CommentReplyPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			metrics.FramesDropped.WithLabelValues("malformed").Inc()
			return
		}
		if err := hub.State().Apply(frame); err != nil {
			// Unknown parent: tell the sender, do not relay.
			h.sendError(client, "COMMENT_NOT_FOUND", "reply references unknown comment "+p.CommentID)
			metrics.FramesDropped.WithLabelValues("unknown_referent").Inc()
			return
		}
		if err := h.service.Comments().Create(ctx, hub.WorkspaceID(), p.CommentID, p.Reply); err != nil {
			h.log.Error("failed to persist reply", zap.Error(err))
		}
		metrics.CommentsCreated.Inc()
		h.relay(hub, frame)
		return

	case protocol.MessageTypeCommentResolve:
		var p protocol.CommentResolvePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			metrics.FramesDropped.WithLabelValues("malformed").Inc()
			return
		}
		if err := hub.State().Apply(frame); err != nil {
			h.sendError(client, "COMMENT_NOT_FOUND", "resolve references unknown comment "+p.CommentID)
			metrics.FramesDropped.WithLabelValues("unknown_referent").Inc()
			return
		}
		if err := h.service.Comments().Resolve(ctx, p.CommentID, p.ResolvedBy, p.ResolvedAt); err != nil {
			h.log.Error("failed to persist resolution", zap.Error(err))
		}
		h.relay(hub, frame)
		return

	case protocol.MessageTypeChartUpdate, protocol.MessageTypeQueryExecute, protocol.MessageTypeChangeHistory:
		entry := historyEntryOf(frame)
		if entry == nil {
			metrics.FramesDropped.WithLabelValues("malformed").Inc()
			return
		}
		if err := hub.State().Apply(frame); err != nil {
			metrics.FramesDropped.WithLabelValues("not_applied").Inc()
			return
		}
		hub.Recent().Append(entry)
		if err := h.service.History().Append(ctx, hub.WorkspaceID(), entry); err != nil {
			h.log.Error("failed to persist change history entry", zap.Error(err))
		}
		metrics.HistoryEntries.WithLabelValues(string(entry.Type)).Inc()
		h.relay(hub, frame)
		return

	case protocol.MessageTypeError:
		var p protocol.ErrorPayload
		if err := protocol.DecodePayload(frame, &p); err == nil {
			h.log.Warn("client reported error",
				zap.String("user", client.UserID()), zap.String("message", p.Message))
		}
		return

	default:
		metrics.FramesDropped.WithLabelValues("unknown_type").Inc()
	}
}

// handleDeparture synthesizes a leave when the socket closes without one.
func (h *Handler) handleDeparture(client *Client, hub *Hub) {
	if hub.State().Session() == nil || hub.State().Session().User(client.UserID()) == nil {
		return
	}
	frame, err := protocol.NewFrame(protocol.MessageTypeLeave, protocol.LeavePayload{UserID: client.UserID()})
	if err != nil {
		return
	}
	if err := hub.State().Apply(frame); err != nil {
		return
	}
	h.relay(hub, frame)
}

// relay broadcasts an already-applied frame to every client in the hub.
func (h *Handler) relay(hub *Hub, frame *protocol.Frame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("failed to marshal relay frame", zap.Error(err))
		return
	}
	hub.Broadcast(raw)
	metrics.FramesRelayed.WithLabelValues(string(frame.Type)).Inc()
}

// sendError reports a logical error back to one client only.
func (h *Handler) sendError(client *Client, code, message string) {
	data, err := protocol.Encode(protocol.MessageTypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	client.Send(data)
}

// membershipUserOf extracts the user ID a join or leave frame speaks for.
func membershipUserOf(frame *protocol.Frame) string {
	switch frame.Type {
	case protocol.MessageTypeJoin:
		var p protocol.JoinPayload
		if err := protocol.DecodePayload(frame, &p); err != nil || p.User == nil {
			return ""
		}
		return p.User.ID
	case protocol.MessageTypeLeave:
		var p protocol.LeavePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return ""
		}
		return p.UserID
	default:
		return ""
	}
}

// historyEntryOf extracts the audit entry from any of the three
// history-bearing frame kinds.
func historyEntryOf(frame *protocol.Frame) *model.ChangeHistoryEntry {
	switch frame.Type {
	case protocol.MessageTypeChartUpdate:
		var p protocol.ChartUpdatePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return nil
		}
		return p.Entry
	case protocol.MessageTypeQueryExecute:
		var p protocol.QueryExecutePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return nil
		}
		return p.Entry
	case protocol.MessageTypeChangeHistory:
		var p protocol.ChangeHistoryPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return nil
		}
		return p.Entry
	default:
		return nil
	}
}
