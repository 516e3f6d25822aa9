// Package protocol defines the JSON frame format exchanged between
// collaboration clients and the relay server.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chartstudio/collab/internal/model"
)

// MessageType tags a frame with its kind.
type MessageType string

const (
	MessageTypeInit            MessageType = "init"
	MessageTypeJoin            MessageType = "join"
	MessageTypeLeave           MessageType = "leave"
	MessageTypeCursorMove      MessageType = "cursor_move"
	MessageTypeSelectionChange MessageType = "selection_change"
	MessageTypeCommentAdd      MessageType = "comment_add"
	MessageTypeCommentReply    MessageType = "comment_reply"
	MessageTypeCommentResolve  MessageType = "comment_resolve"
	MessageTypeChartUpdate     MessageType = "chart_update"
	MessageTypeQueryExecute    MessageType = "query_execute"
	MessageTypeChangeHistory   MessageType = "change_history"
	MessageTypeError           MessageType = "error"
	MessageTypePing            MessageType = "ping"
	MessageTypePong            MessageType = "pong"
)

// Frame is one JSON message on the wire: `{"type": ..., "data": ...}`.
type Frame struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InitPayload carries the authoritative session snapshot pushed by the
// server immediately after the socket opens.
type InitPayload struct {
	Session *model.CollaborationSession `json:"session"`
}

// JoinPayload announces a user entering the workspace.
type JoinPayload struct {
	User *model.CollaborationUser `json:"user"`
}

// LeavePayload announces a user leaving the workspace.
type LeavePayload struct {
	UserID string `json:"userId"`
}

// CursorMovePayload carries an ephemeral cursor update.
type CursorMovePayload struct {
	UserID string               `json:"userId"`
	Cursor model.CursorPosition `json:"cursor"`
}

// SelectionChangePayload carries an ephemeral selection update.
type SelectionChangePayload struct {
	UserID    string          `json:"userId"`
	Selection model.Selection `json:"selection"`
}

// CommentAddPayload carries a new top-level comment.
type CommentAddPayload struct {
	Comment *model.Comment `json:"comment"`
}

// CommentReplyPayload carries a reply to an existing comment.
type CommentReplyPayload struct {
	CommentID string         `json:"commentId"`
	Reply     *model.Comment `json:"reply"`
}

// CommentResolvePayload marks a comment resolved.
type CommentResolvePayload struct {
	CommentID  string    `json:"commentId"`
	ResolvedBy string    `json:"resolvedBy"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// ChartUpdatePayload announces a chart mutation alongside its audit entry.
type ChartUpdatePayload struct {
	ChartID string                    `json:"chartId"`
	Entry   *model.ChangeHistoryEntry `json:"entry"`
}

// QueryExecutePayload announces a query execution alongside its audit entry.
type QueryExecutePayload struct {
	ChartID string                    `json:"chartId,omitempty"`
	Query   string                    `json:"query"`
	Entry   *model.ChangeHistoryEntry `json:"entry"`
}

// ChangeHistoryPayload carries a bare audit entry.
type ChangeHistoryPayload struct {
	Entry *model.ChangeHistoryEntry `json:"entry"`
}

// ErrorPayload is a server-reported logical error.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewFrame wraps a typed payload in a frame envelope.
func NewFrame(t MessageType, payload interface{}) (*Frame, error) {
	frame := &Frame{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		frame.Data = data
	}
	return frame, nil
}

// Encode marshals a typed payload into a complete wire frame.
func Encode(t MessageType, payload interface{}) ([]byte, error) {
	frame, err := NewFrame(t, payload)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return out, nil
}

// Decode parses a raw wire message into a frame. Malformed frames are
// reported as errors; callers log and drop them.
func Decode(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("frame has no type")
	}
	return &frame, nil
}

// DecodePayload parses a frame's data into the given payload struct.
func DecodePayload(frame *Frame, payload interface{}) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("%s frame has no data", frame.Type)
	}
	if err := json.Unmarshal(frame.Data, payload); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", frame.Type, err)
	}
	return nil
}

// WorkspaceURL builds the WebSocket endpoint for a workspace/user pair:
// <base>/ws/workspace/{workspaceID}/user/{userID}.
func WorkspaceURL(base, workspaceID, userID string) string {
	return fmt.Sprintf("%s/ws/workspace/%s/user/%s", strings.TrimRight(base, "/"), workspaceID, userID)
}
