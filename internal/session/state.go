// Package session holds the mutable collaborative state of one workspace
// and applies inbound protocol frames to it. The same transitions run on
// the client (mirroring the server) and on the relay server (authoritative
// copy), so both sides converge on identical state for identical frame
// sequences.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/protocol"
)

// State wraps a CollaborationSession with a lock and the frame transition
// rules. Frames are applied in arrival order; no reordering or deduplication
// of the transport is performed, but idempotent re-delivery of the same
// comment or history entry (the server echo to the originator) is absorbed
// by ID.
type State struct {
	mu sync.RWMutex
	s  *model.CollaborationSession
}

// New creates a State around an existing session. A nil session is allowed;
// Apply of an init frame installs one.
func New(s *model.CollaborationSession) *State {
	return &State{s: s}
}

// Session returns the live session by reference. Callers that need a stable
// view across an async boundary must use Snapshot.
func (st *State) Session() *model.CollaborationSession {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Snapshot returns a deep copy of the session, or nil if none is installed.
func (st *State) Snapshot() *model.CollaborationSession {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Clone()
}

// Replace installs a new session, discarding the previous one.
func (st *State) Replace(s *model.CollaborationSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = s
}

// Apply runs the deterministic state transition for one frame. Referential
// errors (unknown user or comment) are reported so local callers can
// surface them; remote frame processing treats them as no-ops.
func (st *State) Apply(frame *protocol.Frame) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch frame.Type {
	case protocol.MessageTypeInit:
		var p protocol.InitPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		if p.Session == nil {
			return fmt.Errorf("init frame has no session")
		}
		st.s = p.Session
		return nil

	case protocol.MessageTypePing, protocol.MessageTypePong, protocol.MessageTypeError:
		// Liveness and error frames never touch session state.
		return nil
	}

	if st.s == nil {
		return model.ErrNotConnected
	}
	st.s.LastActive = time.Now()

	switch frame.Type {
	case protocol.MessageTypeJoin:
		var p protocol.JoinPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyJoin(p.User)

	case protocol.MessageTypeLeave:
		var p protocol.LeavePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyLeave(p.UserID)

	case protocol.MessageTypeCursorMove:
		var p protocol.CursorMovePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyCursor(p.UserID, p.Cursor)

	case protocol.MessageTypeSelectionChange:
		var p protocol.SelectionChangePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applySelection(p.UserID, p.Selection)

	case protocol.MessageTypeCommentAdd:
		var p protocol.CommentAddPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyCommentAdd(p.Comment)

	case protocol.MessageTypeCommentReply:
		var p protocol.CommentReplyPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyCommentReply(p.CommentID, p.Reply)

	case protocol.MessageTypeCommentResolve:
		var p protocol.CommentResolvePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyCommentResolve(p.CommentID, p.ResolvedBy, p.ResolvedAt)

	case protocol.MessageTypeChartUpdate:
		var p protocol.ChartUpdatePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyHistory(p.Entry)

	case protocol.MessageTypeQueryExecute:
		var p protocol.QueryExecutePayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyHistory(p.Entry)

	case protocol.MessageTypeChangeHistory:
		var p protocol.ChangeHistoryPayload
		if err := protocol.DecodePayload(frame, &p); err != nil {
			return err
		}
		return st.applyHistory(p.Entry)

	default:
		return fmt.Errorf("unhandled message type: %s", frame.Type)
	}
}

// applyJoin adds a user to the session. A repeated join for an ID already
// present refreshes the existing entry instead of creating a duplicate.
func (st *State) applyJoin(user *model.CollaborationUser) error {
	if user == nil {
		return fmt.Errorf("join frame has no user")
	}
	if existing := st.s.User(user.ID); existing != nil {
		existing.Name = user.Name
		existing.Email = user.Email
		existing.Avatar = user.Avatar
		if user.Color != "" {
			existing.Color = user.Color
		}
		existing.Active = true
		existing.LastActive = time.Now()
		return nil
	}
	user.Active = true
	if user.LastActive.IsZero() {
		user.LastActive = time.Now()
	}
	st.s.Users = append(st.s.Users, user)
	return nil
}

func (st *State) applyLeave(userID string) error {
	for i, u := range st.s.Users {
		if u.ID == userID {
			st.s.Users = append(st.s.Users[:i], st.s.Users[i+1:]...)
			return nil
		}
	}
	return model.ErrUserNotFound
}

func (st *State) applyCursor(userID string, cursor model.CursorPosition) error {
	u := st.s.User(userID)
	if u == nil {
		return model.ErrUserNotFound
	}
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now()
	}
	u.Cursor = &cursor
	u.LastActive = time.Now()
	return nil
}

func (st *State) applySelection(userID string, sel model.Selection) error {
	u := st.s.User(userID)
	if u == nil {
		return model.ErrUserNotFound
	}
	if sel.UpdatedAt.IsZero() {
		sel.UpdatedAt = time.Now()
	}
	u.Selection = &sel
	u.LastActive = time.Now()
	return nil
}

// applyCommentAdd appends a comment. Re-delivery of an ID already present
// (the server echoing an optimistic local add back to the originator)
// replaces the local copy with the canonical one.
func (st *State) applyCommentAdd(comment *model.Comment) error {
	if comment == nil {
		return fmt.Errorf("comment_add frame has no comment")
	}
	for i, c := range st.s.Comments {
		if c.ID == comment.ID {
			st.s.Comments[i] = comment
			return nil
		}
	}
	st.s.Comments = append(st.s.Comments, comment)
	return nil
}

func (st *State) applyCommentReply(commentID string, reply *model.Comment) error {
	if reply == nil {
		return fmt.Errorf("comment_reply frame has no reply")
	}
	parent := st.s.Comment(commentID)
	if parent == nil {
		return model.ErrCommentNotFound
	}
	for _, r := range parent.Replies {
		if r.ID == reply.ID {
			return nil
		}
	}
	parent.Replies = append(parent.Replies, reply)
	return nil
}

func (st *State) applyCommentResolve(commentID, resolvedBy string, resolvedAt time.Time) error {
	c := st.s.Comment(commentID)
	if c == nil {
		return model.ErrCommentNotFound
	}
	c.Resolved = true
	c.ResolvedBy = resolvedBy
	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}
	c.ResolvedAt = &resolvedAt
	return nil
}

// applyHistory appends an audit entry, absorbing echoed duplicates by ID.
func (st *State) applyHistory(entry *model.ChangeHistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("history frame has no entry")
	}
	for _, e := range st.s.ChangeHistory {
		if e.ID == entry.ID {
			return nil
		}
	}
	st.s.ChangeHistory = append(st.s.ChangeHistory, entry)
	return nil
}
