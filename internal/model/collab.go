// Package model defines the shared collaboration data types mirrored by
// every client connected to a workspace.
package model

import (
	"time"
)

// ChangeType classifies a change history entry.
type ChangeType string

const (
	ChangeTypeCreate         ChangeType = "create"
	ChangeTypeUpdate         ChangeType = "update"
	ChangeTypeDelete         ChangeType = "delete"
	ChangeTypeQuery          ChangeType = "query"
	ChangeTypeNLQuery        ChangeType = "nl-query"
	ChangeTypeDataConnection ChangeType = "data-connection"
)

// CursorPosition is a collaborator's live pointer position, relative to the
// client viewport. It is transient: overwritten on every update and never
// persisted.
type CursorPosition struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	ChartID   string    `json:"chartId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Selection is a collaborator's live selection range within a chart.
// Same transient lifecycle as CursorPosition.
type Selection struct {
	ChartID   string    `json:"chartId,omitempty"`
	ElementID string    `json:"elementId,omitempty"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CollaborationUser is one participant in a workspace session.
type CollaborationUser struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email,omitempty"`
	Avatar     string          `json:"avatar,omitempty"`
	Color      string          `json:"color"`
	Active     bool            `json:"active"`
	LastActive time.Time       `json:"lastActive"`
	Cursor     *CursorPosition `json:"cursor,omitempty"`
	Selection  *Selection      `json:"selection,omitempty"`
}

// Clone returns a deep copy of the user. Session state is shared by
// reference with subscribers, so consumers that need a stable view across
// an async boundary must clone first.
func (u *CollaborationUser) Clone() *CollaborationUser {
	if u == nil {
		return nil
	}
	c := *u
	if u.Cursor != nil {
		cur := *u.Cursor
		c.Cursor = &cur
	}
	if u.Selection != nil {
		sel := *u.Selection
		c.Selection = &sel
	}
	return &c
}

// Comment is an annotation on a workspace or a specific chart. Comments are
// never hard-deleted; resolution marks them closed while preserving the
// thread.
type Comment struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	ChartID    string          `json:"chartId,omitempty"`
	Text       string          `json:"text"`
	CreatedAt  time.Time       `json:"createdAt"`
	Resolved   bool            `json:"resolved"`
	ResolvedBy string          `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time      `json:"resolvedAt,omitempty"`
	Position   *CursorPosition `json:"position,omitempty"`
	Replies    []*Comment      `json:"replies,omitempty"`
	Reactions  map[string]int  `json:"reactions,omitempty"`
}

// Clone returns a deep copy of the comment, including replies.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	out := *c
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		out.ResolvedAt = &at
	}
	if c.Position != nil {
		pos := *c.Position
		out.Position = &pos
	}
	if c.Replies != nil {
		out.Replies = make([]*Comment, len(c.Replies))
		for i, r := range c.Replies {
			out.Replies[i] = r.Clone()
		}
	}
	if c.Reactions != nil {
		out.Reactions = make(map[string]int, len(c.Reactions))
		for k, v := range c.Reactions {
			out.Reactions[k] = v
		}
	}
	return &out
}

// ChangeDetails carries the payload of a change history entry: the affected
// chart and either before/after snapshots or the executed query text.
type ChangeDetails struct {
	ChartID         string `json:"chartId,omitempty"`
	Before          string `json:"before,omitempty"`
	After           string `json:"after,omitempty"`
	Query           string `json:"query,omitempty"`
	NaturalLanguage string `json:"naturalLanguage,omitempty"`
}

// ChangeHistoryEntry is an append-only audit record of a workspace mutation.
// Entries are never mutated after creation.
type ChangeHistoryEntry struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Timestamp   time.Time     `json:"timestamp"`
	Type        ChangeType    `json:"type"`
	Description string        `json:"description"`
	Details     ChangeDetails `json:"details"`
}

// CollaborationSession is the shared collaborative state for one open
// workspace, mirrored identically across all connected clients.
type CollaborationSession struct {
	ID            string                `json:"id"`
	WorkspaceID   string                `json:"workspaceId"`
	Users         []*CollaborationUser  `json:"users"`
	Comments      []*Comment            `json:"comments"`
	ChangeHistory []*ChangeHistoryEntry `json:"changeHistory"`
	CreatedAt     time.Time             `json:"createdAt"`
	LastActive    time.Time             `json:"lastActive"`
}

// Clone returns a deep copy of the session. Change history entries are
// immutable once appended, so the entry pointers are shared.
func (s *CollaborationSession) Clone() *CollaborationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Users = make([]*CollaborationUser, len(s.Users))
	for i, u := range s.Users {
		out.Users[i] = u.Clone()
	}
	out.Comments = make([]*Comment, len(s.Comments))
	for i, c := range s.Comments {
		out.Comments[i] = c.Clone()
	}
	out.ChangeHistory = append([]*ChangeHistoryEntry(nil), s.ChangeHistory...)
	return &out
}

// User returns the user with the given ID, or nil.
func (s *CollaborationSession) User(id string) *CollaborationUser {
	for _, u := range s.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// Comment returns the top-level comment with the given ID, or nil.
func (s *CollaborationSession) Comment(id string) *Comment {
	for _, c := range s.Comments {
		if c.ID == id {
			return c
		}
	}
	return nil
}
