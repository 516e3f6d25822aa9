package collab

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/protocol"
)

// AddComment creates a comment, applies it to the local session
// immediately, and transmits it. The server echo re-delivers the canonical
// copy; there is no rollback path if the server rejects the change.
// It returns nil when no session is active.
func (c *Client) AddComment(text, chartID string, position *model.CursorPosition) *model.Comment {
	c.mu.Lock()
	if c.closed || c.user == nil {
		c.mu.Unlock()
		return nil
	}
	userID := c.user.ID
	c.mu.Unlock()

	comment := &model.Comment{
		ID:        uuid.New().String(),
		UserID:    userID,
		ChartID:   chartID,
		Text:      text,
		CreatedAt: time.Now(),
		Position:  position,
	}

	frame, err := protocol.NewFrame(protocol.MessageTypeCommentAdd, protocol.CommentAddPayload{Comment: comment})
	if err != nil {
		return nil
	}
	if err := c.state.Apply(frame); err != nil {
		c.log.Warn("failed to apply local comment", zap.Error(err))
		return nil
	}
	c.send(frame)
	return comment
}

// AddCommentReply appends a reply to an existing comment. Unlike remote
// frames, which silently drop unknown referents, the local caller gets
// model.ErrCommentNotFound and session state is left unchanged.
func (c *Client) AddCommentReply(commentID, text string) (*model.Comment, error) {
	c.mu.Lock()
	if c.closed || c.user == nil {
		c.mu.Unlock()
		return nil, model.ErrNotConnected
	}
	userID := c.user.ID
	c.mu.Unlock()

	reply := &model.Comment{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now(),
	}

	frame, err := protocol.NewFrame(protocol.MessageTypeCommentReply, protocol.CommentReplyPayload{
		CommentID: commentID,
		Reply:     reply,
	})
	if err != nil {
		return nil, err
	}
	if err := c.state.Apply(frame); err != nil {
		return nil, err
	}
	c.send(frame)
	return reply, nil
}

// ResolveComment marks a comment resolved by the local user.
func (c *Client) ResolveComment(commentID string) error {
	c.mu.Lock()
	if c.closed || c.user == nil {
		c.mu.Unlock()
		return model.ErrNotConnected
	}
	userID := c.user.ID
	c.mu.Unlock()

	frame, err := protocol.NewFrame(protocol.MessageTypeCommentResolve, protocol.CommentResolvePayload{
		CommentID:  commentID,
		ResolvedBy: userID,
		ResolvedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if err := c.state.Apply(frame); err != nil {
		return err
	}
	c.send(frame)
	return nil
}
