package collab

import (
	"math"
	"time"

	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/protocol"
)

// UpdateCursorPosition records the local user's cursor and transmits it.
// Updates within the configured pixel radius of the last transmitted
// position on the same chart context are suppressed and return false.
// The owning UI is expected to debounce raw mouse samples on top of this.
func (c *Client) UpdateCursorPosition(x, y float64, chartID string) bool {
	c.mu.Lock()
	if c.closed || c.user == nil {
		c.mu.Unlock()
		return false
	}
	if last := c.lastSentCursor; last != nil && last.ChartID == chartID {
		if math.Hypot(x-last.X, y-last.Y) < c.opts.CursorThreshold {
			c.mu.Unlock()
			return false
		}
	}
	userID := c.user.ID
	c.mu.Unlock()

	cursor := model.CursorPosition{
		X:         x,
		Y:         y,
		ChartID:   chartID,
		UpdatedAt: time.Now(),
	}
	frame, err := protocol.NewFrame(protocol.MessageTypeCursorMove, protocol.CursorMovePayload{
		UserID: userID,
		Cursor: cursor,
	})
	if err != nil {
		return false
	}
	if err := c.state.Apply(frame); err != nil {
		return false
	}

	// Only a transmitted position participates in the hysteresis check.
	c.mu.Lock()
	c.lastSentCursor = &cursor
	c.mu.Unlock()

	c.send(frame)
	return true
}

// UpdateSelection records the local user's selection and transmits it.
// Selections carry no hysteresis; every change is sent.
func (c *Client) UpdateSelection(chartID, elementID string, start, end int) bool {
	c.mu.Lock()
	if c.closed || c.user == nil {
		c.mu.Unlock()
		return false
	}
	userID := c.user.ID
	c.mu.Unlock()

	sel := model.Selection{
		ChartID:   chartID,
		ElementID: elementID,
		Start:     start,
		End:       end,
		UpdatedAt: time.Now(),
	}
	frame, err := protocol.NewFrame(protocol.MessageTypeSelectionChange, protocol.SelectionChangePayload{
		UserID:    userID,
		Selection: sel,
	})
	if err != nil {
		return false
	}
	if err := c.state.Apply(frame); err != nil {
		return false
	}
	c.send(frame)
	return true
}

// ActiveUsers returns a snapshot of the collaborators currently flagged
// active, excluding the local user.
func (c *Client) ActiveUsers() []*model.CollaborationUser {
	c.mu.Lock()
	local := c.user
	c.mu.Unlock()

	s := c.state.Snapshot()
	if s == nil {
		return nil
	}
	var out []*model.CollaborationUser
	for _, u := range s.Users {
		if local != nil && u.ID == local.ID {
			continue
		}
		if u.Active {
			out = append(out, u)
		}
	}
	return out
}
