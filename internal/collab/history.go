package collab

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/protocol"
)

// RecordChartUpdate appends an audit entry for a chart mutation and
// transmits it. kind is one of create/update/delete; before and after are
// serialized chart snapshots.
func (c *Client) RecordChartUpdate(chartID string, kind model.ChangeType, description, before, after string) *model.ChangeHistoryEntry {
	entry := c.newHistoryEntry(kind, description, model.ChangeDetails{
		ChartID: chartID,
		Before:  before,
		After:   after,
	})
	if entry == nil {
		return nil
	}
	c.applyAndSendHistory(protocol.MessageTypeChartUpdate, protocol.ChartUpdatePayload{
		ChartID: chartID,
		Entry:   entry,
	})
	return entry
}

// AddQueryExecution appends an audit entry for an executed query. When a
// natural-language query string is supplied the entry type is nl-query and
// the description embeds that string verbatim; otherwise the type is query.
func (c *Client) AddQueryExecution(chartID, query, naturalLanguage string) *model.ChangeHistoryEntry {
	kind := model.ChangeTypeQuery
	description := "Executed query"
	if naturalLanguage != "" {
		kind = model.ChangeTypeNLQuery
		description = fmt.Sprintf("Asked: %s", naturalLanguage)
	}

	entry := c.newHistoryEntry(kind, description, model.ChangeDetails{
		ChartID:         chartID,
		Query:           query,
		NaturalLanguage: naturalLanguage,
	})
	if entry == nil {
		return nil
	}
	c.applyAndSendHistory(protocol.MessageTypeQueryExecute, protocol.QueryExecutePayload{
		ChartID: chartID,
		Query:   query,
		Entry:   entry,
	})
	return entry
}

// RecordDataConnection appends an audit entry for a data-source connection.
func (c *Client) RecordDataConnection(description string) *model.ChangeHistoryEntry {
	entry := c.newHistoryEntry(model.ChangeTypeDataConnection, description, model.ChangeDetails{})
	if entry == nil {
		return nil
	}
	c.applyAndSendHistory(protocol.MessageTypeChangeHistory, protocol.ChangeHistoryPayload{Entry: entry})
	return entry
}

func (c *Client) newHistoryEntry(kind model.ChangeType, description string, details model.ChangeDetails) *model.ChangeHistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.user == nil {
		return nil
	}
	return &model.ChangeHistoryEntry{
		ID:          uuid.New().String(),
		UserID:      c.user.ID,
		Timestamp:   time.Now(),
		Type:        kind,
		Description: description,
		Details:     details,
	}
}

func (c *Client) applyAndSendHistory(t protocol.MessageType, payload interface{}) {
	frame, err := protocol.NewFrame(t, payload)
	if err != nil {
		return
	}
	if err := c.state.Apply(frame); err != nil {
		return
	}
	c.send(frame)
}
