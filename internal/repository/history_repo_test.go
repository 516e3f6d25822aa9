package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chartstudio/collab/internal/db"
	"github.com/chartstudio/collab/internal/model"
)

func newTestHistoryRepo(t *testing.T) (*HistoryRepository, context.Context) {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewHistoryRepository(testDB), context.Background()
}

func TestHistoryAppendAndList(t *testing.T) {
	repo, ctx := newTestHistoryRepo(t)
	workspaceID := generateID()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []*model.ChangeHistoryEntry{
		{
			ID:          "h1",
			UserID:      "u1",
			Timestamp:   base,
			Type:        model.ChangeTypeCreate,
			Description: "Created chart",
			Details:     model.ChangeDetails{ChartID: "chart-1"},
		},
		{
			ID:          "h2",
			UserID:      "u2",
			Timestamp:   base.Add(time.Second),
			Type:        model.ChangeTypeNLQuery,
			Description: "Asked: revenue by region",
			Details: model.ChangeDetails{
				ChartID:         "chart-1",
				Query:           "SELECT region, SUM(amount) FROM orders GROUP BY region",
				NaturalLanguage: "revenue by region",
			},
		},
		{
			ID:          "h3",
			UserID:      "u1",
			Timestamp:   base.Add(2 * time.Second),
			Type:        model.ChangeTypeUpdate,
			Description: "Changed aggregation",
			Details: model.ChangeDetails{
				ChartID: "chart-1",
				Before:  `{"agg":"day"}`,
				After:   `{"agg":"month"}`,
			},
		},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, workspaceID, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}

	listed, err := repo.ListByWorkspace(ctx, workspaceID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(listed))
	}

	// Oldest first.
	for i, want := range []string{"h1", "h2", "h3"} {
		if listed[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, listed[i].ID)
		}
	}

	nl := listed[1]
	if nl.Type != model.ChangeTypeNLQuery {
		t.Errorf("expected nl-query type, got %s", nl.Type)
	}
	if nl.Details.NaturalLanguage != "revenue by region" {
		t.Errorf("natural language not preserved: %q", nl.Details.NaturalLanguage)
	}
	if nl.Details.Query == "" {
		t.Errorf("query text not preserved")
	}

	upd := listed[2]
	if upd.Details.Before != `{"agg":"day"}` || upd.Details.After != `{"agg":"month"}` {
		t.Errorf("snapshots not preserved: %+v", upd.Details)
	}
}

func TestHistoryListLimit(t *testing.T) {
	repo, ctx := newTestHistoryRepo(t)
	workspaceID := generateID()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 10; i++ {
		entry := &model.ChangeHistoryEntry{
			ID:          fmt.Sprintf("h%d", i),
			UserID:      "u1",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Type:        model.ChangeTypeUpdate,
			Description: "edit",
		}
		if err := repo.Append(ctx, workspaceID, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	listed, err := repo.ListByWorkspace(ctx, workspaceID, 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 4 {
		t.Errorf("expected 4 entries with limit, got %d", len(listed))
	}
	if listed[0].ID != "h0" {
		t.Errorf("limit should keep oldest-first ordering, got %s first", listed[0].ID)
	}
}

func TestHistoryCountByWorkspace(t *testing.T) {
	repo, ctx := newTestHistoryRepo(t)

	wsA, wsB := generateID(), generateID()
	for i := 0; i < 3; i++ {
		entry := &model.ChangeHistoryEntry{
			ID:        fmt.Sprintf("a%d", i),
			UserID:    "u1",
			Timestamp: time.Now().UTC(),
			Type:      model.ChangeTypeQuery,
		}
		if err := repo.Append(ctx, wsA, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	count, err := repo.CountByWorkspace(ctx, wsA)
	if err != nil || count != 3 {
		t.Errorf("expected count 3, got %d (%v)", count, err)
	}

	count, err = repo.CountByWorkspace(ctx, wsB)
	if err != nil || count != 0 {
		t.Errorf("expected count 0 for empty workspace, got %d (%v)", count, err)
	}
}
