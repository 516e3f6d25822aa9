package collab

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/chartstudio/collab/internal/model"
)

// userPalette is the fixed set of display colors assigned to collaborators.
// With more than eight users colors repeat; collisions are tolerated.
var userPalette = []string{
	"#3B82F6", // blue
	"#EF4444", // red
	"#10B981", // green
	"#F59E0B", // amber
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#14B8A6", // teal
	"#F97316", // orange
}

// pickColor returns a random palette color.
func pickColor() string {
	return userPalette[rand.Intn(len(userPalette))]
}

// newMockSession synthesizes a complete session for the given workspace:
// the local user plus sample collaborators, comments, and change history.
// It exists so the UI is fully exercisable without a live backend, and is
// indistinguishable to callers from a real session except that outgoing
// messages never leave the process.
func newMockSession(workspaceID string, local *model.CollaborationUser) *model.CollaborationSession {
	now := time.Now()

	alice := &model.CollaborationUser{
		ID:         "mock-user-alice",
		Name:       "Alice Rivera",
		Email:      "alice@example.com",
		Color:      userPalette[1],
		Active:     true,
		LastActive: now.Add(-2 * time.Minute),
		Cursor: &model.CursorPosition{
			X:         420,
			Y:         180,
			ChartID:   "chart-revenue",
			UpdatedAt: now.Add(-2 * time.Minute),
		},
	}
	ben := &model.CollaborationUser{
		ID:         "mock-user-ben",
		Name:       "Ben Okafor",
		Email:      "ben@example.com",
		Color:      userPalette[2],
		Active:     false,
		LastActive: now.Add(-25 * time.Minute),
	}

	resolvedAt := now.Add(-10 * time.Minute)
	comments := []*model.Comment{
		{
			ID:        uuid.New().String(),
			UserID:    alice.ID,
			ChartID:   "chart-revenue",
			Text:      "Can we switch this to a monthly rollup? The daily view is too noisy.",
			CreatedAt: now.Add(-40 * time.Minute),
			Replies: []*model.Comment{
				{
					ID:        uuid.New().String(),
					UserID:    ben.ID,
					Text:      "Agreed, monthly reads much better for the exec deck.",
					CreatedAt: now.Add(-35 * time.Minute),
				},
			},
		},
		{
			ID:         uuid.New().String(),
			UserID:     ben.ID,
			Text:       "Connected the staging warehouse for the churn numbers.",
			CreatedAt:  now.Add(-55 * time.Minute),
			Resolved:   true,
			ResolvedBy: alice.ID,
			ResolvedAt: &resolvedAt,
		},
	}

	history := []*model.ChangeHistoryEntry{
		{
			ID:          uuid.New().String(),
			UserID:      alice.ID,
			Timestamp:   now.Add(-45 * time.Minute),
			Type:        model.ChangeTypeCreate,
			Description: "Created chart \"Revenue by Region\"",
			Details:     model.ChangeDetails{ChartID: "chart-revenue"},
		},
		{
			ID:          uuid.New().String(),
			UserID:      ben.ID,
			Timestamp:   now.Add(-20 * time.Minute),
			Type:        model.ChangeTypeQuery,
			Description: "Executed query against orders",
			Details: model.ChangeDetails{
				ChartID: "chart-revenue",
				Query:   "SELECT region, SUM(amount) FROM orders GROUP BY region",
			},
		},
	}

	return &model.CollaborationSession{
		ID:            fmt.Sprintf("mock-session-%s", uuid.New().String()[:8]),
		WorkspaceID:   workspaceID,
		Users:         []*model.CollaborationUser{local, alice, ben},
		Comments:      comments,
		ChangeHistory: history,
		CreatedAt:     now.Add(-time.Hour),
		LastActive:    now,
	}
}
