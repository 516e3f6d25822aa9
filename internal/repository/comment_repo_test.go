package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chartstudio/collab/internal/db"
	"github.com/chartstudio/collab/internal/model"
)

// generateID generates a unique ID for testing.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func newTestRepo(t *testing.T) (*CommentRepository, context.Context) {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewCommentRepository(testDB), context.Background()
}

func TestCommentRoundTripProperty(t *testing.T) {
	repo, ctx := newTestRepo(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	nonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 100
	})

	properties.Property("created comments can be listed back intact", prop.ForAll(
		func(text, userID string) bool {
			workspaceID := generateID()
			comment := &model.Comment{
				ID:        generateID(),
				UserID:    userID,
				ChartID:   "chart-1",
				Text:      text,
				CreatedAt: time.Now().UTC().Truncate(time.Second),
				Position:  &model.CursorPosition{X: 12, Y: 34, ChartID: "chart-1"},
				Reactions: map[string]int{"👍": 2},
			}

			if err := repo.Create(ctx, workspaceID, "", comment); err != nil {
				return false
			}

			listed, err := repo.ListByWorkspace(ctx, workspaceID)
			if err != nil || len(listed) != 1 {
				return false
			}

			got := listed[0]
			return got.ID == comment.ID &&
				got.UserID == userID &&
				got.ChartID == "chart-1" &&
				got.Text == text &&
				!got.Resolved &&
				got.Position != nil && got.Position.X == 12 &&
				got.Reactions["👍"] == 2
		},
		nonEmptyString,
		nonEmptyString,
	))

	properties.TestingRun(t)
}

func TestListByWorkspaceNestsReplies(t *testing.T) {
	repo, ctx := newTestRepo(t)
	workspaceID := generateID()

	base := time.Now().UTC().Truncate(time.Second)
	parent := &model.Comment{ID: "parent", UserID: "u1", Text: "root", CreatedAt: base}
	replyA := &model.Comment{ID: "reply-a", UserID: "u2", Text: "first", CreatedAt: base.Add(time.Second)}
	replyB := &model.Comment{ID: "reply-b", UserID: "u1", Text: "second", CreatedAt: base.Add(2 * time.Second)}
	other := &model.Comment{ID: "other", UserID: "u2", Text: "standalone", CreatedAt: base.Add(3 * time.Second)}

	if err := repo.Create(ctx, workspaceID, "", parent); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if err := repo.Create(ctx, workspaceID, parent.ID, replyA); err != nil {
		t.Fatalf("create reply: %v", err)
	}
	if err := repo.Create(ctx, workspaceID, parent.ID, replyB); err != nil {
		t.Fatalf("create reply: %v", err)
	}
	if err := repo.Create(ctx, workspaceID, "", other); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	listed, err := repo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(listed) != 2 {
		t.Fatalf("expected 2 top-level comments, got %d", len(listed))
	}
	if listed[0].ID != "parent" || listed[1].ID != "other" {
		t.Errorf("unexpected top-level order: %s, %s", listed[0].ID, listed[1].ID)
	}
	if len(listed[0].Replies) != 2 {
		t.Fatalf("expected 2 nested replies, got %d", len(listed[0].Replies))
	}
	if listed[0].Replies[0].ID != "reply-a" || listed[0].Replies[1].ID != "reply-b" {
		t.Errorf("unexpected reply order: %s, %s", listed[0].Replies[0].ID, listed[0].Replies[1].ID)
	}
	if len(listed[1].Replies) != 0 {
		t.Errorf("standalone comment should have no replies")
	}
}

func TestListByWorkspaceIsolation(t *testing.T) {
	repo, ctx := newTestRepo(t)

	wsA, wsB := generateID(), generateID()
	if err := repo.Create(ctx, wsA, "", &model.Comment{ID: "a1", UserID: "u1", Text: "in A", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}

	listed, err := repo.ListByWorkspace(ctx, wsB)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("expected no comments in workspace B, got %d", len(listed))
	}
}

func TestResolve(t *testing.T) {
	repo, ctx := newTestRepo(t)
	workspaceID := generateID()

	comment := &model.Comment{ID: "c1", UserID: "u1", Text: "open", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, workspaceID, "", comment); err != nil {
		t.Fatalf("create: %v", err)
	}

	resolvedAt := time.Now().UTC().Truncate(time.Second)
	if err := repo.Resolve(ctx, "c1", "u2", resolvedAt); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	listed, err := repo.ListByWorkspace(ctx, workspaceID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("list after resolve: %v", err)
	}
	got := listed[0]
	if !got.Resolved {
		t.Errorf("expected comment resolved")
	}
	if got.ResolvedBy != "u2" {
		t.Errorf("expected resolved_by u2, got %s", got.ResolvedBy)
	}
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(resolvedAt) {
		t.Errorf("expected resolved_at %v, got %v", resolvedAt, got.ResolvedAt)
	}
}

func TestResolveUnknownComment(t *testing.T) {
	repo, ctx := newTestRepo(t)

	err := repo.Resolve(ctx, "no-such-comment", "u1", time.Now())
	if err != model.ErrCommentNotFound {
		t.Errorf("expected ErrCommentNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	repo, ctx := newTestRepo(t)
	workspaceID := generateID()

	if err := repo.Create(ctx, workspaceID, "", &model.Comment{ID: "c1", UserID: "u1", Text: "x", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := repo.Exists(ctx, "c1")
	if err != nil || !ok {
		t.Errorf("expected comment to exist, got %v %v", ok, err)
	}

	ok, err = repo.Exists(ctx, "c404")
	if err != nil || ok {
		t.Errorf("expected comment to not exist, got %v %v", ok, err)
	}
}

func TestCreateOmitsNullableColumns(t *testing.T) {
	repo, ctx := newTestRepo(t)
	workspaceID := generateID()

	// No chart, no position, no reactions.
	minimal := &model.Comment{ID: "bare", UserID: "u1", Text: "minimal", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, workspaceID, "", minimal); err != nil {
		t.Fatalf("create: %v", err)
	}

	listed, err := repo.ListByWorkspace(ctx, workspaceID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("list: %v", err)
	}
	got := listed[0]
	if got.ChartID != "" || got.Position != nil || got.Reactions != nil || got.ResolvedAt != nil {
		t.Errorf("nullable columns should round-trip as zero values: %+v", got)
	}
}
