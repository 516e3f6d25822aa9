// Package repository provides SQLite data access for durable workspace
// state: comments and change history.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chartstudio/collab/internal/model"
)

// CommentRepository provides data access for comments. Replies are stored
// as rows referencing their parent; positions and reactions are stored as
// JSON columns.
type CommentRepository struct {
	db *sql.DB
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a comment. parentID is empty for top-level comments.
func (r *CommentRepository) Create(ctx context.Context, workspaceID, parentID string, comment *model.Comment) error {
	positionJSON, err := marshalNullable(comment.Position)
	if err != nil {
		return fmt.Errorf("failed to serialize position: %w", err)
	}
	reactionsJSON, err := marshalNullable(comment.Reactions)
	if err != nil {
		return fmt.Errorf("failed to serialize reactions: %w", err)
	}

	query := `
		INSERT INTO comments (id, workspace_id, parent_id, user_id, chart_id, text, position, reactions, resolved, resolved_by, resolved_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		comment.ID,
		workspaceID,
		nullString(parentID),
		comment.UserID,
		nullString(comment.ChartID),
		comment.Text,
		positionJSON,
		reactionsJSON,
		comment.Resolved,
		nullString(comment.ResolvedBy),
		comment.ResolvedAt,
		comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	return nil
}

// ListByWorkspace retrieves all comments for a workspace with replies
// nested under their parents, ordered by creation time.
func (r *CommentRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Comment, error) {
	query := `
		SELECT id, parent_id, user_id, chart_id, text, position, reactions, resolved, resolved_by, resolved_at, created_at
		FROM comments
		WHERE workspace_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var top []*model.Comment
	byID := make(map[string]*model.Comment)
	type pending struct {
		parentID string
		comment  *model.Comment
	}
	var replies []pending

	for rows.Next() {
		comment := &model.Comment{}
		var parentID sql.NullString
		var chartID sql.NullString
		var positionJSON sql.NullString
		var reactionsJSON sql.NullString
		var resolvedBy sql.NullString
		var resolvedAt sql.NullTime

		err := rows.Scan(
			&comment.ID,
			&parentID,
			&comment.UserID,
			&chartID,
			&comment.Text,
			&positionJSON,
			&reactionsJSON,
			&comment.Resolved,
			&resolvedBy,
			&resolvedAt,
			&comment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		if chartID.Valid {
			comment.ChartID = chartID.String
		}
		if resolvedBy.Valid {
			comment.ResolvedBy = resolvedBy.String
		}
		if resolvedAt.Valid {
			at := resolvedAt.Time
			comment.ResolvedAt = &at
		}
		if positionJSON.Valid {
			if err := json.Unmarshal([]byte(positionJSON.String), &comment.Position); err != nil {
				return nil, fmt.Errorf("failed to parse position: %w", err)
			}
		}
		if reactionsJSON.Valid {
			if err := json.Unmarshal([]byte(reactionsJSON.String), &comment.Reactions); err != nil {
				return nil, fmt.Errorf("failed to parse reactions: %w", err)
			}
		}

		byID[comment.ID] = comment
		if parentID.Valid && parentID.String != "" {
			replies = append(replies, pending{parentID: parentID.String, comment: comment})
		} else {
			top = append(top, comment)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	// Attach replies after the full scan so ordering of rows does not matter.
	for _, p := range replies {
		parent, ok := byID[p.parentID]
		if !ok {
			// Orphaned reply; skip rather than fail the whole listing.
			continue
		}
		parent.Replies = append(parent.Replies, p.comment)
	}

	return top, nil
}

// Resolve marks a comment resolved.
func (r *CommentRepository) Resolve(ctx context.Context, id, resolvedBy string, resolvedAt time.Time) error {
	query := `
		UPDATE comments
		SET resolved = 1, resolved_by = ?, resolved_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, resolvedBy, resolvedAt, id)
	if err != nil {
		return fmt.Errorf("failed to resolve comment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrCommentNotFound
	}

	return nil
}

// Exists checks if a comment exists.
func (r *CommentRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM comments WHERE id = ? LIMIT 1`

	var exists int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check comment existence: %w", err)
	}

	return true, nil
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case *model.CursorPosition:
		if val == nil {
			return sql.NullString{}, nil
		}
	case map[string]int:
		if val == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
