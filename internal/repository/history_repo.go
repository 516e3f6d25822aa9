package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chartstudio/collab/internal/model"
)

// HistoryRepository provides data access for the append-only change
// history log. Entries are never updated or deleted.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts a change history entry.
func (r *HistoryRepository) Append(ctx context.Context, workspaceID string, entry *model.ChangeHistoryEntry) error {
	query := `
		INSERT INTO change_history (id, workspace_id, user_id, type, description, chart_id, before_snapshot, after_snapshot, query, natural_language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		workspaceID,
		entry.UserID,
		string(entry.Type),
		entry.Description,
		nullString(entry.Details.ChartID),
		nullString(entry.Details.Before),
		nullString(entry.Details.After),
		nullString(entry.Details.Query),
		nullString(entry.Details.NaturalLanguage),
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append change history entry: %w", err)
	}

	return nil
}

// ListByWorkspace retrieves change history for a workspace, oldest first.
// A limit of 0 returns everything.
func (r *HistoryRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*model.ChangeHistoryEntry, error) {
	query := `
		SELECT id, user_id, type, description, chart_id, before_snapshot, after_snapshot, query, natural_language, created_at
		FROM change_history
		WHERE workspace_id = ?
		ORDER BY created_at ASC
	`
	args := []interface{}{workspaceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list change history: %w", err)
	}
	defer rows.Close()

	var entries []*model.ChangeHistoryEntry
	for rows.Next() {
		entry := &model.ChangeHistoryEntry{}
		var entryType string
		var chartID, before, after, queryText, naturalLanguage sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entryType,
			&entry.Description,
			&chartID,
			&before,
			&after,
			&queryText,
			&naturalLanguage,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change history entry: %w", err)
		}

		entry.Type = model.ChangeType(entryType)
		if chartID.Valid {
			entry.Details.ChartID = chartID.String
		}
		if before.Valid {
			entry.Details.Before = before.String
		}
		if after.Valid {
			entry.Details.After = after.String
		}
		if queryText.Valid {
			entry.Details.Query = queryText.String
		}
		if naturalLanguage.Valid {
			entry.Details.NaturalLanguage = naturalLanguage.String
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change history: %w", err)
	}

	return entries, nil
}

// CountByWorkspace returns the number of change history entries for a workspace.
func (r *HistoryRepository) CountByWorkspace(ctx context.Context, workspaceID string) (int, error) {
	query := `SELECT COUNT(*) FROM change_history WHERE workspace_id = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, workspaceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count change history: %w", err)
	}

	return count, nil
}
