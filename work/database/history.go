package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"iptv-player/work/types"
)

// HistoryLimit caps how many import history entries are listed.
const HistoryLimit = 20

// ListImportHistory returns the most recent imports, newest first.
func (db *DB) ListImportHistory(ctx context.Context) ([]types.ImportHistory, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, url, type, channel_count, imported_at
		FROM import_history
		ORDER BY imported_at DESC
		LIMIT ?`, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import history: %w", err)
	}
	defer rows.Close()

	history := make([]types.ImportHistory, 0)
	for rows.Next() {
		var h types.ImportHistory
		var kind string
		if err := rows.Scan(&h.ID, &h.Name, &h.URL, &kind, &h.ChannelCount, &h.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import history: %w", err)
		}
		h.Type = types.ImportType(kind)
		history = append(history, h)
	}
	return history, rows.Err()
}

// AddImportHistory records a completed import and returns the stored entry.
func (db *DB) AddImportHistory(ctx context.Context, h types.ImportHistory) (*types.ImportHistory, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.ImportedAt == 0 {
		h.ImportedAt = db.nowMillis()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO import_history (id, name, url, type, channel_count, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.Name, h.URL, string(h.Type), h.ChannelCount, h.ImportedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add import history: %w", err)
	}
	return &h, nil
}

// DeleteImportHistory removes one entry.
func (db *DB) DeleteImportHistory(ctx context.Context, id string) error {
	return db.execOne(ctx, "DELETE FROM import_history WHERE id = ?", id)
}

// ClearImportHistory removes every entry.
func (db *DB) ClearImportHistory(ctx context.Context) error {
	_, err := db.ExecContext(ctx, "DELETE FROM import_history")
	if err != nil {
		return fmt.Errorf("failed to clear import history: %w", err)
	}
	return nil
}
