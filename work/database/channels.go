package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"iptv-player/work/types"
)

const channelColumns = `id, name, url, logo, group_title, tvg_id, tvg_name, status,
	last_tested, response_time, created_at, updated_at`

const defaultGroup = "Uncategorized"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*types.Channel, error) {
	var (
		ch           types.Channel
		status       string
		lastTested   sql.NullInt64
		responseTime sql.NullInt64
	)
	err := row.Scan(&ch.ID, &ch.Name, &ch.URL, &ch.Logo, &ch.GroupTitle, &ch.TvgID, &ch.TvgName,
		&status, &lastTested, &responseTime, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ch.Status = types.ChannelStatus(status)
	if lastTested.Valid {
		ch.LastTested = &lastTested.Int64
	}
	if responseTime.Valid {
		ch.ResponseTime = &responseTime.Int64
	}
	return &ch, nil
}

// ListChannels returns channels matching filter ordered by group and name.
func (db *DB) ListChannels(ctx context.Context, filter types.ChannelFilter) ([]types.Channel, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + s + "%"
		where = append(where, "(name LIKE ? OR group_title LIKE ? OR tvg_name LIKE ?)")
		args = append(args, like, like, like)
	}
	if filter.Group != "" {
		where = append(where, "group_title = ?")
		args = append(args, filter.Group)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + channelColumns + " FROM channels"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY group_title, name"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]types.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// GetChannel loads one channel by id.
func (db *DB) GetChannel(ctx context.Context, id string) (*types.Channel, error) {
	row := db.QueryRowContext(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = ?", id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", id, err)
	}
	return ch, nil
}

// GetChannelURL returns only the URL of a channel, or ErrNotFound.
func (db *DB) GetChannelURL(ctx context.Context, id string) (string, error) {
	var url string
	err := db.QueryRowContext(ctx, "SELECT url FROM channels WHERE id = ?", id).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get channel url %s: %w", id, err)
	}
	return url, nil
}

// ChannelIDs returns every channel id.
func (db *DB) ChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM channels ORDER BY group_title, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list channel ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertChannel stores a new channel, assigning an id and timestamps, and
// returns the stored row.
func (db *DB) InsertChannel(ctx context.Context, ch types.Channel) (*types.Channel, error) {
	var stored types.Channel
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = db.insertChannel(ctx, tx, ch, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// InsertChannels stores many channels in one transaction.
func (db *DB) InsertChannels(ctx context.Context, channels []types.Channel) (int, error) {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, ch := range channels {
			if _, err := db.insertChannel(ctx, tx, ch, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(channels), nil
}

// ReplaceChannels deletes every channel and inserts channels in their place,
// atomically.
func (db *DB) ReplaceChannels(ctx context.Context, channels []types.Channel) (int, error) {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM channels"); err != nil {
			return fmt.Errorf("failed to clear channels: %w", err)
		}
		for _, ch := range channels {
			if _, err := db.insertChannel(ctx, tx, ch, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(channels), nil
}

func (db *DB) insertChannel(ctx context.Context, tx *sql.Tx, ch types.Channel, replace bool) (types.Channel, error) {
	now := db.nowMillis()
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.GroupTitle == "" {
		ch.GroupTitle = defaultGroup
	}
	if !ch.Status.Valid() {
		ch.Status = types.StatusUnknown
	}
	ch.CreatedAt, ch.UpdatedAt = now, now

	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	_, err := tx.ExecContext(ctx, verb+` INTO channels (`+channelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, ch.URL, ch.Logo, ch.GroupTitle, ch.TvgID, ch.TvgName, string(ch.Status),
		nullInt(ch.LastTested), nullInt(ch.ResponseTime), ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return ch, fmt.Errorf("failed to insert channel %q: %w", ch.Name, err)
	}
	return ch, nil
}

// UpdateChannel applies a partial update and returns the updated row.
func (db *DB) UpdateChannel(ctx context.Context, id string, upd types.ChannelUpdate) (*types.Channel, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	add("name", upd.Name)
	add("url", upd.URL)
	add("logo", upd.Logo)
	add("tvg_id", upd.TvgID)
	add("tvg_name", upd.TvgName)
	if upd.GroupTitle != nil {
		group := *upd.GroupTitle
		if group == "" {
			group = defaultGroup
		}
		add("group_title", &group)
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, fmt.Errorf("invalid status %q", *upd.Status)
		}
		status := string(*upd.Status)
		add("status", &status)
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, db.nowMillis(), id)
		res, err := db.ExecContext(ctx, "UPDATE channels SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update channel %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}
	}

	return db.GetChannel(ctx, id)
}

// UpdateStatus sets a channel's status without touching test results.
func (db *DB) UpdateStatus(ctx context.Context, id string, status types.ChannelStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return db.execOne(ctx, "UPDATE channels SET status = ?, updated_at = ? WHERE id = ?",
		string(status), db.nowMillis(), id)
}

// RecordTestResult stores the outcome of a liveness probe.
func (db *DB) RecordTestResult(ctx context.Context, id string, status types.ChannelStatus, responseTime int64) error {
	now := db.nowMillis()
	return db.execOne(ctx,
		"UPDATE channels SET status = ?, response_time = ?, last_tested = ?, updated_at = ? WHERE id = ?",
		string(status), responseTime, now, now, id)
}

// DeleteChannel removes one channel.
func (db *DB) DeleteChannel(ctx context.Context, id string) error {
	return db.execOne(ctx, "DELETE FROM channels WHERE id = ?", id)
}

// DeleteAllChannels removes every channel and returns how many were deleted.
func (db *DB) DeleteAllChannels(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM channels")
	if err != nil {
		return 0, fmt.Errorf("failed to delete channels: %w", err)
	}
	return res.RowsAffected()
}

// Groups returns the distinct non-empty group titles in order.
func (db *DB) Groups(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT DISTINCT group_title FROM channels WHERE TRIM(group_title) != '' ORDER BY group_title")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]string, 0)
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Stats counts channels by status. Anything not online or offline is unknown.
func (db *DB) Stats(ctx context.Context) (types.ChannelStats, error) {
	var stats types.ChannelStats
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'online' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'offline' THEN 1 ELSE 0 END), 0)
		FROM channels`).Scan(&stats.Total, &stats.Online, &stats.Offline)
	if err != nil {
		return stats, fmt.Errorf("failed to count channels: %w", err)
	}
	stats.Unknown = stats.Total - stats.Online - stats.Offline
	return stats, nil
}

func (db *DB) execOne(ctx context.Context, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
