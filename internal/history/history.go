// Package history is the Result History: an append-only log of completed
// deliveries, one row per (user, url, format). Workers consult it as a
// dedup pre-flight so a job that already has a valid remote_file_id skips
// the download path entirely and re-references the prior delivery.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"doradura/internal/storage"
)

// historyColumns is the standard SELECT column list, COALESCE-guarded on
// every column that may legitimately be absent.
const historyColumns = `id, user_id, url, format, COALESCE(title,''), COALESCE(artist,''),
	size_bytes, duration_secs, COALESCE(remote_file_id,''), deleted, completed_at`

// Entry is one completed delivery.
type Entry struct {
	ID           int64
	UserID       int64
	URL          string
	Format       string
	Title        string
	Artist       string
	SizeBytes    int64
	DurationSecs int64
	RemoteFileID string
	Deleted      bool
	CompletedAt  time.Time
}

// Repository is the Result History repository.
type Repository struct {
	db *storage.DB
}

// New creates a Result History repository over db.
func New(db *storage.DB) *Repository {
	return &Repository{db: db}
}

// Record appends a new delivery row. completed_at is stamped at insert time.
func (r *Repository) Record(e *Entry) error {
	e.CompletedAt = time.Now()

	res, err := r.db.Conn().Exec(`
		INSERT INTO history (user_id, url, format, title, artist, size_bytes, duration_secs, remote_file_id, deleted, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.URL, e.Format, nullable(e.Title), nullable(e.Artist),
		e.SizeBytes, e.DurationSecs, nullable(e.RemoteFileID), e.Deleted, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("history: record failed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("history: read inserted id failed: %w", err)
	}
	e.ID = id
	return nil
}

// FindDeliverable returns the most recent non-deleted history row for
// (userID, url, format) that still carries a remote file reference, for
// the Worker's dedup pre-flight. Returns nil when no such row exists.
func (r *Repository) FindDeliverable(userID int64, url, format string) (*Entry, error) {
	row := r.db.Conn().QueryRow(`
		SELECT `+historyColumns+` FROM history
		WHERE user_id = ? AND url = ? AND format = ? AND deleted = 0 AND remote_file_id IS NOT NULL AND remote_file_id != ''
		ORDER BY completed_at DESC LIMIT 1`,
		userID, url, format)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// Touch refreshes completed_at on an existing row, the documented
// alternative to inserting a fresh row on a dedup hit.
func (r *Repository) Touch(id int64) error {
	_, err := r.db.Conn().Exec(`UPDATE history SET completed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// ListFilter narrows ListForUser's result set. A zero-value ListFilter
// matches every non-deleted entry for the user.
type ListFilter struct {
	Format         string // exact format match, e.g. "mp3"; "" matches any
	IncludeDeleted bool   // include soft-deleted rows
}

const defaultPageSize = 20

// ListForUser returns one page of entries for a user, newest first, for
// re-send menus. page is zero-indexed; pageSize <= 0 defaults to 20.
func (r *Repository) ListForUser(userID int64, filter ListFilter, page, pageSize int) ([]*Entry, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if page < 0 {
		page = 0
	}

	query := `SELECT ` + historyColumns + ` FROM history WHERE user_id = ?`
	args := []interface{}{userID}

	if !filter.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	if filter.Format != "" {
		query += ` AND format = ?`
		args = append(args, filter.Format)
	}
	query += ` ORDER BY completed_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, page*pageSize)

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list failed: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SoftDelete marks an entry deleted without removing the audit row.
func (r *Repository) SoftDelete(id int64) error {
	_, err := r.db.Conn().Exec(`UPDATE history SET deleted = 1 WHERE id = ?`, id)
	return err
}

func scanEntry(row *sql.Row) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(&e.ID, &e.UserID, &e.URL, &e.Format, &e.Title, &e.Artist,
		&e.SizeBytes, &e.DurationSecs, &e.RemoteFileID, &e.Deleted, &e.CompletedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.URL, &e.Format, &e.Title, &e.Artist,
			&e.SizeBytes, &e.DurationSecs, &e.RemoteFileID, &e.Deleted, &e.CompletedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
