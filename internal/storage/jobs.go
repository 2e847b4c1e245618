package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"doradura/internal/constants"
)

// jobColumns is the standard SELECT column list, using COALESCE to avoid
// sql.NullString overhead on optional columns.
const jobColumns = `id, user_id, chat_id, url, format, COALESCE(quality_spec,''), priority, status,
	retry_count, COALESCE(last_error,''), created_at, updated_at`

// Job is a durable record of one accepted download request.
type Job struct {
	ID          string
	UserID      int64
	ChatID      int64
	URL         string
	Format      string
	QualitySpec string
	Priority    int
	Status      constants.JobStatus
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobRepository is the Job Store: durable CRUD over the jobs table, keyed
// by job id, indexed on status and created_at.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a Job Store repository over db.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Insert persists a new job. Generates an id if the caller left it empty.
func (r *JobRepository) Insert(j *Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = constants.StatusPending
	}

	_, err := r.db.conn.Exec(`
		INSERT INTO jobs (id, user_id, chat_id, url, format, quality_spec, priority, status,
			retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.UserID, j.ChatID, j.URL, j.Format, nullableString(j.QualitySpec), j.Priority, j.Status,
		j.RetryCount, nullableString(j.LastError), j.CreatedAt, j.UpdatedAt,
	)
	return err
}

// UpdateStatus transitions a job's status and bumps updated_at. Mutations
// are synchronous: the caller must not proceed until this returns.
func (r *JobRepository) UpdateStatus(id string, status constants.JobStatus) error {
	_, err := r.db.conn.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	return err
}

// IncrementRetry bumps retry_count and records the last error, keeping the
// job in pending so the Scheduler Loop re-dispatches it.
func (r *JobRepository) IncrementRetry(id string, lastError string) error {
	_, err := r.db.conn.Exec(`
		UPDATE jobs SET retry_count = retry_count + 1, last_error = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		nullableString(lastError), constants.StatusPending, time.Now(), id)
	return err
}

// MarkCompleted marks a job completed.
func (r *JobRepository) MarkCompleted(id string) error {
	return r.UpdateStatus(id, constants.StatusCompleted)
}

// MarkFailed marks a job failed, recording the terminal error.
func (r *JobRepository) MarkFailed(id string, lastError string) error {
	_, err := r.db.conn.Exec(`
		UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		constants.StatusFailed, nullableString(lastError), time.Now(), id)
	return err
}

// GetByID retrieves a job by id.
func (r *JobRepository) GetByID(id string) (*Job, error) {
	row := r.db.conn.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ExistsActiveByURL reports whether a non-terminal job already exists for
// the given (user, url, format) triple, for submission-time dedup.
func (r *JobRepository) ExistsActiveByURL(userID int64, url, format string) (*Job, error) {
	row := r.db.conn.QueryRow(`
		SELECT `+jobColumns+` FROM jobs
		WHERE user_id = ? AND url = ? AND format = ? AND status NOT IN (?, ?)
		LIMIT 1`,
		userID, url, format, constants.StatusCompleted, constants.StatusFailed)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// CountActiveByUser counts jobs for userID not yet in a terminal state,
// for submission-time quota enforcement.
func (r *JobRepository) CountActiveByUser(userID int64) (int, error) {
	var count int
	err := r.db.conn.QueryRow(`
		SELECT COUNT(*) FROM jobs WHERE user_id = ? AND status NOT IN (?, ?)`,
		userID, constants.StatusCompleted, constants.StatusFailed).Scan(&count)
	return count, err
}

// ListByStatus returns every job in the given status, ordered by creation
// time (FIFO), for requeueing into the Priority Queue.
func (r *JobRepository) ListByStatus(status constants.JobStatus) ([]*Job, error) {
	rows, err := r.db.conn.Query(`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// LoadActiveForRecovery loads every job still in flight at the moment of a
// prior crash: rows in processing (to be repromoted) and rows already
// pending, ordered by (priority desc, created_at asc) matching the
// Priority Queue's own ordering so re-hydration preserves dispatch order.
func (r *JobRepository) LoadActiveForRecovery() ([]*Job, error) {
	rows, err := r.db.conn.Query(`
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?)
		ORDER BY priority DESC, created_at ASC`,
		constants.StatusProcessing, constants.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJob(row *sql.Row) (*Job, error) {
	j := &Job{}
	err := row.Scan(
		&j.ID, &j.UserID, &j.ChatID, &j.URL, &j.Format, &j.QualitySpec, &j.Priority, &j.Status,
		&j.RetryCount, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j := &Job{}
		err := rows.Scan(
			&j.ID, &j.UserID, &j.ChatID, &j.URL, &j.Format, &j.QualitySpec, &j.Priority, &j.Status,
			&j.RetryCount, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
