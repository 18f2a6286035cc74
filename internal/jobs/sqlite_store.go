package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/studio/internal/common"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY when batch workers write concurrently.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		local_id TEXT PRIMARY KEY,
		job_id TEXT,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		result_json TEXT,
		error_message TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS jobs_kind_created ON jobs (kind, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateJob(job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.LocalID == "" {
		return errors.New("job.LocalID is required")
	}
	if job.Kind == "" {
		return errors.New("job.Kind is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	var jobID *string
	if job.JobID != "" {
		jobID = &job.JobID
	}
	_, err := s.db.Exec(
		`INSERT INTO jobs (local_id, job_id, kind, status, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.LocalID, jobID, string(job.Kind), string(job.Status), job.Attempts,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(localID string, jobID string, status Status, attempts int) error {
	now := formatTime(time.Now())
	// job_id is only written once known; an empty value keeps the stored one.
	if jobID != "" {
		_, err := s.db.Exec(`UPDATE jobs SET job_id = ?, status = ?, attempts = ?, updated_at = ? WHERE local_id = ?`,
			jobID, string(status), attempts, now, localID)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, attempts = ?, updated_at = ? WHERE local_id = ?`,
		string(status), attempts, now, localID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveResult(localID string, result Result, completedAt time.Time) error {
	if result == nil {
		return errors.New("result is nil")
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.Exec(`UPDATE jobs
		SET result_json = ?, status = ?, error_message = NULL, completed_at = ?, updated_at = ?
		WHERE local_id = ?`,
		string(b), string(StatusCompleted), formatTime(completedAt), formatTime(completedAt), localID,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveError(localID string, errMsg string, completedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE jobs
		SET error_message = ?, result_json = NULL, status = ?, completed_at = ?, updated_at = ?
		WHERE local_id = ?`,
		errMsg, string(StatusFailed), formatTime(completedAt), formatTime(completedAt), localID,
	)
	if err != nil {
		return fmt.Errorf("save error: %w", err)
	}
	return nil
}

const selectColumns = `local_id, job_id, kind, status, attempts, result_json, error_message, created_at, updated_at, completed_at`

func (s *SQLiteStore) GetJob(localID string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM jobs WHERE local_id = ?`, localID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// ListJobs returns the newest jobs first. An empty kind lists all kinds.
func (s *SQLiteStore) ListJobs(kind Kind, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = s.db.Query(`SELECT `+selectColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+selectColumns+` FROM jobs WHERE kind = ? ORDER BY created_at DESC LIMIT ?`, string(kind), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var jobID, result, errMsg, completed sql.NullString
	var kind, status, created, updated string

	if err := row.Scan(
		&job.LocalID,
		&jobID,
		&kind,
		&status,
		&job.Attempts,
		&result,
		&errMsg,
		&created,
		&updated,
		&completed,
	); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)
	if jobID.Valid {
		job.JobID = jobID.String
	}
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	if result.Valid && result.String != "" {
		// Leave Result nil on decode error; do not fail retrieval.
		if r, err := decodeResult(job.Kind, []byte(result.String)); err == nil {
			job.Result = r
		}
	}
	if t, err := time.Parse(timeLayout, created); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, updated); err == nil {
		job.UpdatedAt = t
	}
	if completed.Valid {
		if t, err := time.Parse(timeLayout, completed.String); err == nil {
			job.CompletedAt = &t
		}
	}
	return &job, nil
}

func decodeResult(kind Kind, raw []byte) (Result, error) {
	switch kind {
	case KindContent:
		var r ContentResult
		err := json.Unmarshal(raw, &r)
		return r, err
	case KindSpeech:
		var r SpeechResult
		err := json.Unmarshal(raw, &r)
		return r, err
	case KindVideo:
		var r VideoResult
		err := json.Unmarshal(raw, &r)
		return r, err
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
