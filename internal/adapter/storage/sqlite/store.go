package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"smelt/internal/domain"
	"smelt/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists jobs in SQLite. A single writer connection plus WAL keeps
// per-job transitions serialized without application-level locking.
type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "smelt.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent reads but only one writer.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const jobColumns = `id, original_name, input_path, input_size, kind, profile,
	status, failure_kind, error_message,
	artifact_path, artifact_type, artifact_size, artifact_width, artifact_height, artifact_duration,
	attempts, created_at, updated_at, started_at, completed_at`

func (s *Store) Create(job *domain.Job) error {
	profileJSON, err := json.Marshal(job.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, original_name, input_path, input_size, kind, profile, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID, job.OriginalName, job.InputPath, job.InputSize,
		string(job.Kind), string(profileJSON), string(job.Status),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) Get(id string) (*domain.Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *Store) CountBacklog() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`,
		string(domain.JobStatusQueued)).Scan(&n)
	return n, err
}

func (s *Store) Claim() (*domain.Job, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(`
		UPDATE jobs
		SET status = ?, attempts = attempts + 1, started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs WHERE status = ? ORDER BY created_at, rowid LIMIT 1
		)
		RETURNING `+jobColumns,
		string(domain.JobStatusRunning), now, now,
		string(domain.JobStatusQueued),
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (s *Store) MarkSucceeded(id string, artifact domain.Artifact) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, artifact_path = ?, artifact_type = ?, artifact_size = ?,
		    artifact_width = ?, artifact_height = ?, artifact_duration = ?,
		    updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.JobStatusSucceeded),
		artifact.Path, artifact.ContentType, artifact.Size,
		artifact.Width, artifact.Height, artifact.Duration,
		now, now,
		id, string(domain.JobStatusRunning),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MarkFailed(id string, kind domain.FailureKind, detail string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, failure_kind = ?, error_message = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(domain.JobStatusFailed), string(kind), detail, now, now,
		id, string(domain.JobStatusQueued), string(domain.JobStatusRunning),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CancelQueued(id string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, failure_kind = ?, error_message = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.JobStatusFailed), string(domain.FailureCancelled),
		"cancelled before running", now, now,
		id, string(domain.JobStatusQueued),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ResetStalled() error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, started_at = NULL, updated_at = ?
		WHERE status = ?`,
		string(domain.JobStatusQueued), now, string(domain.JobStatusRunning),
	)
	return err
}

func (s *Store) ListExpired(ttl time.Duration) ([]*domain.Job, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	rows, err := s.db.Query(`
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(domain.JobStatusSucceeded), string(domain.JobStatusFailed), cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// requireRow translates a zero-row guarded update into ErrNotFound: either
// the job never existed or it already reached a state the transition guard
// refuses to overwrite.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		kind        string
		status      string
		failureKind string
		profileJSON string
		artifact    domain.Artifact
	)
	err := row.Scan(
		&job.ID, &job.OriginalName, &job.InputPath, &job.InputSize, &kind, &profileJSON,
		&status, &failureKind, &job.ErrorMessage,
		&artifact.Path, &artifact.ContentType, &artifact.Size,
		&artifact.Width, &artifact.Height, &artifact.Duration,
		&job.Attempts, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = domain.MediaKind(kind)
	job.Status = domain.JobStatus(status)
	job.FailureKind = domain.FailureKind(failureKind)
	if err := json.Unmarshal([]byte(profileJSON), &job.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if job.Status == domain.JobStatusSucceeded {
		job.Artifact = &artifact
	}
	return &job, nil
}

var _ port.JobStore = (*Store)(nil)
