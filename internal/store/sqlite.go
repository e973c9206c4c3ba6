package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/sweep"
)

// SQLiteStore implements ResultStore using SQLite.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.dbPath }

// Validate runs the SQLite integrity and foreign key checks.
func (s *SQLiteStore) Validate(ctx context.Context) error {
	return ValidateIntegrity(ctx, s.db)
}

// SaveReport implements ResultStore.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *sweep.Report) (string, error) {
	if r == nil {
		return "", errors.New("nil report")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	epsilons, err := json.Marshal(r.Epsilons)
	if err != nil {
		return "", fmt.Errorf("failed to encode epsilons: %w", err)
	}
	mus, err := json.Marshal(r.Mus)
	if err != nil {
		return "", fmt.Errorf("failed to encode mus: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps (id, kind, nodes, steps, attachment, runs, seed, epsilons, mus,
			started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.Settings.Nodes, r.Settings.Steps, r.Settings.Attachment, r.Settings.Runs,
		int64(r.Seed), string(epsilons), string(mus),
		formatTime(r.Started), formatTime(r.Finished), formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to insert sweep %s: %w", r.ID, err)
	}

	pointStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (sweep_id, row_idx, col_idx, epsilon, mu, attachment, runs, failed_runs, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer pointStmt.Close()

	fieldStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO point_fields (sweep_id, row_idx, col_idx, field, mean, std)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare field insert: %w", err)
	}
	defer fieldStmt.Close()

	for _, p := range r.Points {
		msg := p.Error
		if msg == "" && p.Err != nil {
			msg = p.Err.Error()
		}
		if _, err := pointStmt.ExecContext(ctx, r.ID, p.Row, p.Col, p.Point.Epsilon, p.Point.Mu,
			p.Point.Attachment, p.Summary.Runs, p.FailedRuns, nullString(msg)); err != nil {
			return "", fmt.Errorf("failed to insert point (%d, %d): %w", p.Row, p.Col, err)
		}
		for field, mean := range p.Summary.Mean {
			if _, err := fieldStmt.ExecContext(ctx, r.ID, p.Row, p.Col, field, mean, p.Summary.Std[field]); err != nil {
				return "", fmt.Errorf("failed to insert field %s at (%d, %d): %w", field, p.Row, p.Col, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit sweep %s: %w", r.ID, err)
	}
	return r.ID, nil
}

// resolveID expands an ID prefix to a full ID.
func (s *SQLiteStore) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty id: %w", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sweeps WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return "", fmt.Errorf("failed to look up sweep %s: %w", id, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return "", fmt.Errorf("failed to scan sweep id: %w", err)
		}
		if full == id {
			return full, nil
		}
		ids = append(ids, full)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%s: %w", id, ErrAmbiguousID)
	}
}

// LoadReport implements ResultStore.
func (s *SQLiteStore) LoadReport(ctx context.Context, id string) (*sweep.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	r := &sweep.Report{ID: full}
	var (
		kind              string
		seed              int64
		epsilons, mus     string
		started, finished string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT kind, nodes, steps, attachment, runs, seed, epsilons, mus, started_at, finished_at
		FROM sweeps WHERE id = ?`, full).Scan(
		&kind, &r.Settings.Nodes, &r.Settings.Steps, &r.Settings.Attachment, &r.Settings.Runs,
		&seed, &epsilons, &mus, &started, &finished)
	if err != nil {
		return nil, fmt.Errorf("failed to load sweep %s: %w", full, err)
	}
	r.Kind = sweep.Kind(kind)
	r.Seed = uint64(seed)
	r.Started = parseTime(started)
	r.Finished = parseTime(finished)
	if err := json.Unmarshal([]byte(epsilons), &r.Epsilons); err != nil {
		return nil, fmt.Errorf("failed to decode epsilons of %s: %w", full, err)
	}
	if err := json.Unmarshal([]byte(mus), &r.Mus); err != nil {
		return nil, fmt.Errorf("failed to decode mus of %s: %w", full, err)
	}

	r.Points = make([]sweep.PointResult, len(r.Epsilons)*len(r.Mus))
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_idx, col_idx, epsilon, mu, attachment, runs, failed_runs, error
		FROM points WHERE sweep_id = ?`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to load points of %s: %w", full, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p   sweep.PointResult
			msg sql.NullString
		)
		if err := rows.Scan(&p.Row, &p.Col, &p.Point.Epsilon, &p.Point.Mu, &p.Point.Attachment,
			&p.Summary.Runs, &p.FailedRuns, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		if p.Row < 0 || p.Row >= len(r.Mus) || p.Col < 0 || p.Col >= len(r.Epsilons) {
			return nil, fmt.Errorf("point (%d, %d) outside %dx%d grid of %s", p.Row, p.Col, len(r.Mus), len(r.Epsilons), full)
		}
		if msg.Valid {
			p.Error = msg.String
			p.Err = errors.New(msg.String)
		} else {
			p.Summary.Mean = analysis.Record{}
			p.Summary.Std = analysis.Record{}
		}
		*r.At(p.Row, p.Col) = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields, err := s.db.QueryContext(ctx, `
		SELECT row_idx, col_idx, field, mean, std FROM point_fields WHERE sweep_id = ?`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields of %s: %w", full, err)
	}
	defer fields.Close()
	for fields.Next() {
		var (
			row, col  int
			field     string
			mean, std float64
		)
		if err := fields.Scan(&row, &col, &field, &mean, &std); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		p := r.At(row, col)
		if p.Summary.Mean == nil {
			p.Summary.Mean = analysis.Record{}
			p.Summary.Std = analysis.Record{}
		}
		p.Summary.Mean[field] = mean
		p.Summary.Std[field] = std
	}
	return r, fields.Err()
}

// ListSweeps implements ResultStore.
func (s *SQLiteStore) ListSweeps(ctx context.Context) ([]SweepInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.kind, s.nodes, s.steps, s.attachment, s.runs, s.seed, s.started_at, s.finished_at,
			COUNT(p.row_idx), COALESCE(SUM(CASE WHEN p.error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM sweeps s LEFT JOIN points p ON p.sweep_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweeps: %w", err)
	}
	defer rows.Close()

	var out []SweepInfo
	for rows.Next() {
		var (
			info              SweepInfo
			kind              string
			seed              int64
			started, finished string
		)
		if err := rows.Scan(&info.ID, &kind, &info.Settings.Nodes, &info.Settings.Steps,
			&info.Settings.Attachment, &info.Settings.Runs, &seed, &started, &finished,
			&info.Points, &info.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan sweep: %w", err)
		}
		info.Kind = sweep.Kind(kind)
		info.Seed = uint64(seed)
		info.Started = parseTime(started)
		info.Finished = parseTime(finished)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSweep implements ResultStore.
func (s *SQLiteStore) DeleteSweep(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sweeps WHERE id = ?`, full); err != nil {
		return fmt.Errorf("failed to delete sweep %s: %w", full, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
