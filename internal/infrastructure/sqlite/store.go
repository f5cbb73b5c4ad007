package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

//go:embed schema.sql
var schemaSQL string

// Store guarda en SQLite las emisiones que el cliente no pudo entregar.
// Sobrevive a reinicios del proceso; el orden de inserción lo da el id autoincremental.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.PendingRepository = (*Store)(nil)

// Open crea o abre la base en path (":memory:" para tests) y aplica el esquema.
// Modo WAL, synchronous NORMAL, busy_timeout de 5s y un único escritor.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	// SQLite admite un solo escritor; con ":memory:" además cada conexión es otra base.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite %q: %w", p, err)
		}
	}
	return nil
}

// Close cierra la conexión.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, p *entity.PendingRequest) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending (idem_key, series_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		p.IdempotencyKey, p.SeriesID, p.Payload, p.CreatedAt.UnixMilli())
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return domain.ErrDuplicateRequest
		}
		return fmt.Errorf("sqlite append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite append: %w", err)
	}
	p.ID = id
	return nil
}

func (s *Store) List(ctx context.Context) ([]*entity.PendingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idem_key, series_id, payload, created_at, attempts, last_error, last_attempt_at
		FROM pending ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var out []*entity.PendingRequest
	for rows.Next() {
		var (
			p           entity.PendingRequest
			created     int64
			lastAttempt sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.IdempotencyKey, &p.SeriesID, &p.Payload,
			&created, &p.Attempts, &p.LastError, &lastAttempt); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		p.CreatedAt = time.UnixMilli(created).UTC()
		if lastAttempt.Valid {
			t := time.UnixMilli(lastAttempt.Int64).UTC()
			p.LastAttemptAt = &t
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending SET attempts = attempts + 1, last_error = ?, last_attempt_at = ?
		WHERE id = ?`, reason, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("sqlite mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
