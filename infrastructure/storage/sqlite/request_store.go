package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/storage/sqlfilter"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RequestStore is a SQLite-backed implementation of promotion.Store.
// Mutations use optimistic concurrency on the version column.
type RequestStore struct {
	db      *sql.DB
	retries int
}

// NewRequestStore creates a new SQLite request store with the given configuration.
func NewRequestStore(cfg Config, opts ...Option) (*RequestStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &RequestStore{db: db, retries: cfg.CASRetries}
	if s.retries <= 0 {
		s.retries = DefaultCASRetries
	}

	if cfg.AutoMigrate {
		if err := s.migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return s, nil
}

// NewRequestStoreFromDB creates a request store from an existing database
// connection and applies migrations.
func NewRequestStoreFromDB(db *sql.DB) (*RequestStore, error) {
	s := &RequestStore{db: db, retries: DefaultCASRetries}

	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// migrate applies the embedded goose migrations.
func (s *RequestStore) migrate(ctx context.Context) error {
	if err := sqlfilter.Migrate(ctx, s.db, migrations, "migrations", "sqlite3"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Create persists a new request.
func (s *RequestStore) Create(ctx context.Context, pr *promotion.PullRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if pr == nil || pr.ID == "" {
		return promotion.ErrInvalidRequest
	}

	row, err := sqlfilter.RowOf(pr)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO promotion_requests
			(id, applicant, status, current_level, target_space, project_id, created_at, updated_at, apply_time, version, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		row.ID, row.Applicant, row.Status, row.Level, row.TargetSpace, row.ProjectID,
		row.CreatedAt, row.UpdatedAt, row.ApplyTime, row.Data,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.ErrAlreadyExists
		}
		return err
	}

	return nil
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pr, _, err := s.load(ctx, id)
	return pr, err
}

// Mutate applies fn and writes the result if the row version is unchanged,
// retrying against the fresh row when another writer got there first.
func (s *RequestStore) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, version, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil || next.ID != id {
			return nil, fmt.Errorf("%w: mutation changed the request id", promotion.ErrInvalidRequest)
		}

		row, err := sqlfilter.RowOf(next)
		if err != nil {
			return nil, err
		}

		result, err := s.db.ExecContext(ctx,
			`UPDATE promotion_requests SET
				applicant = ?, status = ?, current_level = ?, target_space = ?, project_id = ?,
				updated_at = ?, apply_time = ?, data = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			row.Applicant, row.Status, row.Level, row.TargetSpace, row.ProjectID,
			row.UpdatedAt, row.ApplyTime, row.Data,
			id, version,
		)
		if err != nil {
			return nil, err
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if rows == 1 {
			return next, nil
		}
	}

	return nil, fmt.Errorf("%w: request %s changed concurrently", promotion.ErrConflict, id)
}

// Delete removes the request if check accepts the current record.
func (s *RequestStore) Delete(ctx context.Context, id string, check func(current *promotion.PullRequest) error) error {
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, version, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		result, err := s.db.ExecContext(ctx,
			"DELETE FROM promotion_requests WHERE id = ? AND version = ?",
			id, version,
		)
		if err != nil {
			return err
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 1 {
			return nil
		}
	}

	return fmt.Errorf("%w: request %s changed concurrently", promotion.ErrConflict, id)
}

// List returns requests matching the filter and the total before paging.
func (s *RequestStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	count := sqlfilter.New(sqlfilter.Question).Filter(filter)
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM promotion_requests"+count.Where(),
		count.Args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := sqlfilter.New(sqlfilter.Question).Filter(filter)
	query := "SELECT data FROM promotion_requests" + q.Where() + sqlfilter.OrderBy(filter) + q.Page(filter, "-1")

	rows, err := s.db.QueryContext(ctx, query, q.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	items := []*promotion.PullRequest{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, 0, err
		}
		pr, err := sqlfilter.Decode(data)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, pr)
	}

	return items, total, rows.Err()
}

// load reads a request and its row version.
func (s *RequestStore) load(ctx context.Context, id string) (*promotion.PullRequest, int64, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, version FROM promotion_requests WHERE id = ?",
		id,
	).Scan(&data, &version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, promotion.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	pr, err := sqlfilter.Decode(data)
	if err != nil {
		return nil, 0, err
	}
	return pr, version, nil
}

// Close closes the database connection.
func (s *RequestStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *RequestStore) DB() *sql.DB {
	return s.db
}

// isUniqueViolation checks if the error is a primary key or unique constraint violation.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

var _ promotion.Store = (*RequestStore)(nil)
