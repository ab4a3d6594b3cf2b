package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/storage/sqlfilter"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Migrate creates the schema if needed and applies the embedded migrations.
func Migrate(ctx context.Context, cfg Config) error {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return errors.Join(ErrConnectionFailed, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return errors.Join(ErrConnectionFailed, err)
	}

	if cfg.Schema != "" && cfg.Schema != "public" {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{cfg.Schema}.Sanitize()
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Join(ErrMigrationFailed, err)
		}
	}

	if err := sqlfilter.Migrate(ctx, db, migrations, "migrations", "postgres"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// RequestStore is a PostgreSQL-backed implementation of promotion.Store.
// Mutations lock the row with SELECT ... FOR UPDATE for the length of the
// read-modify-write transaction.
type RequestStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewRequestStore creates a new PostgreSQL request store.
func NewRequestStore(pool *pgxpool.Pool, schema string) *RequestStore {
	if schema == "" {
		schema = "public"
	}
	return &RequestStore{
		pool:   pool,
		schema: schema,
	}
}

// tableName returns the fully qualified table name.
func (s *RequestStore) tableName() string {
	return pgx.Identifier{s.schema, "promotion_requests"}.Sanitize()
}

// Create persists a new request.
func (s *RequestStore) Create(ctx context.Context, pr *promotion.PullRequest) error {
	if pr == nil || pr.ID == "" {
		return promotion.ErrInvalidRequest
	}

	row, err := sqlfilter.RowOf(pr)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, applicant, status, current_level, target_space, project_id, created_at, updated_at, apply_time, version, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)
	`, s.tableName())

	_, err = s.pool.Exec(ctx, query,
		row.ID,
		row.Applicant,
		row.Status,
		row.Level,
		row.TargetSpace,
		row.ProjectID,
		row.CreatedAt,
		row.UpdatedAt,
		row.ApplyTime,
		row.Data,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return promotion.ErrAlreadyExists
		}
		return s.wrapError(err)
	}

	return nil
}

// Get retrieves a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (*promotion.PullRequest, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, s.tableName())
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// Mutate applies fn to the locked row and writes the result in the same
// transaction.
func (s *RequestStore) Mutate(ctx context.Context, id string, fn promotion.MutateFunc) (*promotion.PullRequest, error) {
	var next *promotion.PullRequest

	err := s.inTx(ctx, id, func(tx pgx.Tx, current *promotion.PullRequest) error {
		var err error
		next, err = fn(current)
		if err != nil {
			return err
		}
		if next == nil || next.ID != id {
			return fmt.Errorf("%w: mutation changed the request id", promotion.ErrInvalidRequest)
		}

		row, err := sqlfilter.RowOf(next)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		query := fmt.Sprintf(`
			UPDATE %s
			SET applicant = $2,
				status = $3,
				current_level = $4,
				target_space = $5,
				project_id = $6,
				updated_at = $7,
				apply_time = $8,
				data = $9,
				version = version + 1
			WHERE id = $1
		`, s.tableName())

		_, err = tx.Exec(ctx, query,
			id,
			row.Applicant,
			row.Status,
			row.Level,
			row.TargetSpace,
			row.ProjectID,
			row.UpdatedAt,
			row.ApplyTime,
			row.Data,
		)
		if err != nil {
			return s.wrapError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

// Delete removes the request if check accepts the locked row.
func (s *RequestStore) Delete(ctx context.Context, id string, check func(current *promotion.PullRequest) error) error {
	return s.inTx(ctx, id, func(tx pgx.Tx, current *promotion.PullRequest) error {
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName())
		if _, err := tx.Exec(ctx, query, id); err != nil {
			return s.wrapError(err)
		}
		return nil
	})
}

// List returns requests matching the filter and the total before paging.
func (s *RequestStore) List(ctx context.Context, filter promotion.ListFilter) ([]*promotion.PullRequest, int, error) {
	count := sqlfilter.New(sqlfilter.Dollar).Filter(filter)

	var total int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, s.tableName(), count.Where()),
		count.Args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, s.wrapError(err)
	}

	q := sqlfilter.New(sqlfilter.Dollar).Filter(filter)
	query := fmt.Sprintf(`SELECT data FROM %s%s%s%s`,
		s.tableName(), q.Where(), sqlfilter.OrderBy(filter), q.Page(filter, "ALL"))

	rows, err := s.pool.Query(ctx, query, q.Args...)
	if err != nil {
		return nil, 0, s.wrapError(err)
	}
	defer rows.Close()

	items := []*promotion.PullRequest{}
	for rows.Next() {
		pr, err := s.scanOne(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, pr)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, s.wrapError(err)
	}

	return items, int(total), nil
}

// inTx locks the row for id and runs fn inside one transaction. fn's error
// rolls the transaction back and is returned unchanged.
func (s *RequestStore) inTx(ctx context.Context, id string, fn func(tx pgx.Tx, current *promotion.PullRequest) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return s.wrapError(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1 FOR UPDATE`, s.tableName())
	current, err := s.scanOne(tx.QueryRow(ctx, query, id))
	if err != nil {
		return err
	}

	if err := fn(tx, current); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return s.wrapError(err)
	}
	return nil
}

// scanOne decodes the data column of a single row.
func (s *RequestStore) scanOne(row pgx.Row) (*promotion.PullRequest, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, s.wrapError(err)
	}

	pr, err := sqlfilter.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return pr, nil
}

// wrapError wraps database errors with domain errors.
func (s *RequestStore) wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrOperationTimeout, err)
	}

	return errors.Join(promotion.ErrStoreUnavailable, ErrConnectionFailed, err)
}

// Ensure RequestStore implements promotion.Store
var _ promotion.Store = (*RequestStore)(nil)
