// The pgexec package is the Postgres-backed Executor. Every record table is a two-column relation
// (id uuid primary key, data jsonb); the record layer's field maps are stored as the jsonb document. Keeping the
// relational shape this dumb means models never need schema migrations for new fields.

package pgexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pomelo-lab/appkit/pkg/record"
)

// Executor implements record.Executor on a pgx connection pool.
type Executor struct {
	pool *pgxpool.Pool
}

var _ record.Executor = (*Executor)(nil)

// New is the constructor for Executor. The pool stays owned by the caller.
func New(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Connect dials Postgres with the given connection string and returns an Executor owning a fresh pool.
func Connect(ctx context.Context, connString string) (*Executor, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// Close releases the underlying pool. Only call it on executors built with Connect.
func (e *Executor) Close() {
	e.pool.Close()
}

// EnsureTable creates the backing relation for a record table if it does not exist yet.
func (e *Executor) EnsureTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id uuid PRIMARY KEY, data jsonb NOT NULL)`,
		pgx.Identifier{table}.Sanitize())
	if _, err := e.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}
	return nil
}

func (e *Executor) Load(ctx context.Context, table string, id uuid.UUID) (map[string]any, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, pgx.Identifier{table}.Sanitize())
	var data []byte
	err := e.pool.QueryRow(ctx, query, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", record.ErrRecordNotFound, table, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode row %s/%s: %w", table, id, err)
	}
	return fields, nil
}

func (e *Executor) Save(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode row %s/%s: %w", table, id, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, pgx.Identifier{table}.Sanitize())
	if _, err := e.pool.Exec(ctx, query, id, data); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", table, id, err)
	}
	return nil
}

func (e *Executor) Delete(ctx context.Context, table string, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pgx.Identifier{table}.Sanitize())
	tag, err := e.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", record.ErrRecordNotFound, table, id)
	}
	return nil
}
