package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is an optional Store backend for deployments that already
// run Postgres for other services and would rather not manage a separate
// credentials directory. Each identity is stored as a single jsonb row;
// quota-score updates are a single-column UPDATE so the frequent
// QuotaScheduler writes don't round-trip the whole payload.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the backing table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("identity: connect postgres: %w", err)
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS identities (
	id text PRIMARY KEY,
	payload jsonb NOT NULL,
	quota_score double precision,
	updated_at timestamptz NOT NULL DEFAULT now()
)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("identity: ensure table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) List(ctx context.Context) ([]*Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM identities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Identity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ident Identity
		if err := json.Unmarshal(raw, &ident); err != nil {
			continue
		}
		out = append(out, &ident)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Identity, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM identities WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ident Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

func (s *PostgresStore) Put(ctx context.Context, ident *Identity) error {
	if ident.ID == "" {
		ident.ID = StableID(ident.Email)
	}
	payload, err := json.Marshal(ident)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO identities (id, payload, quota_score, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET payload = $2, quota_score = $3, updated_at = now()`
	_, err = s.pool.Exec(ctx, q, ident.ID, payload, ident.Credential.QuotaScore)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, id string, cred Credential) error {
	ident, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ident.Credential = cred
	return s.Put(ctx, ident)
}

func (s *PostgresStore) UpdateQuotaScore(ctx context.Context, id string, score float64) error {
	const q = `UPDATE identities SET quota_score = $1, updated_at = $2 WHERE id = $3`
	tag, err := s.pool.Exec(ctx, q, score, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
