package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists baselines in a single table, upserting on name.
// The table is created on construction when missing.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createBaselinesTable = `
	CREATE TABLE IF NOT EXISTS fairness_baselines (
		name VARCHAR(255) PRIMARY KEY,
		metrics JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// NewPostgresStore creates the connection pool, verifies it with a ping and
// ensures the baselines table exists.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, createBaselinesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create baselines table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Save(ctx context.Context, b *Baseline) error {
	if err := validateName(b.Name); err != nil {
		return err
	}

	metrics, err := json.Marshal(b.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	query := `
		INSERT INTO fairness_baselines (name, metrics, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET metrics = $2, updated_at = NOW()
	`
	if _, err := p.pool.Exec(ctx, query, b.Name, metrics); err != nil {
		return fmt.Errorf("postgres upsert failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, name string) (*Baseline, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	query := `
		SELECT metrics, created_at, updated_at
		FROM fairness_baselines
		WHERE name = $1
	`
	var metricsJSON []byte
	b := Baseline{Name: name}
	err := p.pool.QueryRow(ctx, query, name).Scan(&metricsJSON, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	if err := json.Unmarshal(metricsJSON, &b.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return &b, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT name FROM fairness_baselines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

func (p *PostgresStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `DELETE FROM fairness_baselines WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("postgres delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
