// Package pgrepo stores identities and recent datasets in PostgreSQL. Uniqueness
// comes from the table constraints, so concurrent upserts for one key need no
// process lock.
package pgrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/users"
)

// Schema is the table layout the repository expects.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	echo_id    TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS recent_datasets (
	user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	dataset_id TEXT NOT NULL,
	touched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, dataset_id)
);
CREATE INDEX IF NOT EXISTS recent_datasets_user_touched ON recent_datasets (user_id, touched_at DESC);
`

const (
	// The no-op update makes RETURNING yield the existing row on conflict.
	findOrCreateSQL = `
INSERT INTO users (id, echo_id, created_at) VALUES ($1, $2, $3)
ON CONFLICT (echo_id) DO UPDATE SET echo_id = EXCLUDED.echo_id
RETURNING id::text, echo_id, created_at`

	touchRecentDatasetSQL = `
INSERT INTO recent_datasets (user_id, dataset_id, touched_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id, dataset_id) DO UPDATE SET touched_at = EXCLUDED.touched_at`

	recentDatasetsSQL = `
SELECT user_id::text AS user_id, dataset_id, touched_at FROM recent_datasets
WHERE user_id = $1
ORDER BY touched_at DESC, dataset_id
LIMIT $2`
)

var _ users.Repo = (*Repo)(nil)

type Repo struct {
	pool    *pgxpool.Pool
	nowFunc func() time.Time
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool, nowFunc: time.Now}
}

// Connect opens a pool for databaseURL and checks it answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "[pgrepo.Connect] open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrapf(err, "[pgrepo.Connect] ping")
	}
	return pool, nil
}

// EnsureSchema creates the tables when they are missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return errors.Wrapf(err, "[pgrepo.EnsureSchema]")
}

func (r *Repo) FindOrCreate(ctx context.Context, externalID string) (*users.Identity, error) {
	var identity users.Identity
	err := r.pool.QueryRow(ctx, findOrCreateSQL, uuid.New().String(), externalID, r.nowFunc()).
		Scan(&identity.InternalID, &identity.ExternalID, &identity.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "[pgrepo.FindOrCreate] %s", externalID)
	}
	return &identity, nil
}

func (r *Repo) TouchRecentDataset(ctx context.Context, userID, datasetID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, touchRecentDatasetSQL, userID, datasetID, at)
	return errors.Wrapf(err, "[pgrepo.TouchRecentDataset] %s/%s", userID, datasetID)
}

func (r *Repo) RecentDatasets(ctx context.Context, userID string, limit int) ([]users.RecentDataset, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, recentDatasetsSQL, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "[pgrepo.RecentDatasets] %s", userID)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[users.RecentDataset])
	if err != nil {
		return nil, errors.Wrapf(err, "[pgrepo.RecentDatasets] scan")
	}
	return list, nil
}
