package users

import (
	"context"
	"time"
)

// Repo stores identities and recent datasets. Implementations make
// FindOrCreate and TouchRecentDataset atomic upserts so concurrent callers
// for the same key converge on one record.
type Repo interface {
	FindOrCreate(ctx context.Context, externalID string) (*Identity, error)
	TouchRecentDataset(ctx context.Context, userID, datasetID string, at time.Time) error
	RecentDatasets(ctx context.Context, userID string, limit int) ([]RecentDataset, error)
}
