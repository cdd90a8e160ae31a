package fakeuserrepo_test

import (
	"context"
	"testing"
	"time"

	fakeuserrepo "github.com/lewismc/earthdata-search/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreate(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, "jdoe")
	require.NoError(t, err)
	second, err := repo.FindOrCreate(ctx, "jdoe")
	require.NoError(t, err)
	require.Equal(t, first.InternalID, second.InternalID)
	require.Equal(t, 1, repo.Creates())
	require.Equal(t, 2, repo.Calls())
}

func TestRecentDatasetsMostRecentFirst(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.TouchRecentDataset(ctx, "u1", "A", base))
	require.NoError(t, repo.TouchRecentDataset(ctx, "u1", "B", base.Add(time.Minute)))
	require.NoError(t, repo.TouchRecentDataset(ctx, "u1", "A", base.Add(2*time.Minute)))
	require.NoError(t, repo.TouchRecentDataset(ctx, "u2", "C", base))

	list, err := repo.RecentDatasets(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "A", list[0].DatasetID)
	require.Equal(t, "B", list[1].DatasetID)

	list, err = repo.RecentDatasets(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
