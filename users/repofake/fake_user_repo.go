package fakeuserrepo

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lewismc/earthdata-search/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	identities map[string]*users.Identity       // external id to identity
	recent     map[string]map[string]time.Time // user id to dataset id to touched at
	lock       sync.RWMutex
	creates    atomic.Int32
	calls      atomic.Int32
	delay      time.Duration
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		identities: make(map[string]*users.Identity),
		recent:     make(map[string]map[string]time.Time),
	}
}

// WithDelay slows every FindOrCreate down, widening race windows in tests. A
// context that ends during the delay fails the call as a real store would.
func (ur *FakeUserRepo) WithDelay(d time.Duration) *FakeUserRepo {
	ur.delay = d
	return ur
}

func (ur *FakeUserRepo) FindOrCreate(ctx context.Context, externalID string) (*users.Identity, error) {
	ur.calls.Add(1)
	if ur.delay > 0 {
		select {
		case <-time.After(ur.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if identity, ok := ur.identities[externalID]; ok {
		copied := *identity
		return &copied, nil
	}
	identity := &users.Identity{
		ExternalID: externalID,
		InternalID: uuid.New().String(),
		CreatedAt:  time.Now(),
	}
	ur.identities[externalID] = identity
	ur.creates.Add(1)
	copied := *identity
	return &copied, nil
}

func (ur *FakeUserRepo) TouchRecentDataset(ctx context.Context, userID, datasetID string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.recent[userID]; !ok {
		ur.recent[userID] = make(map[string]time.Time)
	}
	ur.recent[userID][datasetID] = at
	return nil
}

func (ur *FakeUserRepo) RecentDatasets(ctx context.Context, userID string, limit int) ([]users.RecentDataset, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	list := make([]users.RecentDataset, 0, len(ur.recent[userID]))
	for datasetID, at := range ur.recent[userID] {
		list = append(list, users.RecentDataset{UserID: userID, DatasetID: datasetID, TouchedAt: at})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].TouchedAt.Equal(list[j].TouchedAt) {
			return list[i].DatasetID < list[j].DatasetID
		}
		return list[i].TouchedAt.After(list[j].TouchedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Creates is the number of identities created so far.
func (ur *FakeUserRepo) Creates() int {
	return int(ur.creates.Load())
}

// Calls is the number of FindOrCreate calls so far.
func (ur *FakeUserRepo) Calls() int {
	return int(ur.calls.Load())
}
