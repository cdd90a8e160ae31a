package auth

import (
	"context"
	"sync"
	"time"

	"github.com/lewismc/earthdata-search/echo"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/internal/utils"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/lewismc/earthdata-search/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// AnonymousHistoryLimit is how many recent datasets a logged out session keeps.
const AnonymousHistoryLimit = 2

const defaultStoreTimeout = 30 * time.Second

// CurrentUserFetcher looks up who a token belongs to.
type CurrentUserFetcher interface {
	GetCurrentUser(ctx context.Context, token string) (*echo.CurrentUserResponse, error)
}

// Resolver maps a session's token to a local identity and records the datasets
// its user looks at. Writes are single-flight per key, and the store's atomic
// upsert settles races between processes.
type Resolver struct {
	users      users.Repo
	provider   CurrentUserFetcher
	identities singleflight.Group // key: external id
	datasets   singleflight.Group // key: internal id + dataset id
	timeout    time.Duration
	nowFunc    func() time.Time
}

type ResolverOption func(*Resolver)

func WithNowFunc(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowFunc = now
	}
}

// WithStoreTimeout bounds each shared store write.
func WithStoreTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = d
	}
}

func NewResolver(repo users.Repo, provider CurrentUserFetcher, options ...ResolverOption) *Resolver {
	r := &Resolver{
		users:    repo,
		provider: provider,
		timeout:  defaultStoreTimeout,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

type requestCacheKey struct{}

type requestCache struct {
	mu       sync.Mutex
	identity *users.Identity
}

// WithRequestCache scopes identity caching to ctx. Resolve calls sharing the
// returned context look up the user at most once.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{})
}

func cacheFrom(ctx context.Context) *requestCache {
	c, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	return c
}

// Resolve returns the identity for the session's access token, or nil when the
// session is anonymous or the provider does not know the token.
func (r *Resolver) Resolve(ctx context.Context, s *sessions.Session) (*users.Identity, error) {
	token := s.AccessToken()
	if token == "" {
		s.SetUserID("")
		return nil, nil
	}

	cache := cacheFrom(ctx)
	if cache != nil {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		if cache.identity != nil {
			return cache.identity, nil
		}
	}

	externalID := s.UserID()
	if externalID == "" {
		resp, err := r.provider.GetCurrentUser(ctx, token)
		if err != nil {
			return nil, errors.Wrapf(err, "[Resolver.Resolve] current user")
		}
		if resp == nil || resp.User == nil || resp.User.ID == "" {
			return nil, nil
		}
		externalID = resp.User.ID
		s.SetUserID(externalID)
	}

	identity, err := r.FindOrCreate(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.identity = identity
	}
	return identity, nil
}

// FindOrCreate returns the identity for externalID, creating it on first sight.
// Concurrent calls for one id share a single store round trip. Calls for
// different ids do not wait on each other.
func (r *Resolver) FindOrCreate(ctx context.Context, externalID string) (*users.Identity, error) {
	v, shared, err := r.shared(ctx, &r.identities, externalID, func(ctx context.Context) (interface{}, error) {
		return r.users.FindOrCreate(ctx, externalID)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[Resolver.FindOrCreate] %s", externalID)
	}
	if shared {
		log.Debug().Str("external_id", externalID).Msg("identity lookup shared")
	}
	identity := *v.(*users.Identity)
	return &identity, nil
}

// TouchRecentDataset records datasetID as recently viewed. datasetID may be a
// string or a list, in which case only the first element counts. It reports
// false and changes nothing when no id is given. A nil identity updates the
// session's bounded anonymous history instead of the store.
func (r *Resolver) TouchRecentDataset(ctx context.Context, s *sessions.Session, identity *users.Identity, datasetID any) (bool, error) {
	id := utils.FirstString(datasetID)
	if id == "" {
		return false, nil
	}

	if identity == nil {
		s.PushRecentDataset(id, AnonymousHistoryLimit)
		return true, nil
	}

	key := identity.InternalID + "|" + id
	_, _, err := r.shared(ctx, &r.datasets, key, func(ctx context.Context) (interface{}, error) {
		return nil, r.users.TouchRecentDataset(ctx, identity.InternalID, id, r.nowFunc())
	})
	if err != nil {
		return false, errors.Wrapf(err, "[Resolver.TouchRecentDataset] %s", id)
	}
	return true, nil
}

// shared runs fn once per key on a context detached from the first caller's,
// bounded by the store timeout. Every caller waits only as long as its own ctx.
func (r *Resolver) shared(ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (interface{}, error)) (interface{}, bool, error) {
	ch := g.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return fn(sctx)
	})
	select {
	case <-ctx.Done():
		return nil, false, errors.ClassifyTransport(ctx.Err())
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// RecentDatasets lists dataset ids most recent first, from the store for a
// known identity and from the session otherwise.
func (r *Resolver) RecentDatasets(ctx context.Context, s *sessions.Session, identity *users.Identity, limit int) ([]string, error) {
	if identity == nil {
		return s.RecentDatasets(), nil
	}
	list, err := r.users.RecentDatasets(ctx, identity.InternalID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "[Resolver.RecentDatasets]")
	}
	ids := make([]string, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.DatasetID)
	}
	return ids, nil
}
