package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type entry struct {
	session   *sessions.Session
	expiresAt time.Time // zero when the repo has no TTL
}

// FakeSessionRepo keeps sessions in process memory. It is meant for tests and
// local development only; nothing survives a restart.
type FakeSessionRepo struct {
	sessions map[string]entry
	lock     sync.RWMutex
	ttl      time.Duration
	nowFunc  func() time.Time
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]entry),
		nowFunc:  time.Now,
	}
}

// WithTTL expires a session ttl after its last Upsert, like the redis store.
func (sr *FakeSessionRepo) WithTTL(ttl time.Duration) *FakeSessionRepo {
	sr.ttl = ttl
	return sr
}

func (sr *FakeSessionRepo) WithNowFunc(now func() time.Time) *FakeSessionRepo {
	sr.nowFunc = now
	return sr
}

func (sr *FakeSessionRepo) Upsert(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	now := sr.nowFunc()
	sr.evictExpired(now)
	var expiresAt time.Time
	if sr.ttl > 0 {
		expiresAt = now.Add(sr.ttl)
	}
	sr.sessions[session.ID()] = entry{session: session, expiresAt: expiresAt}
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	e, ok := sr.sessions[sessionID]
	if !ok || e.expired(sr.nowFunc()) {
		return nil, errors.ErrSessionNotFound
	}
	return e.session, nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, sessionID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.sessions, sessionID)
	return nil
}

// Len is the number of stored sessions, expired ones included until the next Upsert sweeps them.
func (sr *FakeSessionRepo) Len() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.sessions)
}

// evictExpired must be called with the write lock held.
func (sr *FakeSessionRepo) evictExpired(now time.Time) {
	if sr.ttl <= 0 {
		return
	}
	for id, e := range sr.sessions {
		if e.expired(now) {
			delete(sr.sessions, id)
		}
	}
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
