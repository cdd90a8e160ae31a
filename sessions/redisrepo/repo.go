package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	sessionKeyPrefix  = "session:"
	maxUpsertAttempts = 3
)

var _ sessions.Repo = (*Repo)(nil)

// Repo stores sessions as JSON documents with a sliding TTL.
type Repo struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Repo {
	return &Repo{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Upsert writes session under WATCH so a request that loaded an older copy
// cannot overwrite tokens another request rotated in the meantime. The stored
// copy's tokens are reconciled into session before the write.
func (r *Repo) Upsert(ctx context.Context, session *sessions.Session) error {
	key := sessionKey(session.ID())
	write := func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var current sessions.Session
			if err := json.Unmarshal(stored, &current); err != nil {
				return err
			}
			if session.ReconcileTokens(&current) {
				log.Debug().Str("session", session.ID()).Msg("kept tokens written by a concurrent request")
			}
		}

		payload, err := json.Marshal(session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err = r.client.Watch(ctx, write, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return errors.Wrapf(err, "[redisrepo.Upsert] set %s", session.ID())
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	payload, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[redisrepo.Get] get %s", sessionID)
	}
	var session sessions.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.Wrapf(err, "[redisrepo.Get] unmarshal %s", sessionID)
	}
	return &session, nil
}

func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return errors.Wrapf(err, "[redisrepo.Delete] del %s", sessionID)
	}
	return nil
}
