package redisrepo_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/lewismc/earthdata-search/sessions/redisrepo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const ttl = 24 * time.Hour

func testSession() *sessions.Session {
	s := sessions.New("sess-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s.SetTokens(sessions.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s.SetPendingRedirect("/search?p=C1")
	s.PushRecentDataset("C1", 2)
	return s
}

func TestRepo_Upsert(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := redisrepo.New(client, ttl)
	s := testSession()

	payload, err := json.Marshal(s)
	require.NoError(t, err)
	mock.ExpectWatch("session:sess-1")
	mock.ExpectGet("session:sess-1").RedisNil()
	mock.ExpectTxPipeline()
	mock.ExpectSet("session:sess-1", payload, ttl).SetVal("OK")
	mock.ExpectTxPipelineExec()

	require.NoError(t, repo.Upsert(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

// roundTrip hands back a copy of s as Get would decode it.
func roundTrip(t *testing.T, s *sessions.Session) *sessions.Session {
	t.Helper()
	payload, err := json.Marshal(s)
	require.NoError(t, err)
	var restored sessions.Session
	require.NoError(t, json.Unmarshal(payload, &restored))
	return &restored
}

func TestRepo_UpsertKeepsConcurrentlyRotatedTokens(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := redisrepo.New(client, ttl)
	rotated := sessions.TokenSet{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresIn: 3600}
	rotatedAt := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)

	// A long request loaded the session before a second request rotated its tokens.
	stale := roundTrip(t, testSession())
	stale.SetPendingRedirect("/projects/7")

	stored := roundTrip(t, testSession())
	stored.SetTokens(rotated, rotatedAt)
	storedPayload, err := json.Marshal(stored)
	require.NoError(t, err)

	want := roundTrip(t, testSession())
	want.SetPendingRedirect("/projects/7")
	want.SetTokens(rotated, rotatedAt)
	wantPayload, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectWatch("session:sess-1")
	mock.ExpectGet("session:sess-1").SetVal(string(storedPayload))
	mock.ExpectTxPipeline()
	mock.ExpectSet("session:sess-1", wantPayload, ttl).SetVal("OK")
	mock.ExpectTxPipelineExec()

	require.NoError(t, repo.Upsert(context.Background(), stale))
	require.NoError(t, mock.ExpectationsWereMet())

	tokens, issuedAt := stale.Tokens()
	require.Equal(t, rotated, tokens)
	require.True(t, rotatedAt.Equal(issuedAt))
	require.Equal(t, "/projects/7", stale.PendingRedirect())
}

func TestRepo_UpsertRetriesWhenKeyChanges(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := redisrepo.New(client, ttl)
	s := testSession()

	payload, err := json.Marshal(s)
	require.NoError(t, err)
	for _, execErr := range []error{redis.TxFailedErr, nil} {
		mock.ExpectWatch("session:sess-1")
		mock.ExpectGet("session:sess-1").RedisNil()
		mock.ExpectTxPipeline()
		mock.ExpectSet("session:sess-1", payload, ttl).SetVal("OK")
		exec := mock.ExpectTxPipelineExec()
		if execErr != nil {
			exec.SetErr(execErr)
		}
	}

	require.NoError(t, repo.Upsert(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpsertGivesUpAfterRepeatedConflicts(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := redisrepo.New(client, ttl)
	s := testSession()

	payload, err := json.Marshal(s)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		mock.ExpectWatch("session:sess-1")
		mock.ExpectGet("session:sess-1").RedisNil()
		mock.ExpectTxPipeline()
		mock.ExpectSet("session:sess-1", payload, ttl).SetVal("OK")
		mock.ExpectTxPipelineExec().SetErr(redis.TxFailedErr)
	}

	err = repo.Upsert(context.Background(), s)
	require.ErrorIs(t, err, redis.TxFailedErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		repo := redisrepo.New(client, ttl)
		payload, err := json.Marshal(testSession())
		require.NoError(t, err)
		mock.ExpectGet("session:sess-1").SetVal(string(payload))

		got, err := repo.Get(context.Background(), "sess-1")
		require.NoError(t, err)
		tokens, _ := got.Tokens()
		require.Equal(t, sessions.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600}, tokens)
		require.Equal(t, "/search?p=C1", got.PendingRedirect())
		require.Equal(t, []string{"C1"}, got.RecentDatasets())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		repo := redisrepo.New(client, ttl)
		mock.ExpectGet("session:nope").RedisNil()

		_, err := repo.Get(context.Background(), "nope")
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("redis failure", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		repo := redisrepo.New(client, ttl)
		mock.ExpectGet("session:sess-1").SetErr(errors.New("connection reset"))

		_, err := repo.Get(context.Background(), "sess-1")
		require.Error(t, err)
		require.NotErrorIs(t, err, errors.ErrSessionNotFound)
	})
}

func TestRepo_Delete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := redisrepo.New(client, ttl)
	mock.ExpectDel("session:sess-1").SetVal(1)

	require.NoError(t, repo.Delete(context.Background(), "sess-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
