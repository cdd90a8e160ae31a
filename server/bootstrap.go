package server

import (
	"context"

	"github.com/lewismc/earthdata-search/auth"
	"github.com/lewismc/earthdata-search/cmr"
	"github.com/lewismc/earthdata-search/echo"
	"github.com/lewismc/earthdata-search/internal/config"
	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/internal/ratelimit"
	"github.com/lewismc/earthdata-search/orders"
	"github.com/lewismc/earthdata-search/sessions"
	"github.com/lewismc/earthdata-search/sessions/redisrepo"
	fakesessionrepo "github.com/lewismc/earthdata-search/sessions/repofakes"
	"github.com/lewismc/earthdata-search/token"
	"github.com/lewismc/earthdata-search/urs"
	"github.com/lewismc/earthdata-search/users"
	"github.com/lewismc/earthdata-search/users/pgrepo"
	fakeuserrepo "github.com/lewismc/earthdata-search/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const orderLimitPrefix = "orders:"

// Bootstrap wires the stores and upstream clients named by cfg. Stores without
// a configured URL fall back to in-memory implementations. The returned close
// function releases any connections that were opened.
func Bootstrap(ctx context.Context, cfg config.Config) (Deps, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if redisURL := cfg.GetRedisURL(); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return Deps{}, closeAll, errors.Wrapf(err, "[server.Bootstrap] parse REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	userRepo, err := bootstrapUsers(ctx, cfg, &closers)
	if err != nil {
		return Deps{}, closeAll, err
	}

	login, err := bootstrapURS(ctx, cfg)
	if err != nil {
		return Deps{}, closeAll, err
	}

	clientID := cfg.GetURSClientID()
	echoClient := echo.New(cfg, clientID)
	cmrClient := cmr.New(cfg, clientID)

	deps := Deps{
		Sessions: bootstrapSessions(cfg, redisClient),
		Tokens:   token.New(login, token.WithOffsets(cfg.GetServerExpirationOffset(), cfg.GetClientExpirationOffset())),
		Resolver: auth.NewResolver(userRepo, echoClient),
		Orders:   orders.NewSaga(cmrClient, echoClient),
		Login:    login,
		Limiter:  bootstrapLimiter(cfg, redisClient),
	}
	return deps, closeAll, nil
}

func bootstrapSessions(cfg config.Config, client *redis.Client) sessions.Repo {
	if client == nil {
		log.Warn().
			Dur("ttl", cfg.GetSessionTTL()).
			Msg("REDIS_URL not set, sessions are kept in process memory; use this for development only")
		return fakesessionrepo.NewFakeSessionRepo().WithTTL(cfg.GetSessionTTL())
	}
	return redisrepo.New(client, cfg.GetSessionTTL())
}

func bootstrapUsers(ctx context.Context, cfg config.Config, closers *[]func()) (users.Repo, error) {
	databaseURL := cfg.GetDatabaseURL()
	if databaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, users are kept in memory")
		return fakeuserrepo.NewFakeUserRepo(), nil
	}
	pool, err := pgrepo.Connect(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "[server.Bootstrap] connect to database")
	}
	*closers = append(*closers, pool.Close)

	repo := pgrepo.New(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, errors.Wrapf(err, "[server.Bootstrap] ensure schema")
	}
	return repo, nil
}

func bootstrapURS(ctx context.Context, cfg config.Config) (*urs.Client, error) {
	if cfg.GetURSIssuerURL() == "" {
		return urs.New(cfg), nil
	}
	client, err := urs.NewWithDiscovery(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "[server.Bootstrap] discover %s", cfg.GetURSIssuerURL())
	}
	return client, nil
}

func bootstrapLimiter(cfg config.Config, client *redis.Client) OrderLimiter {
	perMinute := cfg.GetOrdersPerMinute()
	if perMinute <= 0 {
		return nil
	}
	if client == nil {
		return ratelimit.NewMemory(perMinute)
	}
	return ratelimit.NewRedis(client, orderLimitPrefix, perMinute)
}
