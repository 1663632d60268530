package cli

import (
	"context"
	"time"

	"riskgate/internal/config"
	"riskgate/internal/decision"
	"riskgate/internal/detect"
	"riskgate/internal/geo"
	"riskgate/internal/ledger"
	"riskgate/internal/metrics"
	"riskgate/internal/store"
	"riskgate/internal/token"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 3 * time.Second

// components are the long-lived pieces shared by every subcommand.
type components struct {
	kv      store.KeyValueStore
	redis   *redis.Client
	ledger  *ledger.Ledger
	engine  *decision.Engine
	locator *geo.GeoIPLocator
	metrics *metrics.Metrics
}

func (c *components) Close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.locator != nil {
		_ = c.locator.Close()
	}
}

// build connects storage and assembles the engine. An unreachable Redis is only
// logged; the ledger falls back to memory on its first failed call. An unset
// address keeps everything in memory.
func build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*components, error) {
	c := &components{metrics: metrics.New()}

	if cfg.Redis.Addr != "" {
		client := store.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis unreachable, ledger will fall back to memory")
		}
		cancel()
		c.redis = client
		c.kv = store.NewRedisStore(client, cfg.Redis.Prefix)
	} else {
		log.Warn("No redis address configured, ledger is process-local")
		c.kv = store.NewMemoryStore()
	}

	blocked, err := ledger.NewIPBlocklist(cfg.BlacklistedIPs)
	if err != nil {
		log.WithError(err).Warn("Ignoring invalid blacklisted_ips entries")
	}

	var locator geo.Locator
	if cfg.GeoIP.DatabasePath != "" {
		c.locator, err = geo.Open(cfg.GeoIP.DatabasePath)
		if err != nil {
			log.WithError(err).Warn("GeoIP database load error, region checks disabled")
		} else {
			locator = c.locator
		}
	}

	c.ledger = ledger.New(c.kv, ledger.Options{
		MaxFailedAttempts: cfg.Ledger.MaxFailedAttempts,
		BlacklistDuration: cfg.Ledger.BlacklistDuration,
		StoreTimeout:      cfg.Ledger.StoreTimeout,
		BlockedIPs:        blocked,
		Logger:            log,
		Metrics:           c.metrics,
	})
	c.engine = decision.NewEngine(c.ledger, decision.Options{
		Settings: decision.SettingsFromConfig(cfg),
		Policy:   detect.PolicyFromConfig(cfg.Detection),
		Locator:  locator,
		Logger:   log,
		Metrics:  c.metrics,
	})
	return c, nil
}

func newIssuer() *token.Issuer {
	if cfg.Token.Secret == config.DefaultConfig().Token.Secret {
		log.Warn("Using the default token secret; set RISKGATE_TOKEN_SECRET in production")
	}
	return token.NewIssuer(cfg.Token.Secret, cfg.Token.TTL, nil)
}
