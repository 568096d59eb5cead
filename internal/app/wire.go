package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/gitco/alphatrader/internal/blob/s3"
	"github.com/gitco/alphatrader/internal/cache/redis"
	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/engine"
	"github.com/gitco/alphatrader/internal/exchange"
	"github.com/gitco/alphatrader/internal/metrics"
	"github.com/gitco/alphatrader/internal/notify"
	"github.com/gitco/alphatrader/internal/store/postgres"
	"github.com/gitco/alphatrader/internal/strategy"
)

// Dependencies bundles every component the application needs to run. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Positions domain.PositionStore
	State     domain.StateStore
	Audit     domain.AuditStore

	// Caches and coordination
	Tickers     domain.TickerCache
	Bus         domain.EventBus
	Locks       domain.LockManager
	RateLimiter domain.RateLimiter

	// Health probes
	PostgresPing func(ctx context.Context) error
	RedisPing    func(ctx context.Context) error

	// Exchange (live client or paper simulator per cfg.Mode)
	Exchange domain.Exchange

	// Blob archival, nil when S3 is disabled
	Archiver domain.Archiver

	// Engine
	Engine     *engine.Engine
	Accounting *engine.Accounting
	Lifecycle  *engine.Lifecycle
	Signals    *engine.SignalLog
	Registry   *strategy.Registry
	Safety     *engine.SafetyMonitor
	Metrics    *metrics.Metrics

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	posStore := postgres.NewPositionStore(pool)
	deps.Positions = posStore
	deps.State = postgres.NewStateStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)
	deps.PostgresPing = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Tickers = redis.NewTickerCache(redisClient)
	deps.Bus = redis.NewEventBus(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.RedisPing = func(ctx context.Context) error {
		return redisClient.Underlying().Ping(ctx).Err()
	}

	// --- Exchange ---
	bingx := exchange.NewBingX(exchange.BingXConfig{
		BaseURL:        cfg.Exchange.BaseURL,
		APIKey:         cfg.Exchange.APIKey,
		APISecret:      cfg.Exchange.APISecret,
		QuoteAsset:     cfg.Exchange.QuoteAsset,
		CommissionPct:  cfg.Exchange.CommissionPct,
		RequestTimeout: cfg.Exchange.RequestTimeout.Duration,
		RateLimit:      cfg.Exchange.RateLimit,
		RateWindow:     cfg.Exchange.RateWindow.Duration,
	}, deps.RateLimiter, logger)

	if strings.ToLower(cfg.Mode) == "live" {
		deps.Exchange = bingx
	} else {
		deps.Exchange = exchange.NewPaper(
			bingx,
			cfg.Exchange.QuoteAsset,
			cfg.Exchange.PaperBaseBalance,
			cfg.Exchange.CommissionPct,
			logger,
		)
	}

	// --- S3 cold storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			posStore,
			deps.Audit,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Strategies ---
	deps.Registry = strategy.NewRegistry()
	for _, name := range cfg.Scanner.Strategies {
		switch strings.ToLower(name) {
		case "alpha_hunter":
			deps.Registry.Register(strategy.NewAlphaHunter(strategy.DefaultAlphaHunterConfig()))
		case "bollinger_reversion":
			deps.Registry.Register(strategy.NewBollingerReversion(strategy.DefaultBollingerReversionConfig()))
		default:
			cleanup()
			return nil, nil, fmt.Errorf("wire: unknown strategy %q", name)
		}
	}

	// --- Engine ---
	deps.Metrics = metrics.New()
	deps.Safety = engine.NewSafetyMonitor(
		cfg.Risk.FailureThreshold,
		cfg.Risk.PauseDuration.Duration,
		logger,
	)
	deps.Signals = engine.NewSignalLog(500)

	alloc := engine.NewAllocator(cfg.Risk)
	admission := engine.NewAdmissionController(alloc, deps.Safety, cfg.Risk, logger)
	deps.Accounting = engine.NewAccounting(deps.Exchange, deps.Positions, deps.Safety, cfg.Exchange.QuoteAsset)

	deps.Lifecycle = engine.NewLifecycle(
		deps.Exchange,
		deps.Positions,
		deps.State,
		deps.Audit,
		deps.Bus,
		deps.Notifier,
		deps.Safety,
		deps.Metrics,
		cfg.Lifecycle,
		cfg.Risk,
		logger,
	)

	watcher := engine.NewWatcher(
		deps.Exchange,
		deps.Positions,
		deps.Lifecycle,
		deps.Safety,
		deps.Metrics,
		cfg.Lifecycle,
		logger,
	)

	scanner := engine.NewScanner(
		deps.Exchange,
		deps.Tickers,
		deps.Bus,
		deps.State,
		deps.Registry,
		admission,
		alloc,
		deps.Lifecycle,
		deps.Accounting,
		deps.Signals,
		deps.Safety,
		deps.Metrics,
		cfg.Scanner,
		cfg.Exchange.QuoteAsset,
		logger,
	)

	reconciler := engine.NewReconciler(
		deps.Exchange,
		deps.Positions,
		deps.Audit,
		deps.Safety,
		deps.Metrics,
		cfg.Lifecycle,
		logger,
	)

	var locks domain.LockManager
	if cfg.Engine.LeaderLock {
		locks = deps.Locks
	}

	deps.Engine = engine.NewEngine(
		watcher,
		scanner,
		reconciler,
		deps.Accounting,
		deps.State,
		deps.Audit,
		deps.Bus,
		locks,
		deps.Archiver,
		deps.Safety,
		deps.Metrics,
		cfg.Lifecycle,
		cfg.Scanner,
		cfg.Engine,
		cfg.S3.ArchiveInterval.Duration,
		logger,
	)

	return deps, cleanup, nil
}
