package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/redis/go-redis/v9"

	trackerbot "github.com/set-night/trackerbot"
	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/conversation"
	"github.com/set-night/trackerbot/internal/handler"
	"github.com/set-night/trackerbot/internal/middleware"
	"github.com/set-night/trackerbot/internal/repository"
	"github.com/set-night/trackerbot/internal/service"
	"github.com/set-night/trackerbot/internal/telegram"
	"github.com/set-night/trackerbot/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(trackerbot.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Webhook dedup: Redis when configured, otherwise in memory
	var dedup service.DedupStore
	var memDedup *service.MemoryDedup
	if cfg.UseRedis() {
		var rdb *redis.Client
		rdb, err = repository.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		dedup = service.NewRedisDedup(rdb, config.DedupTTL)
		slog.Info("using redis dedup store", "addr", cfg.RedisAddr)
	} else {
		memDedup = service.NewMemoryDedup(config.DedupTTL)
		dedup = memDedup
	}

	// Initialize services
	httpClient := service.NewHTTPClient(cfg.HTTPTimeout, cfg.HTTPMaxConns)
	issueCache := service.NewIssueCache(config.IssueCacheTTL)
	tracker := service.NewTrackerService(service.TrackerOptions{
		BaseURL:    cfg.TrackerBaseURL,
		Token:      cfg.TrackerToken,
		AuthScheme: cfg.TrackerAuthScheme,
		OrgID:      cfg.TrackerOrgID,
		Queue:      cfg.TrackerQueue,
		HTTPClient: httpClient,
		Issues:     issueCache,
	})
	userService := service.NewUserService(
		repository.NewUserRepository(pool),
		repository.NewIssueRepository(pool),
	)
	limiter := service.NewRateLimiter(config.ActionCooldown)

	// Handler pointer for use in default handler closure
	var h *handler.Handler
	var tgLogger *telegram.TelegramLogger

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(middleware.ReporterFunc(func(err error, where string) {
				tgLogger.LogError(err, where)
			})),
			middleware.Logging(),
		),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if h == nil {
				return
			}
			h.HandleDefault(ctx, b, update)
		}),
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}
	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	// Initialize telegram logger
	tgLogger = telegram.NewTelegramLogger(b, cfg)
	sender := telegram.NewSender(b)

	attachments := service.NewAttachmentPipeline(service.AttachmentOptions{
		Locator:    sender,
		Uploader:   tracker,
		HTTPClient: httpClient,
		TempDir:    cfg.TempDir,
		MaxSize:    config.MaxUploadSize,
	})
	albums := service.NewAlbumAggregator(attachments, config.AlbumQuietPeriod)
	defer albums.Stop()

	engine := conversation.NewEngine(conversation.Deps{
		Users:    userService,
		Tracker:  tracker,
		Uploader: attachments,
		Albums:   albums,
		Chat:     sender,
		Limiter:  limiter,
		OpsLog:   tgLogger,
	}, conversation.Options{
		IssueURL:      cfg.IssueURL,
		Fields:        conversation.DefaultFields(cfg),
		MaxUploadSize: config.MaxUploadSize,
	})
	albums.SetSink(engine)

	relay := service.NewWebhookRelay(service.RelayOptions{
		Tracker:    tracker,
		Downloader: attachments,
		Chat:       sender,
		Dedup:      dedup,
		IssueURL:   cfg.IssueURL,
	})

	// Initialize handler
	h = handler.New(handler.Deps{
		Bot:      b,
		Engine:   engine,
		Answerer: sender,
	})

	// Register all handlers
	h.Register()

	// Start webhook server
	srv := webhook.New(webhook.Options{
		Relay: relay,
		Token: cfg.WebhookToken,
		DB:    pool,
	})
	go func() {
		if err := srv.Listen(cfg.WebhookAddr); err != nil {
			slog.Error("webhook server stopped", "error", err)
			stop()
		}
	}()

	// Prune expired dedup keys, cooldowns and cached issues
	go func() {
		ticker := time.NewTicker(config.DedupPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if memDedup != nil {
					if n := memDedup.Prune(); n > 0 {
						slog.Debug("dedup keys pruned", "count", n)
					}
				}
				limiter.Prune()
				issueCache.Prune()
			}
		}
	}()

	// Start bot
	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("failed to drop pending updates", "error", err)
		}
	}
	slog.Info("starting bot", "username", me.Username, "id", me.ID)
	b.Start(ctx)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("webhook server shutdown", "error", err)
	}
	slog.Info("bot stopped gracefully")
}
