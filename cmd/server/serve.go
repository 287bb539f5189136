package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"github.com/vedran77/parley/internal/config"
	"github.com/vedran77/parley/internal/database"
	"github.com/vedran77/parley/internal/metrics"
	"github.com/vedran77/parley/internal/repository"
	cachedrepo "github.com/vedran77/parley/internal/repository/cached"
	postgresrepo "github.com/vedran77/parley/internal/repository/postgres"
	redisrepo "github.com/vedran77/parley/internal/repository/redis"
	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/storage"
	"github.com/vedran77/parley/internal/transport/http/handlers"
	"github.com/vedran77/parley/internal/transport/http/middleware"
	"github.com/vedran77/parley/internal/transport/ws"
)

func serveCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP and WebSocket server",
		Flags: serveFlags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
}

func serveFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("PARLEY_PORT"),
			Destination: &cfg.Port,
			Value:       cfg.Port,
			Usage:       "HTTP server port",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("PARLEY_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Value:       cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins, * for any",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Server:",
			Sources:     cli.EnvVars("PARLEY_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
		&cli.DurationFlag{
			Name:        "drain-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("PARLEY_DRAIN_TIMEOUT"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "How long in-flight requests may run after a shutdown signal",
		},

		// ── Database ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("PARLEY_DB_URL"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "PostgreSQL connection URL",
		},
		&cli.IntFlag{
			Name:        "db-max-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("PARLEY_DB_MAX_CONNS"),
			Destination: &cfg.DBMaxConns,
			Value:       cfg.DBMaxConns,
			Usage:       "Maximum open connections in the pool",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("PARLEY_DB_MIGRATE_AT_START"),
			Destination: &cfg.MigrateAtStart,
			Value:       cfg.MigrateAtStart,
			Usage:       "Apply the schema before serving",
		},

		// ── Auth ──────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "jwt-secret",
			Category:    "Auth:",
			Sources:     cli.EnvVars("PARLEY_JWT_SECRET"),
			Destination: &cfg.JWTSecret,
			Value:       cfg.JWTSecret,
			Usage:       "HMAC secret for access tokens",
		},

		// ── Typing ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "typing-store",
			Category:    "Typing:",
			Sources:     cli.EnvVars("PARLEY_TYPING_STORE"),
			Destination: &cfg.TypingStore,
			Value:       cfg.TypingStore,
			Usage:       "Where typing leases live (postgres|redis)",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Typing:",
			Sources:     cli.EnvVars("PARLEY_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Value:       cfg.RedisURL,
			Usage:       "Redis URL for the redis typing store",
		},

		// ── Attachments ───────────────────────────────────────────
		&cli.StringFlag{
			Name:        "attachments-resolver",
			Category:    "Attachments:",
			Sources:     cli.EnvVars("PARLEY_ATTACHMENTS_RESOLVER"),
			Destination: &cfg.AttachmentResolver,
			Value:       cfg.AttachmentResolver,
			Usage:       "How storage ids become URLs (none|public|s3)",
		},
		&cli.StringFlag{
			Name:        "attachments-public-base-url",
			Category:    "Attachments:",
			Sources:     cli.EnvVars("PARLEY_ATTACHMENTS_PUBLIC_BASE_URL"),
			Destination: &cfg.PublicBaseURL,
			Usage:       "Base URL storage ids are joined onto",
		},
		&cli.StringFlag{
			Name:        "attachments-s3-bucket",
			Category:    "Attachments:",
			Sources:     cli.EnvVars("PARLEY_ATTACHMENTS_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket holding attachments",
		},
		&cli.StringFlag{
			Name:        "attachments-s3-prefix",
			Category:    "Attachments:",
			Sources:     cli.EnvVars("PARLEY_ATTACHMENTS_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix prepended to storage ids",
		},
		&cli.DurationFlag{
			Name:        "attachments-s3-presign-ttl",
			Category:    "Attachments:",
			Sources:     cli.EnvVars("PARLEY_ATTACHMENTS_S3_PRESIGN_TTL"),
			Destination: &cfg.S3PresignTTL,
			Value:       cfg.S3PresignTTL,
			Usage:       "Lifetime of presigned attachment URLs",
		},
		&cli.BoolFlag{
			Name:        "attachments-s3-use-path-style",
			Category:    "Attachments:",
			Sources:     cli.EnvVars("PARLEY_ATTACHMENTS_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (MinIO, LocalStack)",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "user-cache-size",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PARLEY_USER_CACHE_SIZE"),
			Destination: &cfg.UserCacheSize,
			Value:       cfg.UserCacheSize,
			Usage:       "Cached user entries, 0 disables the cache",
		},
		&cli.DurationFlag{
			Name:        "user-cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("PARLEY_USER_CACHE_TTL"),
			Destination: &cfg.UserCacheTTL,
			Value:       cfg.UserCacheTTL,
			Usage:       "Lifetime of a cached user entry",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("PARLEY_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	labels, err := metrics.ParseLabels(cfg.MetricsLabels)
	if err != nil {
		return fmt.Errorf("metrics labels: %w", err)
	}
	metrics.InitMetrics(labels)

	// Database
	pool, err := database.Connect(ctx, cfg.DBURL, int32(cfg.DBMaxConns))
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("Connected to database")

	if cfg.MigrateAtStart {
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
	}
	go metrics.WatchPool(ctx, pool, 15*time.Second)

	// Repositories
	txm := database.NewTxManager(pool)
	var userRepo repository.UserRepository = postgresrepo.NewUserRepo(pool)
	if cfg.UserCacheSize > 0 {
		cached, err := cachedrepo.NewUserRepo(userRepo, int64(cfg.UserCacheSize), cfg.UserCacheTTL)
		if err != nil {
			return fmt.Errorf("user cache: %w", err)
		}
		defer cached.Close()
		userRepo = cached
	}
	settingsRepo := postgresrepo.NewSettingsRepo(pool)
	friendshipRepo := postgresrepo.NewFriendshipRepo(pool)
	serverRepo := postgresrepo.NewServerRepo(pool)
	inviteRepo := postgresrepo.NewInviteRepo(pool)
	convRepo := postgresrepo.NewConversationRepo(pool)
	memberRepo := postgresrepo.NewMemberRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)

	var typingRepo repository.TypingRepository
	switch cfg.TypingStore {
	case config.TypingStoreRedis:
		redisTyping, err := redisrepo.NewTypingRepoFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisTyping.Close()
		typingRepo = redisTyping
		log.Info("Typing leases in redis")
	default:
		typingRepo = postgresrepo.NewTypingRepo(pool)
	}

	var urls storage.URLResolver
	switch cfg.AttachmentResolver {
	case config.AttachmentsPublic:
		urls, err = storage.NewPublicResolver(cfg.PublicBaseURL)
	case config.AttachmentsS3:
		urls, err = storage.NewS3Resolver(ctx, storage.S3Options{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			PresignTTL:   cfg.S3PresignTTL,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	}
	if err != nil {
		return err
	}

	// Services
	resolver := service.NewPermissionResolver(settingsRepo, friendshipRepo, serverRepo)
	authService := service.NewAuthService(txm, userRepo, settingsRepo, cfg.JWTSecret)
	directory := service.NewDirectoryService(txm, convRepo, memberRepo, messageRepo, userRepo, resolver)
	ledger := service.NewLedgerService(txm, convRepo, memberRepo, messageRepo, typingRepo, userRepo, resolver, directory, urls)
	projections := service.NewProjectionService(convRepo, memberRepo, messageRepo, typingRepo, userRepo, resolver)
	friendships := service.NewFriendshipService(txm, friendshipRepo, userRepo)
	settings := service.NewSettingsService(settingsRepo)
	servers := service.NewServerService(txm, serverRepo, inviteRepo, userRepo)

	// Realtime
	hub := ws.NewHub()
	go hub.Run(ctx)
	notifier := ws.NewHubNotifier(hub)
	directory.SetNotifier(notifier)
	ledger.SetNotifier(notifier)

	mux := http.NewServeMux()
	routes(mux, routeDeps{
		auth:          middleware.Auth(authService),
		authHandler:   handlers.NewAuthHandler(authService),
		conversations: handlers.NewConversationHandler(directory, ledger, projections),
		friendships:   handlers.NewFriendshipHandler(friendships),
		settings:      handlers.NewSettingsHandler(settings),
		servers:       handlers.NewServerHandler(servers),
		ws:            ws.ServeWS(hub, authService, wsConversations{projections, ledger}, cfg.Origins()),
	})

	handler := middleware.CORS(cfg.Origins())(mux)
	handler = middleware.AccessLog(log.Default())(handler)
	handler = metrics.Middleware(handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down...")

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

// wsConversations joins the two services a WebSocket client talks to.
type wsConversations struct {
	projections *service.ProjectionService
	ledger      *service.LedgerService
}

func (c wsConversations) Authorize(ctx context.Context, userID, conversationID uuid.UUID) error {
	return c.projections.Authorize(ctx, userID, conversationID)
}

func (c wsConversations) StartTyping(ctx context.Context, userID, conversationID uuid.UUID) error {
	return c.ledger.StartTyping(ctx, userID, conversationID)
}

func (c wsConversations) StopTyping(ctx context.Context, userID, conversationID uuid.UUID) error {
	return c.ledger.StopTyping(ctx, userID, conversationID)
}
