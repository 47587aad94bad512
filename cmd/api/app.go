package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/georgemunganga/fanbase-backend/internal/config"
	"github.com/georgemunganga/fanbase-backend/internal/database"
	"github.com/georgemunganga/fanbase-backend/internal/discord"
	"github.com/georgemunganga/fanbase-backend/internal/lock"
	"github.com/georgemunganga/fanbase-backend/internal/logging"
	"github.com/georgemunganga/fanbase-backend/internal/modules/account"
	"github.com/georgemunganga/fanbase-backend/internal/modules/auth"
	"github.com/georgemunganga/fanbase-backend/internal/modules/authz"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/fulfillment"
	"github.com/georgemunganga/fanbase-backend/internal/modules/grant"
	"github.com/georgemunganga/fanbase-backend/internal/modules/notification"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/tier"
	"github.com/georgemunganga/fanbase-backend/internal/modules/transaction"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/georgemunganga/fanbase-backend/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type appOptions struct {
	inlineWorker bool
	component    string
}

// app holds the wired services shared by serve and worker.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	redisConn  *redis.Client
	redis      *queue.RedisScheduler
	dispatcher *queue.Dispatcher

	userService         user.Service
	authService         auth.Service
	notificationService notification.Service
	benefitService      benefit.Service
	tierService         tier.Service
	subscriptionService subscription.Service
	transactionService  transaction.Service
	grantService        grant.Service
	orchestrator        *grant.Orchestrator
}

func loadConfig(component string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: component})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig(opts.component)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db, dispatcher: queue.NewDispatcher()}

	// ── Queue ────────────────────────────────────────────────
	var scheduler queue.Scheduler
	if opts.inlineWorker {
		scheduler = queue.NewMemoryScheduler(ctx, a.dispatcher, cfg.WorkerConcurrency)
		log.Warn().Msg("benefit jobs run in-process; pending retries are lost on restart")
	} else {
		a.redisConn, err = queue.NewRedisClient(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.redis = queue.NewRedisScheduler(a.redisConn)
		scheduler = a.redis
	}

	var locker lock.Locker
	switch cfg.LockBackend {
	case config.LockBackendMemory:
		locker = lock.NewMemoryLocker()
	default:
		locker = lock.NewPGAdvisoryLocker(db)
	}

	// ── Repositories ─────────────────────────────────────────
	userRepo := user.NewPostgresRepository(db)
	accountRepo := account.NewPostgresRepository(db)
	benefitRepo := benefit.NewPostgresRepository(db)
	tierRepo := tier.NewPostgresRepository(db, benefitRepo)
	subscriptionRepo := subscription.NewPostgresRepository(db)

	// ── Identity & notifications ─────────────────────────────
	a.userService = user.NewService(userRepo)
	a.authService = auth.NewService(userRepo, cfg.JWTSecret)
	a.notificationService = notification.NewService(notification.NewPostgresRepository(db))

	// ── Benefit fulfillment ──────────────────────────────────
	discordClient := discord.NewClient(cfg.DiscordAPIURL, cfg.DiscordBotToken, cfg.DiscordRateLimit)
	registry := fulfillment.NewRegistry(map[benefit.Type]fulfillment.Service{
		benefit.TypeArticles: fulfillment.NewArticlesService(fulfillment.NewArticleAccessStore(db)),
		benefit.TypeAds:      fulfillment.NewAdsService(),
		benefit.TypeCustom:   fulfillment.NewCustomService(),
		benefit.TypeDiscord:  fulfillment.NewDiscordService(discordClient),
	})
	a.orchestrator = grant.NewOrchestrator(grant.Deps{
		Grants:        grant.NewPostgresRepository(db),
		Subscriptions: subscriptionRepo,
		Tiers:         tierRepo,
		Benefits:      benefitRepo,
		Users:         userRepo,
		Registry:      registry,
		Locker:        locker,
		Scheduler:     scheduler,
		Notifier:      a.notificationService,
	}, grant.Options{MaxAttempts: cfg.MaxGrantAttempts, FanOut: cfg.WorkerConcurrency})
	a.orchestrator.Register(a.dispatcher)
	authorizer := authz.NewService()
	a.grantService = grant.NewService(a.orchestrator, authorizer)

	// ── Configuration store & subscriptions ──────────────────
	guilds := discord.NewGuildTokenCodec(cfg.JWTSecret, 0)
	a.benefitService = benefit.NewService(benefitRepo, guilds, a.orchestrator)
	a.tierService = tier.NewService(tierRepo, a.benefitService)
	a.subscriptionService = subscription.NewService(subscriptionRepo, a.tierService, a.orchestrator)

	// ── Ledger ───────────────────────────────────────────────
	a.transactionService = transaction.NewService(transaction.NewPostgresRepository(db), accountRepo, authorizer)

	return a, nil
}

func (a *app) router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logging.RequestLogger)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	router.Handle("/metrics", promhttp.Handler())

	userHandler := user.NewHandler(a.userService)
	userHandler.RegisterRoutes(router)
	auth.NewHandler(a.authService).RegisterRoutes(router)

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.cfg.JWTSecret))
		userHandler.RegisterAuthenticatedRoutes(r)
		notification.NewHandler(a.notificationService).RegisterRoutes(r)
		benefit.NewHandler(a.benefitService).RegisterRoutes(r)
		tier.NewHandler(a.tierService).RegisterRoutes(r)
		subscription.NewHandler(a.subscriptionService).RegisterRoutes(r)
		grant.NewHandler(a.grantService, a.userService).RegisterRoutes(r)
		transaction.NewHandler(a.transactionService, a.userService).RegisterRoutes(r)
	})
	return router
}

func (a *app) Close() {
	if a.redisConn != nil {
		a.redisConn.Close()
	}
	a.db.Close()
}
