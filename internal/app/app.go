package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/auth"
	"github.com/gokatarajesh/peerprep/internal/collab"
	"github.com/gokatarajesh/peerprep/internal/config"
	"github.com/gokatarajesh/peerprep/internal/history"
	"github.com/gokatarajesh/peerprep/internal/logging"
	"github.com/gokatarajesh/peerprep/internal/match"
	matchqueue "github.com/gokatarajesh/peerprep/internal/match/queue"
	"github.com/gokatarajesh/peerprep/internal/question"
	"github.com/gokatarajesh/peerprep/internal/server"
	ws "github.com/gokatarajesh/peerprep/pkg/http/ws"
)

// worker is a background loop started with the application.
type worker interface {
	Run(ctx context.Context) error
}

type namedWorker struct {
	name string
	w    worker
}

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	workers   []namedWorker
	bgCancels []context.CancelFunc
}

// New bootstraps configs, logger, Postgres, Redis and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	identifier := auth.NewIdentifier(cfg.Auth.JWTSecret)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("AUTH_JWT_SECRET not set; trusting gateway identity headers")
	}

	requireIdentity := auth.Middleware(identifier, logger)

	wsHub := ws.NewHub(logger)
	upgrader := server.NewUpgrader(cfg.CORS.AllowedOrigins, logger)

	// Matching
	queueMgr := matchqueue.NewManager(logger, matchqueue.Options{})
	matchSvc := match.NewService(queueMgr, match.ServiceOptions{StaleAfter: cfg.Matching.StaleAfter}, logger)
	matchWSHandler := match.NewHandler(matchSvc, wsHub, identifier, upgrader, logger)
	matchHTTP := match.NewHTTPHandlers(matchSvc, logger)
	expiryWorker := match.NewExpiryWorker(matchSvc, cfg.Matching.SweepInterval, logger)

	// History
	historyRepo := history.NewRepository(pool)
	historyHTTP := history.NewHTTPHandler(historyRepo, logger)
	var historyRecorder collab.HistoryRecorder
	var recorder *history.Recorder
	if cfg.History.Enabled {
		historyRecorder = history.NewPublisher(redisClient, cfg.History.Channel)
		recorder = history.NewRecorder(redisClient, historyRepo, cfg.History.Channel, logger)
	} else {
		logger.Info().Msg("session history disabled")
	}

	// Collaboration
	questionClient := question.NewClient(cfg.Question.BaseURL, cfg.Question.FetchTimeout, nil)
	coordinator := collab.NewCoordinator(questionClient, wsHub, collab.Options{
		IdleTimeout: cfg.Collab.IdleTimeout,
		InitTimeout: 4 * cfg.Question.FetchTimeout,
		History:     historyRecorder,
		Sessions:    matchSvc,
	}, logger)
	collabWSHandler := collab.NewHandler(coordinator, wsHub, identifier, upgrader, logger)
	idleWorker := collab.NewIdleWorker(coordinator, cfg.Collab.IdleSweepInterval, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, stats{matchSvc, coordinator}, server.Routes{
		MatchingWS:     matchWSHandler.HandleWebSocket,
		CollabWS:       collabWSHandler.HandleWebSocket,
		MatchingStatus: requireIdentity(http.HandlerFunc(matchHTTP.Status)).ServeHTTP,
		History:        requireIdentity(http.HandlerFunc(historyHTTP.HandleList)).ServeHTTP,
	})

	workers := []namedWorker{
		{name: "match expiry worker", w: expiryWorker},
		{name: "collab idle worker", w: idleWorker},
	}
	if recorder != nil {
		workers = append(workers, namedWorker{name: "history recorder", w: recorder})
	}

	return &Application{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		redis:     redisClient,
		http:      apiServer,
		workers:   workers,
		bgCancels: make([]context.CancelFunc, 0, len(workers)),
	}, nil
}

type stats struct {
	match  *match.Service
	collab *collab.Coordinator
}

func (s stats) QueueLength() int { return s.match.QueueLength() }
func (s stats) RoomCount() int   { return s.collab.RoomCount() }

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	timeout := a.cfg.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	for _, nw := range a.workers {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func(nw namedWorker) {
			if err := nw.w.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Str("worker", nw.name).Msg("background worker stopped")
			}
		}(nw)
	}
}
