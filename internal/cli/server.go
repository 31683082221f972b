package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pginfra "quiz-attempt-service/internal/infra/postgres"
	redisinfra "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/leaderboard"
	"quiz-attempt-service/internal/monitoring"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// core bundles the wired use-case layer shared by the start and sweep
// commands.
type core struct {
	service *app.AttemptService
	store   app.AttemptStore
	source  leaderboard.ResultSource
	cache   leaderboard.Cache
	engine  *leaderboard.Engine
	sweeper *app.Sweeper
	cleanup func()
}

func setupCore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*core, error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	var bunDB *bun.DB
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, pool.Close)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB = bun.NewDB(sqldb, pgdialect.New())
		closers = append(closers, func() { _ = bunDB.Close() })
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.AttemptStore
	var source leaderboard.ResultSource
	if bunDB != nil {
		pgStore := pginfra.NewAttemptStore(bunDB)
		store, source = pgStore, pgStore
	} else {
		memStore := memory.NewAttemptStore()
		store, source = memStore, memStore
	}

	var cache leaderboard.Cache
	if redisClient != nil {
		cache = redisinfra.NewLeaderboardCache(redisClient, config.TTLDuration(cfg.Leaderboard.TTL, 0))
	} else {
		cache = memory.NewLeaderboardCache()
	}
	engine := leaderboard.NewEngine(cache, leaderboard.NewHub(), logger)

	notifier := app.NewAsyncNotifier(app.NewLogNotifier(logger), 64)
	closers = append(closers, notifier.Close)

	service := app.NewAttemptService(store, quizRepo, engine, notifier, logger)
	sweeper := app.NewSweeper(service, store,
		config.TTLDuration(cfg.Sweep.Interval, time.Minute), cfg.Sweep.BatchSize, logger)

	return &core{
		service: service,
		store:   store,
		source:  source,
		cache:   cache,
		engine:  engine,
		sweeper: sweeper,
		cleanup: cleanup,
	}, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Server.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	monitoring.Init()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	c, err := setupCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.cleanup()

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go c.sweeper.Run(bgCtx)
	reconciler := leaderboard.NewReconciler(c.cache, c.source,
		config.TTLDuration(cfg.Leaderboard.ReconcileInterval, 5*time.Minute), logger)
	go reconciler.Run(bgCtx)

	handler := transport.NewHandler(c.service, c.engine, logger)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting attempt service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}
	cancelBg()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// sampleQuizzes provides minimal quiz content for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:              "quiz-1",
			Title:           "Arithmetic warm-up",
			Status:          domain.QuizPublished,
			DurationMinutes: 10,
			PassingScore:    50,
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Type: domain.QuestionMCQ,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					Points: 1,
				},
				{
					ID:   "q2",
					Text: "7 is a prime number.",
					Type: domain.QuestionTrueFalse,
					Options: []domain.Option{
						{ID: "true", Text: "True", Correct: true},
						{ID: "false", Text: "False"},
					},
					Points: 1,
				},
			},
		},
	}
}
