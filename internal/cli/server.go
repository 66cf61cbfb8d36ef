package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/config"
	"github.com/maluguiro/examen-proctor/internal/domain"
	"github.com/maluguiro/examen-proctor/internal/infra/memory"
	"github.com/maluguiro/examen-proctor/internal/infra/postgres"
	infraredis "github.com/maluguiro/examen-proctor/internal/infra/redis"
	"github.com/maluguiro/examen-proctor/internal/logger"
	"github.com/maluguiro/examen-proctor/internal/metrics"
	transport "github.com/maluguiro/examen-proctor/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the proctoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, cleanup, err := buildDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	m := metrics.New()
	service := app.NewAttemptService(deps.exams, deps.exams, deps.store,
		app.WithLogger(log),
		app.WithMetrics(m),
		app.WithFeeds(deps.feeds),
		app.WithEventLog(deps.events),
		app.WithMaxAnswerBytes(cfg.Engine.MaxAnswerBytes),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, log, m),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}
	shutdownTimeout := config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting proctor service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type catalog interface {
	app.ExamCatalog
	app.QuestionBank
}

type dependencies struct {
	exams  catalog
	store  app.AttemptStore
	feeds  app.FeedRepository
	events app.EventLog
}

// buildDependencies picks Postgres and Redis backed adapters when configured
// and falls back to the in-memory ones otherwise.
func buildDependencies(ctx context.Context, cfg config.Config, log *zap.Logger) (dependencies, func(), error) {
	var (
		deps     dependencies
		closers  []func()
		loader   memory.ExamLoader
		examTTL  = config.TTLDuration(cfg.Exam.TTL, 10*time.Minute)
		redisTTL = config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		retain   = config.TTLDuration(cfg.Events.Retention, time.Hour)
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		if err := runMigrations(ctx, db, log); err != nil {
			cleanup()
			return deps, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return deps, nil, err
		}
		closers = append(closers, pool.Close)
		loader = postgres.NewExamLoader(pool)
		deps.store = postgres.NewAttemptStore(db)
		log.Info("using postgres storage")
	} else {
		exams := map[string]domain.Exam{}
		if cfg.Exam.Fixtures != "" {
			loaded, err := config.LoadExamFixtures(cfg.Exam.Fixtures)
			if err != nil {
				return deps, nil, err
			}
			exams = loaded
		}
		loader = memory.NewStaticExamLoader(exams)
		deps.store = memory.NewAttemptStore()
		log.Warn("postgres not configured; attempts are kept in memory", zap.Int("exams", len(exams)))
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			cleanup()
			return deps, nil, err
		}
		deps.exams = infraredis.NewExamRepository(client, loader, examTTL)
		deps.feeds = infraredis.NewFeedStore(client, redisTTL)
		deps.events = infraredis.NewEventLog(client, int64(cfg.Events.Capacity), retain)
		log.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		deps.exams = memory.NewExamRepository(loader, examTTL)
		deps.feeds = memory.NewFeedStore()
		deps.events = memory.NewEventLog(cfg.Events.Capacity, retain)
	}
	return deps, cleanup, nil
}
