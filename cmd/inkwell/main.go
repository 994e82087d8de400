package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-cms/inkwell/cmd/inkwell/cli"
	"github.com/inkwell-cms/inkwell/internal/app"
	"github.com/inkwell-cms/inkwell/internal/articles"
	"github.com/inkwell-cms/inkwell/internal/auth"
	"github.com/inkwell-cms/inkwell/internal/dashboard"
	"github.com/inkwell-cms/inkwell/internal/observability"
	"github.com/inkwell-cms/inkwell/internal/platform/cache"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
	"github.com/inkwell-cms/inkwell/internal/platform/objstore"
	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/users"
	"github.com/inkwell-cms/inkwell/internal/view"
	"github.com/inkwell-cms/inkwell/jobs"
)

const usage = `usage: inkwell [command]

commands:
  serve                 run the HTTP server (default)
  migrate               apply database migrations
  seed                  apply migrations and create the bootstrap super user
  jobs trigger <name>   enqueue a maintenance job (activity:prune)
  jobs stats            print the default queue state`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger, false)
	case "seed":
		err = migrate(ctx, cfg, logger, true)
	case "jobs":
		err = runJobs(ctx, cfg, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd+" failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, seed bool) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, logger)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", slog.Int("applied", len(applied)))
	if !seed {
		return nil
	}
	_, err = cli.NewSeeder(users.NewRepository(pool), logger, 0).SeedSuperUser(ctx, cfg.SeedSuperUserPassword)
	return err
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI := cli.NewJobsCLI(cfg.AsynqRedisOpt(), cfg.ActivityRetentionDays)
	defer func() { _ = jobsCLI.Close() }()

	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("jobs trigger: job name required")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
	return nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, shared.SessionConfig{
		CookieName: "inkwell_session",
		Secret:     cfg.SessionSecret,
		Timeout:    cfg.SessionTimeout,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.IsProduction(),
	})
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	metrics := observability.NewMetrics()
	guard := rbac.Middleware{Logger: logger, Metrics: metrics}
	activity := shared.NewActivityLogger(dbpool, logger)

	jobClient := jobs.NewClient(cfg.AsynqRedisOpt())
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.NewRepository(dbpool), logger, metrics)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, activity)

	userOpts := users.Options{
		Notifier:      jobClient,
		MaxImageBytes: cfg.UploadMaxBytes,
		Logger:        logger,
	}
	var avatars users.ImageSource
	if cfg.StorageEnabled() {
		store, err := objstore.NewClient(objstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
		userOpts.Images = store
		avatars = store
	} else {
		logger.Warn("object storage not configured, profile images disabled")
	}
	userService := users.NewService(users.NewRepository(dbpool), userOpts)
	usersHandler := users.NewHandler(logger, userService, templates, csrfManager, guard, activity, avatars)

	articleService := articles.NewService(articles.NewRepository(dbpool), logger)
	articlesHandler := articles.NewHandler(logger, articleService, templates, csrfManager, guard, activity)

	dashboardHandler := dashboard.NewHandler(logger, dashboard.NewService(userService, articleService), templates, csrfManager, guard)

	inspector := asynq.NewInspector(cfg.AsynqRedisOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Guard:            guard,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		UsersHandler:     usersHandler,
		ArticlesHandler:  articlesHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Checks: map[string]app.HealthChecker{
			"postgres": pingPostgres(dbpool),
			"redis":    pingRedis(redisClient),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func pingPostgres(pool *pgxpool.Pool) app.HealthChecker {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
}

func pingRedis(client *redis.Client) app.HealthChecker {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}
