package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/config"
	"github.com/iliyamo/medilink/internal/database"
	"github.com/iliyamo/medilink/internal/handler"
	"github.com/iliyamo/medilink/internal/lock"
	"github.com/iliyamo/medilink/internal/logger"
	"github.com/iliyamo/medilink/internal/metrics"
	"github.com/iliyamo/medilink/internal/middleware"
	"github.com/iliyamo/medilink/internal/queue"
	"github.com/iliyamo/medilink/internal/repository"
	"github.com/iliyamo/medilink/internal/router"
	"github.com/iliyamo/medilink/internal/service"
	"github.com/iliyamo/medilink/internal/sms"
	"github.com/iliyamo/medilink/internal/utils"
)

const sweepLockKey = "medilink:lock:sweeper"

func main() {
	root := &cobra.Command{
		Use:          "medilink",
		Short:        "Hospital bed allocation API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), sweepCmd(), migrateCmd(), hashPasswordCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs.
type app struct {
	cfg config.Config
	log *zap.Logger
	db  *sql.DB
	rdb *redis.Client
}

func bootstrap(withRedis bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		log.Error("database connection failed", zap.String("host", cfg.DBHost), zap.Error(err))
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db}
	if withRedis {
		rc := config.LoadRedisConfig()
		if a.rdb = config.NewRedisClient(rc); a.rdb == nil {
			log.Warn("redis unavailable, rate limiting, response cache and sweep lock disabled", zap.String("addr", rc.Addr))
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.db.Close()
	_ = a.log.Sync()
}

// sweeper builds the expiry sweeper.  With Redis available the sweep is
// serialised across replicas.
func (a *app) sweeper(m *metrics.Collector, onChange service.ChangeHook) *service.Sweeper {
	opts := []service.SweeperOption{
		service.WithSweepLogger(a.log.Named("sweeper")),
		service.WithSweepMetrics(m),
		service.WithSweepChangeHook(onChange),
	}
	if a.rdb != nil {
		opts = append(opts, service.WithSweepLocker(lock.NewRedisLocker(a.rdb, sweepLockKey, a.cfg.Bed.SweepInterval)))
	}
	return service.NewSweeper(repository.NewAllocationRepo(a.db), a.cfg.Bed, opts...)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the expiry sweeper and the SMS consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer a.close()
			return runServer(cmd.Context(), a)
		},
	}
}

func runServer(parent context.Context, a *app) error {
	cfg, log := a.cfg, a.log

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	cacheCfg := config.LoadCacheConfig()
	purge := middleware.CachePurger(a.rdb, cacheCfg.Prefix, log)

	allocRepo := repository.NewAllocationRepo(a.db)
	patientRepo := repository.NewPatientRepo(a.db)
	wardRepo := repository.NewWardRepo(a.db)

	allocSvc := service.NewAllocationService(allocRepo, patientRepo, wardRepo,
		service.WithNotifier(queue.NewPublisher(cfg.RabbitURL, log.Named("publisher"))),
		service.WithChangeHook(purge),
		service.WithLogger(log.Named("allocation")),
		service.WithMetrics(m),
		service.WithGraceWindow(cfg.Bed.GraceWindow),
	)
	wardSvc := service.NewWardService(wardRepo, log.Named("ward"), purge)

	var sender queue.Sender = sms.LogSender{Logger: log.Named("sms")}
	if cfg.SMS.APIToken != "" {
		sender = sms.NewClient(cfg.SMS, log.Named("sms"))
	}
	consumer := queue.NewConsumer(cfg.RabbitURL, sender, log.Named("sms-consumer"), m)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log.Named("http"), m))

	guards := router.Guards{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), a.rdb, log.Named("ratelimit")),
		Cache:     middleware.NewRedisCache(cacheCfg, a.rdb),
	}
	beds := handler.NewBedHandler(allocSvc, log)
	router.RegisterRoutes(e, metrics.Handler(reg))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, patientRepo, log), guards)
	router.RegisterPatient(e, beds, guards)
	router.RegisterAdmin(e, beds, handler.NewWardHandler(wardSvc, log), guards)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := a.sweeper(m, purge)
	sweeper.Start(ctx)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			log.Error("sms consumer stopped", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
			log.Error("http server failed", zap.Error(err))
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	sweeper.Stop()
	<-consumerDone
	return runErr
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim unconfirmed allocations once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer a.close()

			cacheCfg := config.LoadCacheConfig()
			sw := a.sweeper(nil, middleware.CachePurger(a.rdb, cacheCfg.Prefix, a.log))
			res, err := sw.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d deleted=%d purged=%d skipped=%t\n",
				res.Expired, res.Deleted, res.Purged, res.Skipped)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := database.Migrate(ctx, a.db); err != nil {
				return err
			}
			a.log.Info("schema applied")
			return nil
		},
	}
}

// hashPasswordCmd prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func hashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := utils.HashPassword(args[0], cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}
