package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/config"
	"github.com/iliyamo/venue-booking/internal/database"
	"github.com/iliyamo/venue-booking/internal/handler"
	"github.com/iliyamo/venue-booking/internal/lock"
	"github.com/iliyamo/venue-booking/internal/mail"
	"github.com/iliyamo/venue-booking/internal/middleware"
	"github.com/iliyamo/venue-booking/internal/queue"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/repository"
	"github.com/iliyamo/venue-booking/internal/repository/memory"
	"github.com/iliyamo/venue-booking/internal/router"
	"github.com/iliyamo/venue-booking/internal/service"
	"github.com/iliyamo/venue-booking/internal/upload"
)

// backend is the persistence the services and handlers share.
type backend interface {
	repository.Store
	repository.HallDirectory
	repository.UserRegistry
}

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	if created, err := ensureAdmin(ctx, store, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, cfg.BcryptCost); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	} else if created {
		logger.Info("bootstrap admin created", zap.String("email", cfg.BootstrapAdminEmail))
	}

	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		logger.Fatal("redis config", zap.Error(err))
	}
	rdb := config.NewRedisClient(redisCfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	} else {
		logger.Info("redis unavailable: using in-process locks, no cross-instance fan-out, no rate limiting")
	}

	events := realtime.NewRouter(logger)
	var locks lock.Locker = lock.NewLocal()
	if rdb != nil {
		locks = lock.NewRedis(rdb, 0, logger)
		bridge := realtime.NewRedisBridge(rdb, logger)
		events.SetBridge(bridge)
		go func() {
			if err := bridge.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime bridge stopped", zap.Error(err))
			}
		}()
	}

	notifier := newNotifier(ctx, cfg, logger)

	proofs, err := upload.NewDiskStore(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		logger.Fatal("upload store", zap.Error(err))
	}

	svc := service.New(service.Deps{
		Store:         store,
		Halls:         store,
		Users:         store,
		Locks:         locks,
		Events:        events,
		Notifier:      notifier,
		Uploads:       proofs,
		Log:           logger,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	ws := realtime.NewWSServer(events, svc.Conversations.AuthorizeSubscription, logger)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover(), middleware.RequestLogger(logger))

	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		logger.Fatal("rate limit config", zap.Error(err))
	}
	router.Register(e, router.Handlers{
		Auth: handler.NewAuthHandler(handler.AuthConfig{
			JWTSecret:    cfg.JWTSecret,
			AccessTTLMin: cfg.AccessTTLMin,
			BcryptCost:   cfg.BcryptCost,
		}, store, logger),
		Bookings:      handler.NewBookingHandler(svc, logger),
		Deals:         handler.NewDealHandler(svc, logger),
		Payments:      handler.NewPaymentHandler(svc, proofs, logger),
		Conversations: handler.NewConversationHandler(svc, logger),
		Realtime:      handler.NewRealtimeHandler(ws, svc, cfg.JWTSecret, logger),
	}, router.Limits{
		Global: middleware.NewTokenBucket(rl, rdb, logger),
		Deals:  middleware.NewTokenBucket(config.DealRateLimitConfig(rl), rdb, logger),
	}, cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if c, ok := notifier.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Dev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, func(), error) {
	if cfg.StoreDriver == "memory" {
		st := memory.New()
		if cfg.SeedFile != "" {
			f, err := os.Open(cfg.SeedFile)
			if err != nil {
				return nil, nil, err
			}
			defer f.Close()
			users, halls, err := loadSeed(st, f, cfg.BcryptCost)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("seed loaded", zap.Int("users", users), zap.Int("halls", halls))
		}
		return st, func() {}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBAutoMigrate {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := database.Migrate(mctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("schema migrated")
	}
	if cfg.SeedFile != "" {
		logger.Warn("SEED_FILE is only applied to the memory store")
	}
	return repository.NewSQLStore(db), func() { _ = db.Close() }, nil
}

// newNotifier routes emails through RabbitMQ when configured, otherwise
// straight to the mailer.
func newNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) service.Notifier {
	var m mail.Sender = mail.Log{L: logger}
	if cfg.SMTPHost != "" {
		m = &mail.SMTP{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
	}
	if cfg.RabbitMQURL == "" {
		return mail.Direct{S: m}
	}
	go func() {
		if err := queue.RunEmailConsumer(ctx, cfg.RabbitMQURL, m, logger); err != nil {
			logger.Error("email consumer stopped", zap.Error(err))
		}
	}()
	return queue.NewOutbox(cfg.RabbitMQURL, logger)
}
