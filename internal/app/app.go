// Package app assembles the marketplace services from configuration and
// runs the HTTP server and the background sweeps.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GroupBuyBusiness/internal/auth"
	"github.com/router-for-me/GroupBuyBusiness/internal/catalog"
	"github.com/router-for-me/GroupBuyBusiness/internal/config"
	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/grouplock"
	"github.com/router-for-me/GroupBuyBusiness/internal/http/api"
	"github.com/router-for-me/GroupBuyBusiness/internal/jobs"
	"github.com/router-for-me/GroupBuyBusiness/internal/lifecycle"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/payment"
	"github.com/router-for-me/GroupBuyBusiness/internal/ratelimit"
	"github.com/router-for-me/GroupBuyBusiness/internal/tracing"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the wired services.
type App struct {
	cfg config.Config
	now func() time.Time

	DB       *gorm.DB
	Locks    *grouplock.Manager
	Limits   *ratelimit.Manager
	Payments payment.Provider
	Inbox    *notify.StoreNotifier
	Auth     *auth.Service
	Catalog  *catalog.Service
	Groups   *lifecycle.Service
	Runner   *jobs.Runner

	closers []func() error
}

// New opens the database, applies migrations and builds every service.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	conn, errOpen := db.Open(cfg.DSN())
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}

	a := &App{cfg: cfg, now: nowUTC, DB: conn}

	a.Locks = grouplock.NewManager(func() grouplock.Settings {
		return grouplock.Settings{
			RedisEnabled:  cfg.Redis.Enabled,
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			RedisPrefix:   cfg.Redis.Prefix,
		}
	}, a.now, nil)
	a.closers = append(a.closers, a.Locks.Close)

	a.Limits = ratelimit.NewManager(func() ratelimit.Settings {
		return ratelimit.Settings{
			RedisEnabled:  cfg.Redis.Enabled,
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			RedisPrefix:   cfg.Redis.Prefix,
		}
	}, a.now, nil)
	a.closers = append(a.closers, a.Limits.Close)

	a.Payments = payment.NewStubProvider(cfg.Payment.DeclineMethods)

	a.Inbox = notify.NewStoreNotifier(conn, a.now)
	notifier := notify.Fanout{a.Inbox}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), a.now)
		notifier = append(notifier, kafkaNotifier)
		a.closers = append(a.closers, kafkaNotifier.Close)
		log.WithFields(log.Fields{"brokers": cfg.Kafka.Brokers, "topic": cfg.Kafka.Topic}).Info("kafka notifications enabled")
	}

	a.Auth = auth.New(conn, auth.Options{
		Secret:        cfg.JWT.Secret,
		Expiry:        cfg.JWT.Expiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
		Notifier:      notifier,
		NotifyTimeout: cfg.Marketplace.NotifyTimeout,
		Now:           a.now,
	})
	a.Catalog = catalog.New(conn, a.now)
	a.Groups = lifecycle.New(conn, lifecycle.Options{
		Locks:           a.Locks,
		Payments:        a.Payments,
		Notifier:        notifier,
		NotifyTimeout:   cfg.Marketplace.NotifyTimeout,
		Now:             a.now,
		DepositPercent:  cfg.Marketplace.DepositPercent(),
		DefaultPageSize: cfg.Marketplace.DefaultPageSize,
		MaxPageSize:     cfg.Marketplace.MaxPageSize,
		MinCapacity:     cfg.Marketplace.MinGroupCapacity,
	})

	sweeper := jobs.NewSweeper(conn, a.Groups, a.Payments, jobs.SweeperOptions{
		Notifier:          notifier,
		NotifyTimeout:     cfg.Marketplace.NotifyTimeout,
		Now:               a.now,
		ReminderWindow:    cfg.Jobs.ReminderWindow,
		MaxRefundAttempts: cfg.Jobs.MaxRefundAttempts,
	})
	a.Runner = jobs.NewRunner(a.Locks, sweeper.Jobs(cfg.Jobs.ExpirationInterval, cfg.Jobs.RefundInterval, cfg.Jobs.ReminderInterval)...)

	if errAdmin := a.bootstrapAdmin(ctx); errAdmin != nil {
		_ = a.Close()
		return nil, errAdmin
	}
	return a, nil
}

func (a *App) bootstrapAdmin(ctx context.Context) error {
	admin := a.cfg.Admin
	if strings.TrimSpace(admin.Email) != "" {
		if errEnsure := a.Auth.EnsureAdmin(ctx, admin.Email, admin.Phone, admin.Password); errEnsure != nil {
			return errEnsure
		}
	}
	hasAdmin, errHas := HasAdmin(a.DB)
	if errHas != nil {
		return errHas
	}
	if !hasAdmin {
		log.Warn("no administrator account exists; set admin.email and admin.password to create one")
	}
	return nil
}

// Router builds the HTTP handler.
func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.Deps{
		DB:      a.DB,
		Auth:    a.Auth,
		Catalog: a.Catalog,
		Groups:  a.Groups,
		Inbox:   a.Inbox,
		Limits:  a.Limits,
		VerifyRule: ratelimit.Rule{
			Name:   "verify-otp",
			Limit:  a.cfg.RateLimit.Requests,
			Window: a.cfg.RateLimit.Window,
		},
	})
}

// Close releases Redis clients, Kafka writers and the database pool.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if errClose := a.closers[i](); errClose != nil {
			errs = append(errs, errClose)
		}
	}
	if sqlDB, errDB := a.DB.DB(); errDB == nil {
		if errClose := sqlDB.Close(); errClose != nil {
			errs = append(errs, errClose)
		}
	}
	return errors.Join(errs...)
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(cfg.DSN())
	if err != nil {
		return err
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.WithFields(describeDSN(cfg.DSN()).fields()).Info("migrations applied")
	return nil
}

// RunSweep runs one sweep job once and reports how many records it touched.
func RunSweep(ctx context.Context, cfg config.Config, name string) (int, error) {
	shutdown, errTracing := tracing.Setup(ctx, cfg.Tracing)
	if errTracing != nil {
		return 0, errTracing
	}
	defer flushTracing(shutdown)

	a, errNew := New(ctx, cfg)
	if errNew != nil {
		return 0, errNew
	}
	defer func() {
		if errClose := a.Close(); errClose != nil {
			log.WithError(errClose).Warn("close app")
		}
	}()
	return a.Runner.RunOnce(ctx, name)
}

// RunServer serves HTTP and runs the sweeps until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	shutdownTracing, errTracing := tracing.Setup(ctx, cfg.Tracing)
	if errTracing != nil {
		return errTracing
	}
	defer flushTracing(shutdownTracing)

	a, errNew := New(ctx, cfg)
	if errNew != nil {
		return errNew
	}
	defer func() {
		if errClose := a.Close(); errClose != nil {
			log.WithError(errClose).Warn("close app")
		}
	}()

	if cfg.Jobs.Disabled {
		log.Info("background sweeps disabled")
	} else {
		a.Runner.Start(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(describeDSN(cfg.DSN()).fields()).WithField("addr", cfg.Server.Addr).Info("groupbuy server listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case errServe := <-serveErr:
		if errServe != nil {
			return fmt.Errorf("http server: %w", errServe)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownGrace)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("http server shutdown")
	}
	a.Runner.Wait()
	log.Info("groupbuy server stopped")
	return nil
}

func flushTracing(shutdown tracing.Shutdown) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errShutdown := shutdown(ctx); errShutdown != nil {
		log.WithError(errShutdown).Warn("flush traces")
	}
}

func nowUTC() time.Time { return time.Now().UTC() }
