// Package app initializes and holds long-lived application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/api"
	"github.com/daechan-jo/auto-store-services-onch/internal/automation"
	"github.com/daechan-jo/auto-store-services-onch/internal/browser"
	"github.com/daechan-jo/auto-store-services-onch/internal/bus"
	"github.com/daechan-jo/auto-store-services-onch/internal/clock/system"
	"github.com/daechan-jo/auto-store-services-onch/internal/config"
	"github.com/daechan-jo/auto-store-services-onch/internal/dispatcher"
	"github.com/daechan-jo/auto-store-services-onch/internal/extract"
	"github.com/daechan-jo/auto-store-services-onch/internal/id/uuid"
	"github.com/daechan-jo/auto-store-services-onch/internal/metrics"
	notifymemory "github.com/daechan-jo/auto-store-services-onch/internal/notify/memory"
	notifypubsub "github.com/daechan-jo/auto-store-services-onch/internal/notify/pubsub"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
	"github.com/daechan-jo/auto-store-services-onch/internal/queue"
	"github.com/daechan-jo/auto-store-services-onch/internal/schedule"
	storagememory "github.com/daechan-jo/auto-store-services-onch/internal/storage/memory"
	storagepostgres "github.com/daechan-jo/auto-store-services-onch/internal/storage/postgres"
	"github.com/daechan-jo/auto-store-services-onch/internal/worker"
)

// App wires every service for the automation binary.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	queue      *queue.Queue
	pool       *browser.Pool
	dispatcher *dispatcher.Dispatcher
	subscriber *bus.Subscriber
	scheduler  *schedule.Scheduler
	server     *api.Server
	closers    []func()
}

// New builds the dependency graph. It fails fast when a critical service
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	clk := system.New()
	idGen := uuid.New()

	a := &App{cfg: cfg, logger: logger}

	var products onch.ProductStore
	if cfg.DB.DSN != "" {
		store, err := storagepostgres.NewProductStore(ctx, storagepostgres.ProductStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init product store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		products = store
		logger.Info("using postgres product store", zap.String("table", cfg.DB.Table))
	} else {
		products = storagememory.NewProductStore()
		logger.Info("using in-memory product store")
	}

	var notifier onch.Notifier
	if cfg.PubSub.ProjectID != "" {
		n, err := notifypubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.NotifyTopic)
		if err != nil {
			return nil, fmt.Errorf("init notifier: %w", err)
		}
		a.closers = append(a.closers, func() { _ = n.Close() })
		notifier = n
	} else {
		notifier = notifymemory.New()
		logger.Info("using in-memory notifier")
	}

	a.pool = browser.NewPool(browser.Config{
		BaseURL:    cfg.Onch.BaseURL,
		LoginID:    cfg.Onch.LoginID,
		Password:   cfg.Onch.Password,
		Headless:   cfg.Browser.Headless,
		UserAgent:  cfg.Browser.UserAgent,
		NavTimeout: cfg.NavTimeout(),
		LoginWait:  time.Duration(cfg.Browser.LoginWaitSec) * time.Second,
	}, logger)

	soldout := extract.NewSoldoutCrawler(cfg.Onch.BaseURL, logger)
	catalog := extract.NewCatalogCrawler(cfg.Onch.BaseURL, products, cfg.Crawl.BatchSize, cfg.Crawl.DetailParallelism, logger)
	delivery := extract.NewDeliveryExtractor(cfg.Onch.BaseURL, cfg.Crawl.Couriers, logger)
	orders := automation.NewOrderPlacer(cfg.Onch.BaseURL, cfg.NavTimeout(), cfg.DialogTimeout(), logger)
	registrar := automation.NewRegistrar(automation.RegistrarConfig{
		BaseURL:       cfg.Onch.BaseURL,
		RepeatCount:   cfg.Register.RepeatCount,
		MaxRetry:      cfg.Register.MaxRetry,
		RetryDelay:    cfg.RetryDelay(),
		DialogTimeout: cfg.DialogTimeout(),
		NotifyTopic:   cfg.PubSub.NotifyTopic,
	}, notifier, logger)
	deleter := automation.NewProductDeleter(cfg.Onch.BaseURL, cfg.DialogTimeout(), logger)

	a.queue = queue.New(queue.Config{
		Name:           "onch",
		Concurrency:    cfg.Queue.Concurrency,
		MaxAttempts:    cfg.Queue.MaxAttempts,
		Backoff:        cfg.Backoff(),
		RetentionCount: cfg.Queue.RetentionCount,
		RetentionAge:   cfg.Retention(),
		Depth:          cfg.Queue.Depth,
	}, clk, idGen, logger)

	w := worker.New(
		a.pool, products, notifier, clk,
		soldout, catalog, delivery,
		orders, registrar, deleter,
		worker.Config{NotifyTopic: cfg.PubSub.NotifyTopic},
		logger,
	)
	w.RegisterHandlers(a.queue)

	a.dispatcher = dispatcher.New(a.queue, products, logger)

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.RequestSub != "" {
		sub, err := bus.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.RequestSub, cfg.PubSub.ResponseTopic, a.dispatcher, logger)
		if err != nil {
			return nil, fmt.Errorf("init bus subscriber: %w", err)
		}
		a.subscriber = sub
		a.closers = append(a.closers, func() { _ = sub.Close() })
	}

	a.scheduler = schedule.New(
		a.queue,
		time.Duration(cfg.Crawl.SoldoutCronMin)*time.Minute,
		cfg.Onch.LoginID,
		logger,
	)
	a.server = api.NewServer(a.queue, logger)

	return a, nil
}

// Dispatcher exposes the request router.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Run starts every service and blocks until ctx ends, then shuts down in
// reverse dependency order.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	go a.scheduler.Run(ctx)

	if a.subscriber != nil {
		go func() {
			if err := a.subscriber.Run(ctx); err != nil {
				a.logger.Error("bus subscriber stopped", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	a.logger.Info("service started", zap.Int("port", a.cfg.Server.Port))

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	a.queue.Stop()
	a.pool.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.logger.Info("service stopped")
	return nil
}
