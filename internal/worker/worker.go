// Package worker binds the extraction and automation engines to queue tasks.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/automation"
	"github.com/daechan-jo/auto-store-services-onch/internal/extract"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
	"github.com/daechan-jo/auto-store-services-onch/internal/queue"
)

// lastRunTask keys the sold-out crawl cutoff in the product store.
const lastRunTask = "soldoutCrawl"

// Config controls worker behavior.
type Config struct {
	NotifyTopic string
}

// Worker executes queued jobs against an authenticated browser session. The
// session is acquired per job and released on every exit path.
type Worker struct {
	pool      onch.SessionPool
	products  onch.ProductStore
	notifier  onch.Notifier
	clock     onch.Clock
	soldout   *extract.SoldoutCrawler
	catalog   *extract.CatalogCrawler
	delivery  *extract.DeliveryExtractor
	orders    *automation.OrderPlacer
	registrar *automation.Registrar
	deleter   *automation.ProductDeleter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	pool onch.SessionPool,
	products onch.ProductStore,
	notifier onch.Notifier,
	clock onch.Clock,
	soldout *extract.SoldoutCrawler,
	catalog *extract.CatalogCrawler,
	delivery *extract.DeliveryExtractor,
	orders *automation.OrderPlacer,
	registrar *automation.Registrar,
	deleter *automation.ProductDeleter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		pool:      pool,
		products:  products,
		notifier:  notifier,
		clock:     clock,
		soldout:   soldout,
		catalog:   catalog,
		delivery:  delivery,
		orders:    orders,
		registrar: registrar,
		deleter:   deleter,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterHandlers binds every long-running task to the queue.
func (w *Worker) RegisterHandlers(q *queue.Queue) {
	q.Register(onch.PatternCrawlSoldout, w.CrawlSoldout)
	q.Register(onch.PatternCrawlRegistered, w.CrawlRegistered)
	q.Register(onch.PatternDeleteProducts, w.DeleteProducts)
	q.Register(onch.PatternPlaceOrders, w.PlaceOrders)
	q.Register(onch.PatternExtractDeliveries, w.ExtractDeliveries)
	q.Register(onch.PatternRegisterProducts, w.RegisterProducts)
}

func (w *Worker) withSession(ctx context.Context, job onch.Job, fn func(session onch.Session) (any, error)) (any, error) {
	session, err := w.pool.Acquire(ctx, job.Payload.Store, job.ID)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer w.pool.Release(job.Payload.Store, job.ID)
	return fn(session)
}

// CrawlSoldout walks the sold-out board since the last run and returns the
// deduplicated product codes.
func (w *Worker) CrawlSoldout(ctx context.Context, job onch.Job) (any, error) {
	return w.withSession(ctx, job, func(session onch.Session) (any, error) {
		cutoff, err := w.products.LastRun(ctx, lastRunTask)
		if err != nil {
			w.logger.Warn("last-run lookup failed, crawling without cutoff", zap.Error(err))
		}
		records := w.soldout.Crawl(ctx, session.Page(), cutoff)
		codes := extract.ExtractProductCodes(records)
		if err := w.products.SetLastRun(ctx, lastRunTask, w.clock.Now()); err != nil {
			w.logger.Warn("last-run update failed", zap.Error(err))
		}
		return map[string]any{"soldoutProductCodes": codes}, nil
	})
}

// CrawlRegistered extracts the full registered-product catalog into the
// product store.
func (w *Worker) CrawlRegistered(ctx context.Context, job onch.Job) (any, error) {
	return w.withSession(ctx, job, func(session onch.Session) (any, error) {
		saved, err := w.catalog.Crawl(ctx, session)
		if err != nil {
			return nil, fmt.Errorf("catalog crawl: %w", err)
		}
		return map[string]any{"savedCount": saved}, nil
	})
}

type deletePayload struct {
	ProductCodes []string `json:"productCodes"`
}

// DeleteProducts removes the given sold-out listings. When no codes are
// supplied the sold-out board is crawled first to derive them.
func (w *Worker) DeleteProducts(ctx context.Context, job onch.Job) (any, error) {
	return w.withSession(ctx, job, func(session onch.Session) (any, error) {
		var payload deletePayload
		if len(job.Payload.Data) > 0 {
			if err := json.Unmarshal(job.Payload.Data, &payload); err != nil {
				return nil, fmt.Errorf("decode delete payload: %w", err)
			}
		}
		codes := payload.ProductCodes
		if len(codes) == 0 {
			cutoff, err := w.products.LastRun(ctx, lastRunTask)
			if err != nil {
				w.logger.Warn("last-run lookup failed, crawling without cutoff", zap.Error(err))
			}
			records := w.soldout.Crawl(ctx, session.Page(), cutoff)
			codes = extract.ExtractProductCodes(records)
		}
		outcome := w.deleter.Delete(ctx, session.Page(), codes)
		return outcome, nil
	})
}

type ordersPayload struct {
	Orders []onch.OrderRequest `json:"orders"`
}

// PlaceOrders runs the order placement state machine for every order item.
func (w *Worker) PlaceOrders(ctx context.Context, job onch.Job) (any, error) {
	return w.withSession(ctx, job, func(session onch.Session) (any, error) {
		var payload ordersPayload
		if err := json.Unmarshal(job.Payload.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode orders payload: %w", err)
		}
		if len(payload.Orders) == 0 {
			return nil, fmt.Errorf("no orders in payload")
		}
		results := w.orders.PlaceOrders(ctx, session.Page(), payload.Orders)
		return map[string]any{"results": results}, nil
	})
}

// ExtractDeliveries collects shipping/waybill rows for allow-listed couriers.
func (w *Worker) ExtractDeliveries(ctx context.Context, job onch.Job) (any, error) {
	return w.withSession(ctx, job, func(session onch.Session) (any, error) {
		records := w.delivery.Extract(ctx, session.Page())
		return map[string]any{"deliveries": records}, nil
	})
}

// RegisterProducts bulk-registers catalog pages to the sales channel and
// emits the batch summary notification.
func (w *Worker) RegisterProducts(ctx context.Context, job onch.Job) (any, error) {
	return w.withSession(ctx, job, func(session onch.Session) (any, error) {
		summary, pages := w.registrar.Register(ctx, session.Page(), job.Payload.Store)
		if err := w.notifier.Emit(ctx, w.cfg.NotifyTopic, "registrationSummary", summary); err != nil {
			w.logger.Warn("registration summary notification failed", zap.Error(err))
		}
		return map[string]any{"summary": summary, "pages": pages}, nil
	})
}
