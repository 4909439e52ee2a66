package extract

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Catalog selectors and extraction scripts.
var catalogSite = struct {
	ListPath   string
	DetailPath string
	CodesJS    string
	NextJS     string
	DetailJS   string
}{
	ListPath:   "/dbcenter_renew/my_product.html?page=%d",
	DetailPath: "/dbcenter_renew/product_detail.html?product_code=%s",
	CodesJS: `(() => {
		const rows = document.querySelectorAll('table.my_product_list tbody tr');
		return JSON.stringify(Array.from(rows)
			.map(tr => (tr.querySelector('.prd_code') || {innerText: ''}).innerText.trim())
			.filter(code => code.length > 0));
	})()`,
	NextJS: `document.querySelector('.pagination a.next') !== null`,
	DetailJS: `(() => {
		const text = sel => (document.querySelector(sel) || {innerText: ''}).innerText.trim();
		const items = Array.from(document.querySelectorAll('table.option_table tbody tr')).map(tr => {
			const cells = tr.querySelectorAll('td');
			return {
				itemName: (cells[0] ? cells[0].innerText : '').trim(),
				consumerPrice: (cells[1] ? cells[1].innerText : '').trim(),
				sellerPrice: (cells[2] ? cells[2].innerText : '').trim(),
			};
		});
		return JSON.stringify({
			consumerPrice: text('.consumer_price'),
			sellerPrice: text('.seller_price'),
			shippingCost: text('.delivery_price'),
			items: items,
		});
	})()`,
}

type detailRow struct {
	ConsumerPrice string `json:"consumerPrice"`
	SellerPrice   string `json:"sellerPrice"`
	ShippingCost  string `json:"shippingCost"`
	Items         []struct {
		ItemName      string `json:"itemName"`
		ConsumerPrice string `json:"consumerPrice"`
		SellerPrice   string `json:"sellerPrice"`
	} `json:"items"`
}

// CatalogCrawler extracts the registered-product catalog: list pages for
// codes, then detail pages fanned out across parallel tabs, flushed to the
// product store in fixed-size batches.
type CatalogCrawler struct {
	baseURL     string
	store       onch.ProductStore
	batchSize   int
	parallelism int
	logger      *zap.Logger
}

// NewCatalogCrawler constructs a CatalogCrawler.
func NewCatalogCrawler(baseURL string, store onch.ProductStore, batchSize, parallelism int, logger *zap.Logger) *CatalogCrawler {
	if batchSize <= 0 {
		batchSize = 50
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &CatalogCrawler{
		baseURL:     baseURL,
		store:       store,
		batchSize:   batchSize,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Crawl walks the list pages on the session's primary tab, then extracts
// every detail page and persists the records. Returns the number of records
// flushed to the store.
func (c *CatalogCrawler) Crawl(ctx context.Context, session onch.Session) (int, error) {
	codes := c.ListCodes(ctx, session.Page())
	if len(codes) == 0 {
		return 0, nil
	}

	pages, err := session.ParallelPages(ctx, c.parallelism)
	if err != nil {
		return 0, fmt.Errorf("open parallel pages: %w", err)
	}
	defer func() {
		for _, pg := range pages {
			_ = pg.Close()
		}
	}()

	records := make(chan onch.ProductRecord, c.batchSize)
	var wg sync.WaitGroup
	for i, pg := range pages {
		wg.Add(1)
		go func(worker int, pg onch.Page) {
			defer wg.Done()
			for j := worker; j < len(codes); j += len(pages) {
				rec, detailErr := c.extractDetail(ctx, pg, codes[j])
				if detailErr != nil {
					c.logger.Warn("detail extraction failed",
						zap.String("product_code", codes[j]),
						zap.Error(detailErr),
					)
					continue
				}
				select {
				case records <- rec:
				case <-ctx.Done():
					return
				}
			}
		}(i, pg)
	}

	go func() {
		wg.Wait()
		close(records)
	}()

	batcher := NewBatcher(c.store, c.batchSize)
	saved := 0
	for rec := range records {
		if err := batcher.Add(ctx, rec); err != nil {
			return saved, fmt.Errorf("flush batch: %w", err)
		}
		saved++
	}
	if err := batcher.Flush(ctx); err != nil {
		return saved, fmt.Errorf("flush final batch: %w", err)
	}
	return saved, nil
}

// ListCodes paginates the registered-product list and returns product codes.
func (c *CatalogCrawler) ListCodes(ctx context.Context, pg onch.Page) []string {
	return Paginate(ctx, c.logger, "catalog", func(ctx context.Context, pageNum int) ([]string, bool, error) {
		url := c.baseURL + fmt.Sprintf(catalogSite.ListPath, pageNum)
		if err := pg.Navigate(ctx, url); err != nil {
			return nil, false, err
		}
		var raw string
		if err := pg.Evaluate(ctx, catalogSite.CodesJS, &raw); err != nil {
			return nil, false, err
		}
		codes, err := decodeRows[string](raw)
		if err != nil {
			return nil, false, err
		}
		if len(codes) == 0 {
			return nil, false, nil
		}
		var hasNext bool
		if err := pg.Evaluate(ctx, catalogSite.NextJS, &hasNext); err != nil {
			return codes, false, nil
		}
		return codes, hasNext, nil
	})
}

func (c *CatalogCrawler) extractDetail(ctx context.Context, pg onch.Page, code string) (onch.ProductRecord, error) {
	url := c.baseURL + fmt.Sprintf(catalogSite.DetailPath, code)
	if err := pg.Navigate(ctx, url); err != nil {
		return onch.ProductRecord{}, err
	}
	var raw string
	if err := pg.Evaluate(ctx, catalogSite.DetailJS, &raw); err != nil {
		return onch.ProductRecord{}, err
	}
	var row detailRow
	if err := decodeObject(raw, &row); err != nil {
		return onch.ProductRecord{}, err
	}

	rec := onch.ProductRecord{
		ProductCode:   code,
		ConsumerPrice: parsePrice(row.ConsumerPrice),
		SellerPrice:   parsePrice(row.SellerPrice),
		ShippingCost:  parsePrice(row.ShippingCost),
	}
	for _, item := range row.Items {
		if item.ItemName == "" {
			continue
		}
		rec.Items = append(rec.Items, onch.ProductItem{
			ItemName:      item.ItemName,
			ConsumerPrice: parsePrice(item.ConsumerPrice),
			SellerPrice:   parsePrice(item.SellerPrice),
		})
	}
	return rec, nil
}

// Batcher buffers product records and flushes them to the store whenever the
// batch size is reached.
type Batcher struct {
	store onch.ProductStore
	size  int
	buf   []onch.ProductRecord
}

// NewBatcher constructs a Batcher with the given flush size.
func NewBatcher(store onch.ProductStore, size int) *Batcher {
	if size <= 0 {
		size = 50
	}
	return &Batcher{store: store, size: size}
}

// Add buffers one record, flushing if the buffer reaches the batch size.
func (b *Batcher) Add(ctx context.Context, rec onch.ProductRecord) error {
	b.buf = append(b.buf, rec)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered records to the store.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = nil
	if err := b.store.SaveRecords(ctx, batch); err != nil {
		return fmt.Errorf("save %d records: %w", len(batch), err)
	}
	return nil
}
