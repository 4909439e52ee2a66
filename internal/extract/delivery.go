package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Delivery list selectors and extraction script.
var deliverySite = struct {
	Path   string
	RowsJS string
	NextJS string
}{
	Path: "/dbcenter_renew/order_list.html?page=%d",
	RowsJS: `(() => {
		const rows = document.querySelectorAll('table.delivery_list tbody tr');
		return JSON.stringify(Array.from(rows).map(tr => {
			const cells = tr.querySelectorAll('td');
			const cell = i => (cells[i] ? cells[i].innerText : '').trim();
			return {
				name: cell(1),
				phone: cell(2),
				state: cell(3),
				paymentMethod: cell(4),
				courier: cell(5),
				trackingNumber: cell(6),
			};
		}));
	})()`,
	NextJS: `document.querySelector('.pagination a.next') !== null`,
}

// DeliveryExtractor walks the delivery list and keeps rows whose courier is
// on the allow-list. Record order follows page traversal order.
type DeliveryExtractor struct {
	baseURL  string
	couriers map[string]struct{}
	logger   *zap.Logger
}

// NewDeliveryExtractor constructs a DeliveryExtractor. An empty allow-list
// keeps every courier.
func NewDeliveryExtractor(baseURL string, couriers []string, logger *zap.Logger) *DeliveryExtractor {
	allowed := make(map[string]struct{}, len(couriers))
	for _, c := range couriers {
		allowed[c] = struct{}{}
	}
	return &DeliveryExtractor{
		baseURL:  baseURL,
		couriers: allowed,
		logger:   logger,
	}
}

// Extract paginates the delivery list and returns the allow-listed records.
// The courier filter runs after pagination so a page of filtered-out rows
// never reads as the empty page that ends the loop.
func (e *DeliveryExtractor) Extract(ctx context.Context, pg onch.Page) []onch.DeliveryRecord {
	rows := Paginate(ctx, e.logger, "delivery", func(ctx context.Context, pageNum int) ([]onch.DeliveryRecord, bool, error) {
		url := e.baseURL + fmt.Sprintf(deliverySite.Path, pageNum)
		if err := pg.Navigate(ctx, url); err != nil {
			return nil, false, err
		}
		var raw string
		if err := pg.Evaluate(ctx, deliverySite.RowsJS, &raw); err != nil {
			return nil, false, err
		}
		rows, err := decodeRows[onch.DeliveryRecord](raw)
		if err != nil {
			return nil, false, err
		}

		records := make([]onch.DeliveryRecord, 0, len(rows))
		for _, row := range rows {
			if row.Name == "" && row.TrackingNumber == "" {
				continue
			}
			records = append(records, row)
		}
		if len(records) == 0 {
			return nil, false, nil
		}

		var hasNext bool
		if err := pg.Evaluate(ctx, deliverySite.NextJS, &hasNext); err != nil {
			return records, false, nil
		}
		return records, hasNext, nil
	})

	out := make([]onch.DeliveryRecord, 0, len(rows))
	for _, row := range rows {
		if e.allowed(row.Courier) {
			out = append(out, row)
		}
	}
	return out
}

func (e *DeliveryExtractor) allowed(courier string) bool {
	if len(e.couriers) == 0 {
		return true
	}
	_, ok := e.couriers[courier]
	return ok
}
