// Package automation drives multi-step form interactions on the supplier
// admin site: order placement, bulk registration, and sold-out deletion.
package automation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Order flow selectors. Site changes land here, not in the state machine.
var orderSite = struct {
	SearchPath    string
	OrderButton   string
	OptionsJS     string
	OptionSelect  string
	QuantityInput string
	ReceiverName  string
	ReceiverPhone string
	Postcode      string
	Address       string
	AddressDetail string
	Memo          string
	SubmitButton  string
}{
	SearchPath:  "/dbcenter_renew/product_search.html?keyword=%s",
	OrderButton: `.btn_order`,
	OptionsJS: `(() => {
		const opts = document.querySelectorAll('select[name="option_choice"] option');
		return JSON.stringify(Array.from(opts)
			.filter(o => o.value !== '')
			.map(o => ({value: o.value, text: o.innerText})));
	})()`,
	OptionSelect:  `select[name="option_choice"]`,
	QuantityInput: `input[name="order_qty"]`,
	ReceiverName:  `input[name="receiver_name"]`,
	ReceiverPhone: `input[name="receiver_phone"]`,
	Postcode:      `input[name="receiver_zip"]`,
	Address:       `input[name="receiver_addr"]`,
	AddressDetail: `input[name="receiver_addr_detail"]`,
	Memo:          `input[name="delivery_memo"]`,
	SubmitButton:  `.btn_order_submit`,
}

type optionChoice struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// OrderPlacer runs the order placement state machine:
// Search, SelectOption, SetQuantity, FillAddress, Submit, Await-Confirmation.
type OrderPlacer struct {
	baseURL     string
	searchWait  time.Duration
	confirmWait time.Duration
	logger      *zap.Logger
}

// NewOrderPlacer constructs an OrderPlacer.
func NewOrderPlacer(baseURL string, searchWait, confirmWait time.Duration, logger *zap.Logger) *OrderPlacer {
	if searchWait <= 0 {
		searchWait = 10 * time.Second
	}
	if confirmWait <= 0 {
		confirmWait = 30 * time.Second
	}
	return &OrderPlacer{
		baseURL:     baseURL,
		searchWait:  searchWait,
		confirmWait: confirmWait,
		logger:      logger,
	}
}

// PlaceOrders processes every order item unconditionally and collects one
// result per item. A failed item never aborts its siblings.
func (o *OrderPlacer) PlaceOrders(ctx context.Context, pg onch.Page, orders []onch.OrderRequest) []onch.OrderResult {
	var results []onch.OrderResult
	for _, order := range orders {
		for _, item := range order.Items {
			result := onch.OrderResult{
				OrderID:     order.OrderID,
				ProductCode: item.ProductCode,
				OptionName:  item.OptionName,
				Status:      onch.OrderSuccess,
			}
			if err := o.placeItem(ctx, pg, order.Receiver, item); err != nil {
				result.Status = onch.OrderFailed
				result.Reason = err.Error()
				o.logger.Warn("order item failed",
					zap.String("order_id", order.OrderID),
					zap.String("product_code", item.ProductCode),
					zap.Error(err),
				)
			} else {
				o.logger.Info("order item placed",
					zap.String("order_id", order.OrderID),
					zap.String("product_code", item.ProductCode),
				)
			}
			results = append(results, result)
		}
	}
	return results
}

func (o *OrderPlacer) placeItem(ctx context.Context, pg onch.Page, receiver onch.Receiver, item onch.OrderItem) error {
	if err := o.search(ctx, pg, item.ProductCode); err != nil {
		return err
	}
	if err := o.selectOption(ctx, pg, item.OptionName); err != nil {
		return err
	}
	if err := o.setQuantity(ctx, pg, item.Quantity); err != nil {
		return err
	}
	if err := o.fillAddress(ctx, pg, receiver); err != nil {
		return err
	}
	return o.submit(ctx, pg)
}

func (o *OrderPlacer) search(ctx context.Context, pg onch.Page, code string) error {
	url := o.baseURL + fmt.Sprintf(orderSite.SearchPath, code)
	if err := pg.Navigate(ctx, url); err != nil {
		return fmt.Errorf("search %s: %w", code, err)
	}
	if err := pg.WaitVisible(ctx, orderSite.OrderButton, o.searchWait); err != nil {
		return fmt.Errorf("no order affordance for %s: %w", code, err)
	}
	return nil
}

func (o *OrderPlacer) selectOption(ctx context.Context, pg onch.Page, optionName string) error {
	if optionName == "" {
		return nil
	}
	var raw string
	if err := pg.Evaluate(ctx, orderSite.OptionsJS, &raw); err != nil {
		return fmt.Errorf("read options: %w", err)
	}
	choices, err := decodeChoices(raw)
	if err != nil {
		return fmt.Errorf("read options: %w", err)
	}

	want := normalizeSpace(optionName)
	for _, choice := range choices {
		if strings.Contains(normalizeSpace(choice.Text), want) {
			if err := pg.SetValue(ctx, orderSite.OptionSelect, choice.Value); err != nil {
				return fmt.Errorf("select option %q: %w", choice.Text, err)
			}
			return nil
		}
	}
	return fmt.Errorf("option not found: %q", optionName)
}

func (o *OrderPlacer) setQuantity(ctx context.Context, pg onch.Page, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be > 0, got %d", quantity)
	}
	if err := pg.SetValue(ctx, orderSite.QuantityInput, strconv.Itoa(quantity)); err != nil {
		return fmt.Errorf("set quantity: %w", err)
	}
	return nil
}

func (o *OrderPlacer) fillAddress(ctx context.Context, pg onch.Page, r onch.Receiver) error {
	if r.Name == "" || r.Phone == "" {
		return fmt.Errorf("receiver name and phone are required")
	}
	if r.Postcode == "" || r.Address == "" {
		return fmt.Errorf("receiver postcode and address are required")
	}
	fields := []struct {
		selector string
		value    string
	}{
		{orderSite.ReceiverName, r.Name},
		{orderSite.ReceiverPhone, r.Phone},
		{orderSite.Postcode, r.Postcode},
		{orderSite.Address, r.Address},
		{orderSite.AddressDetail, r.AddressDetail},
		{orderSite.Memo, r.Memo},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := pg.SetValue(ctx, f.selector, f.value); err != nil {
			return fmt.Errorf("fill %s: %w", f.selector, err)
		}
	}
	return nil
}

// submit arms the one-shot confirmation acceptor before clicking, so the
// site's native prompt is auto-accepted exactly once.
func (o *OrderPlacer) submit(ctx context.Context, pg onch.Page) error {
	confirmed := pg.AcceptNextDialog(ctx)
	if err := pg.Click(ctx, orderSite.SubmitButton); err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	select {
	case <-confirmed:
		return nil
	case <-time.After(o.confirmWait):
		return fmt.Errorf("order confirmation dialog did not appear within %s", o.confirmWait)
	case <-ctx.Done():
		return fmt.Errorf("order confirmation canceled: %w", ctx.Err())
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
