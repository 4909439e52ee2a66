package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Product manage selectors for sold-out deletion.
var deleteSite = struct {
	SearchPath   string
	DeleteButton string
}{
	SearchPath:   "/dbcenter_renew/my_product.html?search_code=%s",
	DeleteButton: `.btn_prd_delete`,
}

// DeleteOutcome summarizes one deletion run.
type DeleteOutcome struct {
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
}

// ProductDeleter removes sold-out listings one code at a time. A code that
// cannot be deleted never aborts the rest of the batch.
type ProductDeleter struct {
	baseURL     string
	confirmWait time.Duration
	logger      *zap.Logger
}

// NewProductDeleter constructs a ProductDeleter.
func NewProductDeleter(baseURL string, confirmWait time.Duration, logger *zap.Logger) *ProductDeleter {
	if confirmWait <= 0 {
		confirmWait = 15 * time.Second
	}
	return &ProductDeleter{baseURL: baseURL, confirmWait: confirmWait, logger: logger}
}

// Delete searches each product code and clicks through the delete
// confirmation. Codes with no listing are counted as skipped.
func (d *ProductDeleter) Delete(ctx context.Context, pg onch.Page, codes []string) DeleteOutcome {
	outcome := DeleteOutcome{}
	for _, code := range codes {
		if ctx.Err() != nil {
			break
		}
		switch err := d.deleteOne(ctx, pg, code); {
		case err == nil:
			outcome.Deleted++
		case errors.Is(err, errListingAbsent):
			outcome.Skipped++
		default:
			outcome.Failed = append(outcome.Failed, code)
			d.logger.Warn("product deletion failed",
				zap.String("product_code", code),
				zap.Error(err),
			)
		}
	}
	return outcome
}

var errListingAbsent = errors.New("listing not present")

func (d *ProductDeleter) deleteOne(ctx context.Context, pg onch.Page, code string) error {
	url := d.baseURL + fmt.Sprintf(deleteSite.SearchPath, code)
	if err := pg.Navigate(ctx, url); err != nil {
		return fmt.Errorf("search %s: %w", code, err)
	}
	present, err := pg.Exists(ctx, deleteSite.DeleteButton)
	if err != nil {
		return fmt.Errorf("probe listing %s: %w", code, err)
	}
	if !present {
		return errListingAbsent
	}

	confirmed := pg.AcceptNextDialog(ctx)
	if err := pg.Click(ctx, deleteSite.DeleteButton); err != nil {
		return fmt.Errorf("click delete %s: %w", code, err)
	}
	select {
	case <-confirmed:
		return nil
	case <-time.After(d.confirmWait):
		return fmt.Errorf("delete confirmation for %s did not appear", code)
	case <-ctx.Done():
		return fmt.Errorf("delete canceled: %w", ctx.Err())
	}
}
