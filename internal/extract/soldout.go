package extract

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// productCodePattern matches supplier product codes embedded in post titles.
var productCodePattern = regexp.MustCompile(`CH\d{6,9}`)

// Sold-out board selectors and extraction script.
var soldoutSite = struct {
	Path     string
	RowsJS   string
	NextJS   string
	DateForm string
}{
	Path: "/dbcenter_renew/sub_page/sold_out.html?page=%d",
	RowsJS: `(() => {
		const rows = document.querySelectorAll('table.board_list tbody tr');
		return JSON.stringify(Array.from(rows).map(tr => {
			const cells = tr.querySelectorAll('td');
			return {
				code: (cells[1] ? cells[1].innerText : '').trim(),
				title: (cells[2] ? cells[2].innerText : '').trim(),
				date: (cells[4] ? cells[4].innerText : '').trim(),
			};
		}));
	})()`,
	NextJS:   `document.querySelector('.pagination a.next') !== null`,
	DateForm: "2006-01-02",
}

type soldoutRow struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

// SoldoutCrawler walks the sold-out board and collects records newer than a
// cutoff timestamp.
type SoldoutCrawler struct {
	baseURL string
	logger  *zap.Logger
}

// NewSoldoutCrawler constructs a SoldoutCrawler.
func NewSoldoutCrawler(baseURL string, logger *zap.Logger) *SoldoutCrawler {
	return &SoldoutCrawler{baseURL: baseURL, logger: logger}
}

// Crawl paginates the board and returns rows posted after cutoff. A zero
// cutoff keeps every row.
func (c *SoldoutCrawler) Crawl(ctx context.Context, pg onch.Page, cutoff time.Time) []onch.SoldoutRecord {
	return Paginate(ctx, c.logger, "soldout", func(ctx context.Context, pageNum int) ([]onch.SoldoutRecord, bool, error) {
		url := c.baseURL + fmt.Sprintf(soldoutSite.Path, pageNum)
		if err := pg.Navigate(ctx, url); err != nil {
			return nil, false, err
		}

		var raw string
		if err := pg.Evaluate(ctx, soldoutSite.RowsJS, &raw); err != nil {
			return nil, false, err
		}
		rows, err := decodeRows[soldoutRow](raw)
		if err != nil {
			return nil, false, err
		}

		records := make([]onch.SoldoutRecord, 0, len(rows))
		for _, row := range rows {
			if row.Code == "" && row.Title == "" {
				continue
			}
			postedAt, parseErr := time.Parse(soldoutSite.DateForm, row.Date)
			if parseErr != nil {
				c.logger.Debug("unparseable soldout date",
					zap.String("date", row.Date),
					zap.String("title", row.Title),
				)
				continue
			}
			if !cutoff.IsZero() && !postedAt.After(cutoff) {
				continue
			}
			records = append(records, onch.SoldoutRecord{
				ProductCode: row.Code,
				Title:       row.Title,
				PostedAt:    postedAt,
			})
		}
		if len(records) == 0 {
			return nil, false, nil
		}

		var hasNext bool
		if err := pg.Evaluate(ctx, soldoutSite.NextJS, &hasNext); err != nil {
			return records, false, nil
		}
		return records, hasNext, nil
	})
}

// ExtractProductCodes reduces heterogeneous sold-out records to a
// deduplicated set of product codes. Codes come from the dedicated column
// when present, otherwise from a regex match over the post title. First-seen
// order is preserved.
func ExtractProductCodes(records []onch.SoldoutRecord) []string {
	seen := make(map[string]struct{}, len(records))
	codes := make([]string, 0, len(records))
	add := func(code string) {
		if code == "" {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	for _, rec := range records {
		if rec.ProductCode != "" {
			add(rec.ProductCode)
			continue
		}
		for _, match := range productCodePattern.FindAllString(rec.Title, -1) {
			add(match)
		}
	}
	return codes
}
