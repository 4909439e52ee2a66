// Package extract implements the paginated extraction engine and its
// per-source specializations.
package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/metrics"
)

// FetchPage loads page number pageNum (1-based) and returns its records plus
// whether a next-page affordance is present.
type FetchPage[T any] func(ctx context.Context, pageNum int) (records []T, hasNext bool, err error)

// Paginate runs the fetch-extract-advance loop. It stops on the first empty
// page or when no next affordance remains. A fetch error ends the loop early
// with whatever was accumulated; the engine cannot tell "no more pages" from
// a transient navigation failure, so best effort is the policy.
func Paginate[T any](ctx context.Context, logger *zap.Logger, source string, fetch FetchPage[T]) []T {
	var all []T
	for pageNum := 1; ; pageNum++ {
		if ctx.Err() != nil {
			logger.Warn("pagination canceled",
				zap.String("source", source),
				zap.Int("page", pageNum),
			)
			return all
		}
		records, hasNext, err := fetch(ctx, pageNum)
		metrics.PageCrawled(source)
		if err != nil {
			logger.Warn("pagination ended early",
				zap.String("source", source),
				zap.Int("page", pageNum),
				zap.Error(err),
			)
			return all
		}
		if len(records) == 0 {
			return all
		}
		all = append(all, records...)
		metrics.RecordsExtracted(source, len(records))
		if !hasNext {
			return all
		}
	}
}
