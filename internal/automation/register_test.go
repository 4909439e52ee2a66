package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/notify/memory"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

func newTestRegistrar(notifier onch.Notifier) *Registrar {
	return NewRegistrar(RegistrarConfig{
		BaseURL:       "https://supplier.example",
		RepeatCount:   3,
		MaxRetry:      3,
		RetryDelay:    time.Millisecond,
		DialogTimeout: 100 * time.Millisecond,
		NotifyTopic:   "notifications",
	}, notifier, zap.NewNop())
}

func TestRegister_AggregatesCountsUntilCatalogExhausted(t *testing.T) {
	t.Parallel()

	pg := newStubPage()
	pg.remaining = map[int]int{1: 20, 2: 5, 3: 0}
	pg.dialogMsg = "전송 완료. 성공: 3, 실패: 1, 중복: 2, 기등록: 4"

	summary, results := newTestRegistrar(nil).Register(context.Background(), pg, "store-1")

	require.Equal(t, 2, summary.Pages)
	require.Equal(t, 6, summary.Registered)
	require.Equal(t, 2, summary.Failed)
	require.Equal(t, 4, summary.Duplicates)
	require.Equal(t, 8, summary.AlreadyRegistered)
	require.False(t, summary.DailyLimitReached)

	require.Len(t, results, 2)
	for _, res := range results {
		require.True(t, res.Success)
	}
}

func TestRegister_RetriesExactlyMaxRetryTimes(t *testing.T) {
	t.Parallel()

	pg := newStubPage()
	pg.navErr = errors.New("net::ERR_CONNECTION_RESET")

	r := NewRegistrar(RegistrarConfig{
		BaseURL:     "https://supplier.example",
		RepeatCount: 1,
		MaxRetry:    3,
		RetryDelay:  time.Millisecond,
	}, nil, zap.NewNop())

	summary, results := r.Register(context.Background(), pg, "store-1")

	require.Len(t, pg.navigations(), 3)
	require.Equal(t, 1, summary.Pages)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Contains(t, results[0].ErrorMessage, "ERR_CONNECTION_RESET")
}

func TestRegister_DailyLimitStopsFurtherPages(t *testing.T) {
	t.Parallel()

	pg := newStubPage()
	pg.remaining = map[int]int{1: 20, 2: 20, 3: 20}
	pg.noDialog = true
	pg.responses = []string{`{"message": "일일 등록 가능 상품수를 초과하였습니다."}`}

	notifier := memory.New()
	summary, results := newTestRegistrar(notifier).Register(context.Background(), pg, "store-1")

	require.True(t, summary.DailyLimitReached)
	require.Equal(t, 1, summary.Pages)
	require.Len(t, results, 1)
	require.Contains(t, results[0].ErrorMessage, "daily registration limit")

	// No page after the rate-limited one is navigated.
	for _, nav := range pg.navigations() {
		require.False(t, strings.Contains(nav, "page=2"))
	}

	events := notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, "notifications", events[0].Topic)
	require.Equal(t, "dailyLimitReached", events[0].Event)
}

func TestRegister_EmptyFirstPageDoesNothing(t *testing.T) {
	t.Parallel()

	pg := newStubPage()
	pg.remaining = map[int]int{1: 0}

	summary, results := newTestRegistrar(nil).Register(context.Background(), pg, "store-1")

	require.Zero(t, summary.Pages)
	require.Empty(t, results)
	require.Empty(t, pg.clicks)
}

func TestRegister_ConfirmationTimeoutRecordsPageError(t *testing.T) {
	t.Parallel()

	pg := newStubPage()
	pg.remaining = map[int]int{1: 10, 2: 0}
	pg.noDialog = true

	r := NewRegistrar(RegistrarConfig{
		BaseURL:       "https://supplier.example",
		RepeatCount:   2,
		MaxRetry:      1,
		RetryDelay:    time.Millisecond,
		DialogTimeout: 20 * time.Millisecond,
	}, nil, zap.NewNop())

	summary, results := r.Register(context.Background(), pg, "store-1")

	require.Equal(t, 1, summary.Pages)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Contains(t, results[0].ErrorMessage, "no confirmation")
}

func TestAddCounts_IgnoresMissingFields(t *testing.T) {
	t.Parallel()

	var summary onch.RegistrationSummary
	addCounts(&summary, "전송 완료. 성공: 12")

	require.Equal(t, 12, summary.Registered)
	require.Zero(t, summary.Failed)
	require.Zero(t, summary.Duplicates)
	require.Zero(t, summary.AlreadyRegistered)
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	require.True(t, isRateLimited("일일 등록 가능 상품수를 초과하였습니다"))
	require.True(t, isRateLimited("하루 전송 가능 횟수를 초과했습니다"))
	require.False(t, isRateLimited("전송 완료"))
}
