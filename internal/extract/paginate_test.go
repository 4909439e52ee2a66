package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPaginate_StopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	pages := [][]string{
		{"a", "b"},
		{"c"},
		{"d", "e", "f"},
	}
	fetches := 0
	got := Paginate(context.Background(), zap.NewNop(), "test", func(_ context.Context, pageNum int) ([]string, bool, error) {
		fetches++
		if pageNum > len(pages) {
			return nil, false, nil
		}
		return pages[pageNum-1], true, nil
	})

	require.Equal(t, len(pages)+1, fetches)
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

func TestPaginate_StopsWithoutNextAffordance(t *testing.T) {
	t.Parallel()

	fetches := 0
	got := Paginate(context.Background(), zap.NewNop(), "test", func(_ context.Context, pageNum int) ([]int, bool, error) {
		fetches++
		return []int{pageNum}, pageNum < 2, nil
	})

	require.Equal(t, 2, fetches)
	require.Equal(t, []int{1, 2}, got)
}

func TestPaginate_NavigationFailureKeepsAccumulated(t *testing.T) {
	t.Parallel()

	got := Paginate(context.Background(), zap.NewNop(), "test", func(_ context.Context, pageNum int) ([]string, bool, error) {
		if pageNum == 3 {
			return nil, false, errors.New("net::ERR_TIMED_OUT")
		}
		return []string{"page"}, true, nil
	})

	require.Equal(t, []string{"page", "page"}, got)
}

func TestPaginate_CanceledContextReturnsEarly(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := Paginate(ctx, zap.NewNop(), "test", func(_ context.Context, _ int) ([]string, bool, error) {
		t.Fatal("fetch must not run after cancellation")
		return nil, false, nil
	})
	require.Empty(t, got)
}
