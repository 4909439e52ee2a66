package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRows(t *testing.T) {
	t.Parallel()

	rows, err := decodeRows[string](`["a", "b"]`)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, rows)

	rows, err = decodeRows[string]("")
	require.NoError(t, err)
	require.Nil(t, rows)

	rows, err = decodeRows[string]("null")
	require.NoError(t, err)
	require.Nil(t, rows)

	_, err = decodeRows[string]("{broken")
	require.Error(t, err)
}

func TestDecodeObject(t *testing.T) {
	t.Parallel()

	var out struct {
		A int `json:"a"`
	}
	require.NoError(t, decodeObject(`{"a": 7}`, &out))
	require.Equal(t, 7, out.A)

	require.Error(t, decodeObject("", &out))
	require.Error(t, decodeObject("null", &out))
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	require.Equal(t, 12000, parsePrice("12,000원"))
	require.Equal(t, 12000, parsePrice("₩ 12,000"))
	require.Equal(t, 0, parsePrice("무료"))
	require.Equal(t, 0, parsePrice(""))
}
