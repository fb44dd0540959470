package extraction

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	var extractErr *Error
	require.True(t, errors.As(err, &extractErr), "expected *extraction.Error, got %v", err)
	assert.Equal(t, kind, extractErr.Kind, "error: %v", err)
}

func TestParseReceipt(t *testing.T) {
	t.Run("complete receipt", func(t *testing.T) {
		r, err := ParseReceipt([]byte(`{
			"items": [{"name": "Burger", "price": 10}, {"name": "Soda", "price": 2.004}],
			"subtotal": 12, "tax": 1.2, "total": 13.2
		}`))
		require.NoError(t, err)

		require.Len(t, r.Lines, 2)
		assert.Equal(t, "Burger", r.Lines[0].Name)
		assert.True(t, r.Lines[1].Price.Equal(decimal.RequireFromString("2.00")), "price rounded to cents, got %s", r.Lines[1].Price)
		assert.True(t, r.Subtotal.Equal(decimal.RequireFromString("12")))
		assert.True(t, r.Tax.Equal(decimal.RequireFromString("1.20")))
		assert.True(t, r.Total.Equal(decimal.RequireFromString("13.20")))
		assert.Empty(t, r.Warnings)
	})

	t.Run("missing subtotal and tax get defaults", func(t *testing.T) {
		r, err := ParseReceipt([]byte(`{"items": [{"name": "A", "price": 3.5}, {"name": "B", "price": "1.25"}], "total": 4.75}`))
		require.NoError(t, err)

		assert.True(t, r.Subtotal.Equal(decimal.RequireFromString("4.75")), "subtotal = %s", r.Subtotal)
		assert.True(t, r.Tax.IsZero())
		assert.Empty(t, r.Warnings)
	})

	t.Run("blank names are replaced", func(t *testing.T) {
		r, err := ParseReceipt([]byte(`{"items": [{"name": "  ", "price": 1}], "total": 1}`))
		require.NoError(t, err)
		assert.Equal(t, "Item 1", r.Lines[0].Name)
	})

	t.Run("zero total with priced items warns", func(t *testing.T) {
		r, err := ParseReceipt([]byte(`{"items": [{"name": "A", "price": 5}], "total": 0}`))
		require.NoError(t, err)
		assert.True(t, r.Total.IsZero())
		assert.Contains(t, r.Warnings, "receipt total is zero but items are priced")
	})

	t.Run("subtotal mismatch warns", func(t *testing.T) {
		r, err := ParseReceipt([]byte(`{"items": [{"name": "A", "price": 5}], "subtotal": 6, "total": 6}`))
		require.NoError(t, err)
		assert.Contains(t, r.Warnings, "subtotal 6.00 differs from item sum 5.00")
	})

	t.Run("empty item list is allowed", func(t *testing.T) {
		r, err := ParseReceipt([]byte(`{"items": [], "total": 0}`))
		require.NoError(t, err)
		assert.Empty(t, r.Lines)
		assert.True(t, r.Subtotal.IsZero())
	})

	failures := []struct {
		name string
		body string
		kind Kind
	}{
		{"not json", `this is not json`, KindMalformed},
		{"non numeric price", `{"items": [{"name": "A", "price": "abc"}], "total": 1}`, KindMalformed},
		{"missing items", `{"total": 1}`, KindMissingField},
		{"missing total", `{"items": [{"name": "A", "price": 1}]}`, KindMissingField},
		{"null total", `{"items": [], "total": null}`, KindMissingField},
		{"missing price", `{"items": [{"name": "A"}], "total": 1}`, KindMissingField},
		{"negative price", `{"items": [{"name": "A", "price": -1}], "total": 1}`, KindInvalidValue},
		{"negative tax", `{"items": [{"name": "A", "price": 1}], "tax": -0.1, "total": 1}`, KindInvalidValue},
		{"negative total", `{"items": [{"name": "A", "price": 1}], "total": -1}`, KindInvalidValue},
		{"name too long", `{"items": [{"name": "` + strings.Repeat("a", 300) + `", "price": 1}], "total": 1}`, KindInvalidValue},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseReceipt([]byte(tt.body))
			assert.Nil(t, r)
			requireKind(t, err, tt.kind)
		})
	}
}
