package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string          { return &s }
func intPtr(i int) *int                { return &i }
func decPtr(s string) *decimal.Decimal { d := decimal.RequireFromString(s); return &d }

func TestProductInputValidate(t *testing.T) {
	tests := []struct {
		name string
		in   ProductInput
		ok   bool
	}{
		{"valid", ProductInput{Name: "Widget", SKU: "W-1", Price: decimal.RequireFromString("9.99"), Stock: 3}, true},
		{"blank name", ProductInput{Name: " ", SKU: "W-1"}, false},
		{"blank sku", ProductInput{Name: "Widget", SKU: ""}, false},
		{"negative price", ProductInput{Name: "Widget", SKU: "W-1", Price: decimal.RequireFromString("-1")}, false},
		{"negative stock", ProductInput{Name: "Widget", SKU: "W-1", Stock: -1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var inv *InvalidRequestError
			require.ErrorAs(t, err, &inv)
		})
	}
}

func TestProductUpdateValidate(t *testing.T) {
	tests := []struct {
		name string
		up   ProductUpdate
		ok   bool
	}{
		{"empty patch", ProductUpdate{}, true},
		{"name only", ProductUpdate{Name: strPtr("Widget")}, true},
		{"stock only", ProductUpdate{Stock: intPtr(7)}, true},
		{"blank name", ProductUpdate{Name: strPtr("  ")}, false},
		{"blank sku", ProductUpdate{SKU: strPtr("")}, false},
		{"negative price", ProductUpdate{Price: decPtr("-0.01")}, false},
		{"negative stock", ProductUpdate{Stock: intPtr(-5)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.up.validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var inv *InvalidRequestError
			require.ErrorAs(t, err, &inv)
		})
	}
}
