package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReq() CreateOrderRequest {
	return CreateOrderRequest{
		OrderNumber:   "ORD-1",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		Items:         []ItemInput{{ProductID: "p-1", Qty: 2}},
	}
}

func TestValidateCreateOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
		reason string
	}{
		{"empty order number", func(r *CreateOrderRequest) { r.OrderNumber = "  " }, "order_number"},
		{"empty customer name", func(r *CreateOrderRequest) { r.CustomerName = "" }, "customer_name"},
		{"empty customer email", func(r *CreateOrderRequest) { r.CustomerEmail = "" }, "customer_email"},
		{"no items", func(r *CreateOrderRequest) { r.Items = nil }, "items must not be empty"},
		{"empty product id", func(r *CreateOrderRequest) { r.Items[0].ProductID = " " }, "product_id"},
		{"zero qty", func(r *CreateOrderRequest) { r.Items[0].Qty = 0 }, "qty"},
		{"negative qty", func(r *CreateOrderRequest) { r.Items[0].Qty = -3 }, "qty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validReq()
			tc.mutate(&req)
			_, err := ValidateCreateOrder(req)
			var inv *InvalidRequestError
			require.ErrorAs(t, err, &inv)
			assert.Contains(t, inv.Reason, tc.reason)
		})
	}
}

func TestValidateCreateOrderLeavesCallerItemsUntouched(t *testing.T) {
	items := []ItemInput{
		{ProductID: " p-1 ", Qty: 2},
		{ProductID: "p-2", Qty: 0}, // rejected after p-1 was normalized
	}
	req := validReq()
	req.Items = items

	_, err := ValidateCreateOrder(req)
	require.Error(t, err)
	assert.Equal(t, " p-1 ", items[0].ProductID, "caller slice must not be half-normalized")
}

func TestValidateCreateOrderNormalizes(t *testing.T) {
	req := validReq()
	req.OrderNumber = "  ORD-9 "
	req.CustomerName = " Jane "
	req.Items = []ItemInput{{ProductID: " p-1 ", Qty: 1}}

	got, err := ValidateCreateOrder(req)
	require.NoError(t, err)
	assert.Equal(t, "ORD-9", got.OrderNumber)
	assert.Equal(t, "Jane", got.CustomerName)
	assert.Equal(t, "p-1", got.Items[0].ProductID)
}
