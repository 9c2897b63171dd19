package orders

import "strings"

// ValidateCreateOrder normalizes the raw request and rejects malformed input
// before it can consume a transaction slot. Pure, no store access.
func ValidateCreateOrder(req CreateOrderRequest) (CreateOrderRequest, error) {
	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)

	switch {
	case req.OrderNumber == "":
		return req, &InvalidRequestError{Reason: "order_number is required"}
	case req.CustomerName == "":
		return req, &InvalidRequestError{Reason: "customer_name is required"}
	case req.CustomerEmail == "":
		return req, &InvalidRequestError{Reason: "customer_email is required"}
	case len(req.Items) == 0:
		return req, &InvalidRequestError{Reason: "items must not be empty"}
	}

	// normalize a copy; the caller's slice stays untouched on rejection
	req.Items = append([]ItemInput(nil), req.Items...)
	for i, it := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(it.ProductID)
		if req.Items[i].ProductID == "" {
			return req, &InvalidRequestError{Reason: "items: product_id is required"}
		}
		if it.Qty <= 0 {
			return req, &InvalidRequestError{Reason: "items: qty must be a positive integer"}
		}
	}
	return req, nil
}
