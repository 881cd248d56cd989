package models

import "errors"

var (
	// ErrEmptyCart is returned when checkout is attempted with no cart items.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInvalidAddress is returned when the delivery address does not exist
	// or does not belong to the requesting user.
	ErrInvalidAddress = errors.New("invalid delivery address")

	// ErrOrderNotFound covers both a genuinely unknown order and an order
	// owned by a different user; callers must not be able to tell these apart.
	ErrOrderNotFound = errors.New("order not found")

	// ErrProductNotFound is returned when a cart mutation references an
	// unknown catalog product.
	ErrProductNotFound = errors.New("product not found")

	// ErrPaymentInitiation is returned when the gateway call during checkout
	// fails. The pending order is retained so a late callback can still be
	// correlated.
	ErrPaymentInitiation = errors.New("payment initiation failed")

	// ErrGatewayUnavailable indicates a transport or provider-side failure on
	// an outbound gateway call.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInvalidCallback indicates a provider callback that failed signature
	// verification. Never treated as a payment outcome.
	ErrInvalidCallback = errors.New("invalid payment callback")
)
