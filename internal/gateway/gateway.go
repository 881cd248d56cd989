package gateway

import (
	"context"
	"strings"
)

// State is the normalized tri-state payment outcome. The adapter collapses
// provider-specific vocabulary into this type; callers never branch on raw
// provider codes.
type State string

const (
	StateSuccess State = "success"
	StateFailure State = "failure"
	StatePending State = "pending"
)

// InitiationResult is the outcome of starting a hosted-checkout payment.
type InitiationResult struct {
	RedirectURL   string
	ProviderTxnID string
}

// StatusResult is a normalized provider outcome plus the raw diagnostic
// fields that get stored on the order.
type StatusResult struct {
	State         State
	Code          string
	Message       string
	ProviderTxnID string
}

// Gateway isolates all direct dependency on the payment provider.
type Gateway interface {
	// Initiate starts a hosted-checkout payment for the given amount in minor
	// currency units. Never returns a placeholder redirect URL on error.
	Initiate(ctx context.Context, amount int64, merchantOrderID string) (*InitiationResult, error)

	// QueryStatus asks the provider for the authoritative current state of a
	// transaction.
	QueryStatus(ctx context.Context, merchantOrderID string) (*StatusResult, error)

	// ValidateCallback verifies the authenticity of an inbound
	// server-to-server callback before trusting its payload. Returns the
	// merchant order id carried by the payload.
	ValidateCallback(xVerify string, body []byte) (string, *StatusResult, error)
}

// successCodes is the explicit allow-list of provider response codes that
// count as payment success. The provider has been observed to use several
// spellings; anything outside this list, including an absent code, is not
// success.
var successCodes = map[string]struct{}{
	"PAYMENT_SUCCESS": {},
	"SUCCESS":         {},
	"COMPLETED":       {},
	"SUCCESSFUL":      {},
}

// failureCodes are the states a status query reports for a transaction that
// has definitively not gone through.
var failureCodes = map[string]struct{}{
	"PAYMENT_ERROR":         {},
	"PAYMENT_DECLINED":      {},
	"FAILED":                {},
	"TIMED_OUT":             {},
	"INTERNAL_SERVER_ERROR": {},
}

// ClassifyResponseCode maps a response code delivered on the callback or
// redirect path into success or failure. These channels report finished
// attempts, so anything that is not on the success allow-list is a failure.
func ClassifyResponseCode(code string) State {
	if code == "" {
		return StateFailure
	}
	if _, ok := successCodes[strings.ToUpper(code)]; ok {
		return StateSuccess
	}
	return StateFailure
}

// ClassifyStatusCode maps a status-query state into the tri-state outcome.
// Unknown states stay pending; a poll must never invent a terminal outcome.
func ClassifyStatusCode(code string) State {
	upper := strings.ToUpper(code)
	if _, ok := successCodes[upper]; ok {
		return StateSuccess
	}
	if _, ok := failureCodes[upper]; ok {
		return StateFailure
	}
	return StatePending
}
