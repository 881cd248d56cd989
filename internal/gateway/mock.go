package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MockGateway is the development-mode gateway. It completes every payment
// without contacting PhonePe: the redirect URL points straight at the
// service's own mock-success route, which drives the normal reconciliation
// path. Swapped in through the Gateway interface, never through a branch in
// the reconciliation logic.
type MockGateway struct {
	// APIBaseURL is this service's own externally reachable base URL.
	APIBaseURL string
}

func (m *MockGateway) Initiate(_ context.Context, _ int64, merchantOrderID string) (*InitiationResult, error) {
	return &InitiationResult{
		RedirectURL: fmt.Sprintf("%s/api/v1/payment/mock-success?merchantTransactionId=%s",
			m.APIBaseURL, merchantOrderID),
		ProviderTxnID: fmt.Sprintf("MOCK_TXN_%d", time.Now().UnixMilli()),
	}, nil
}

func (m *MockGateway) QueryStatus(_ context.Context, _ string) (*StatusResult, error) {
	return &StatusResult{
		State:   StateSuccess,
		Code:    "PAYMENT_SUCCESS",
		Message: "mock payment verification successful",
	}, nil
}

func (m *MockGateway) ValidateCallback(_ string, body []byte) (string, *StatusResult, error) {
	var payload struct {
		MerchantOrderID string `json:"merchantOrderId"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.MerchantOrderID, &StatusResult{
		State:   StateSuccess,
		Code:    "PAYMENT_SUCCESS",
		Message: "mock callback accepted",
	}, nil
}
