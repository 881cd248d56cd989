package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"spice-commerce/internal/models"
	"spice-commerce/internal/util"

	"go.uber.org/zap"
)

const (
	payPath    = "/pg/v1/pay"
	statusPath = "/pg/v1/status"
)

// Config holds PhonePe credentials and endpoints.
type Config struct {
	BaseURL     string
	MerchantID  string
	SaltKey     string
	SaltIndex   int
	RedirectURL string
	CallbackURL string
}

// PhonePeClient talks to the PhonePe hosted-checkout REST API. Requests are
// signed with the X-VERIFY checksum scheme: sha256 over payload, path, and
// salt key, suffixed with the salt index.
type PhonePeClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPhonePeClient creates a new PhonePe gateway client
func NewPhonePeClient(cfg Config) *PhonePeClient {
	return &PhonePeClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

func (c *PhonePeClient) sign(material string) string {
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:]) + "###" + strconv.Itoa(c.cfg.SaltIndex)
}

type payRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type paymentInstrument struct {
	Type string `json:"type"`
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// Initiate starts a hosted-checkout payment and returns the provider's
// redirect URL.
func (c *PhonePeClient) Initiate(ctx context.Context, amount int64, merchantOrderID string) (*InitiationResult, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("initiate").Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(payRequest{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: merchantOrderID,
		Amount:                amount,
		RedirectURL:           c.cfg.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           c.cfg.CallbackURL,
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay request: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+payPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", c.sign(encoded+payPath+c.cfg.SaltKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("PhonePe pay request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("merchant_order_id", merchantOrderID))
		return nil, fmt.Errorf("%w: pay returned status %d", models.ErrGatewayUnavailable, resp.StatusCode)
	}

	var parsed payResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed pay response", models.ErrGatewayUnavailable)
	}

	redirectURL := parsed.Data.InstrumentResponse.RedirectInfo.URL
	if !parsed.Success || redirectURL == "" {
		c.logger.Error("PhonePe pay request failed",
			zap.String("code", parsed.Code),
			zap.String("merchant_order_id", merchantOrderID))
		return nil, fmt.Errorf("%w: %s", models.ErrGatewayUnavailable, parsed.Code)
	}

	return &InitiationResult{
		RedirectURL:   redirectURL,
		ProviderTxnID: parsed.Data.TransactionID,
	}, nil
}

type statusResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
	} `json:"data"`
}

// QueryStatus asks PhonePe for the authoritative state of a transaction.
func (c *PhonePeClient) QueryStatus(ctx context.Context, merchantOrderID string) (*StatusResult, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("status").Observe(time.Since(start).Seconds())
	}()

	path := fmt.Sprintf("%s/%s/%s", statusPath, c.cfg.MerchantID, merchantOrderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", c.sign(path+c.cfg.SaltKey))
	req.Header.Set("X-MERCHANT-ID", c.cfg.MerchantID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status returned %d", models.ErrGatewayUnavailable, resp.StatusCode)
	}

	var parsed statusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed status response", models.ErrGatewayUnavailable)
	}

	return &StatusResult{
		State:         ClassifyStatusCode(parsed.Code),
		Code:          parsed.Code,
		Message:       parsed.Message,
		ProviderTxnID: parsed.Data.TransactionID,
	}, nil
}

type callbackEnvelope struct {
	Response string `json:"response"`
}

type callbackPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
	} `json:"data"`
}

// ValidateCallback verifies the X-VERIFY checksum over the callback body
// before decoding the payload. An unverifiable callback is rejected outright.
func (c *PhonePeClient) ValidateCallback(xVerify string, body []byte) (string, *StatusResult, error) {
	if xVerify == "" {
		return "", nil, fmt.Errorf("%w: missing X-VERIFY header", models.ErrInvalidCallback)
	}

	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Response == "" {
		return "", nil, fmt.Errorf("%w: malformed callback body", models.ErrInvalidCallback)
	}

	expected := c.sign(envelope.Response + c.cfg.SaltKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(xVerify)) != 1 {
		return "", nil, fmt.Errorf("%w: checksum mismatch", models.ErrInvalidCallback)
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Response)
	if err != nil {
		return "", nil, fmt.Errorf("%w: undecodable callback payload", models.ErrInvalidCallback)
	}

	var payload callbackPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return "", nil, fmt.Errorf("%w: malformed callback payload", models.ErrInvalidCallback)
	}

	merchantOrderID := payload.Data.MerchantTransactionID
	if merchantOrderID == "" {
		return "", nil, fmt.Errorf("%w: callback carries no correlation id", models.ErrInvalidCallback)
	}

	return merchantOrderID, &StatusResult{
		State:         ClassifyResponseCode(payload.Code),
		Code:          payload.Code,
		Message:       payload.Message,
		ProviderTxnID: payload.Data.TransactionID,
	}, nil
}
