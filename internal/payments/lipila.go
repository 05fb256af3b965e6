// internal/payments/lipila.go
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TxType selects between the gateway's collection and disbursement APIs.
type TxType string

const (
	Collection   TxType = "collection"
	Disbursement TxType = "disbursement"
)

// Gateway is the outbound side of the payment provider.
type Gateway interface {
	InitiateMomoDeposit(ctx context.Context, req MomoTransfer) (map[string]interface{}, error)
	InitiateMomoWithdrawal(ctx context.Context, req MomoTransfer) (map[string]interface{}, error)
	InitiateCardPayment(ctx context.Context, req CardTransfer) (map[string]interface{}, error)
	CheckStatus(ctx context.Context, reference string, txType TxType) (map[string]interface{}, error)
}

// MomoTransfer is a mobile-money collection or disbursement.
type MomoTransfer struct {
	Amount      float64 `json:"amount"`
	Phone       string  `json:"phone"`
	ReferenceID string  `json:"referenceId"`
	CallbackURL string  `json:"callbackUrl"`
	Currency    string  `json:"currency"`
}

// CardTransfer is a card collection.
type CardTransfer struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	ReferenceID string  `json:"referenceId"`
	CallbackURL string  `json:"callbackUrl"`
	CardNumber  string  `json:"cardNumber"`
	ExpiryMonth string  `json:"expiryMonth"`
	ExpiryYear  string  `json:"expiryYear"`
	CVV         string  `json:"cvv"`
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Body       map[string]interface{}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("lipila returned %d: %s", e.StatusCode, e.Detail())
}

// Detail extracts the gateway's human readable message, if any.
func (e *GatewayError) Detail() string {
	for _, key := range []string{"message", "error"} {
		if s, ok := e.Body[key].(string); ok && s != "" {
			return s
		}
	}
	return http.StatusText(e.StatusCode)
}

// LipilaClient talks to the Lipila REST API with an x-api-key header.
// A 429 answer is retried once after a short pause.
type LipilaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
	retryDelay time.Duration
}

var _ Gateway = (*LipilaClient)(nil)

func NewLipilaClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *LipilaClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LipilaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		retryDelay: 2 * time.Second,
	}
}

func (c *LipilaClient) InitiateMomoDeposit(ctx context.Context, req MomoTransfer) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, "collections/mobile-money", req, nil)
}

func (c *LipilaClient) InitiateMomoWithdrawal(ctx context.Context, req MomoTransfer) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, "disbursements/mobile-money", req, nil)
}

func (c *LipilaClient) InitiateCardPayment(ctx context.Context, req CardTransfer) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, "collections/card", req, nil)
}

func (c *LipilaClient) CheckStatus(ctx context.Context, reference string, txType TxType) (map[string]interface{}, error) {
	path := "collections/check-status"
	if txType == Disbursement {
		path = "disbursements/check-status"
	}
	return c.do(ctx, http.MethodGet, path, nil, url.Values{"referenceId": {reference}})
}

func (c *LipilaClient) do(ctx context.Context, method, path string, body interface{}, query url.Values) (map[string]interface{}, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode lipila request: %w", err)
		}
	}

	const maxAttempts = 2
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build lipila request: %w", err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.WithError(err).WithField("path", path).Error("lipila request error")
			return nil, fmt.Errorf("lipila %s %s: %w", method, path, err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			c.logger.WithField("path", path).Warn("lipila rate limit (429), retrying once")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
			continue
		}
		if readErr != nil {
			return nil, fmt.Errorf("read lipila response: %w", readErr)
		}

		out := map[string]interface{}{}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &out); err != nil {
				out = map[string]interface{}{"message": string(data)}
			}
		}
		if resp.StatusCode >= 400 {
			gerr := &GatewayError{StatusCode: resp.StatusCode, Body: out}
			c.logger.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).Error(gerr.Detail())
			return nil, gerr
		}
		return out, nil
	}
}
