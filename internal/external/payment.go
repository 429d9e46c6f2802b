package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tourbook/internal/metrics"
)

// PaymentClient talks to a Paystack-compatible gateway: initialize a
// transaction, verify it by reference and sign webhooks with HMAC-SHA512.
type PaymentClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

type PaymentConfig struct {
	BaseURL   string        `yaml:"base_url"`
	SecretKey string        `yaml:"secret_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// InitializeRequest carries the amount in minor units.
type InitializeRequest struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Channels    []string       `json:"channels,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the gateway's view of a payment; Amount is in minor units.
type Transaction struct {
	ID              int64      `json:"id"`
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	PaidAt          *time.Time `json:"paid_at"`
	GatewayResponse string     `json:"gateway_response"`
}

func (t Transaction) Successful() bool {
	return t.Status == "success"
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &PaymentClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (pc *PaymentClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result InitializeResult
	if err := pc.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", bytes.NewReader(jsonBody), &result); err != nil {
		return nil, err
	}
	if result.AuthorizationURL == "" {
		return nil, fmt.Errorf("gateway returned no authorization url")
	}
	return &result, nil
}

func (pc *PaymentClient) Verify(ctx context.Context, reference string) (*Transaction, error) {
	var tx Transaction
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := pc.do(ctx, "verify", http.MethodGet, path, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ValidSignature checks the x-paystack-signature header against the raw body.
func (pc *PaymentClient) ValidSignature(body []byte, signature string) bool {
	if signature == "" || pc.secretKey == "" {
		return false
	}
	expected := Sign(pc.secretKey, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Sign returns the hex HMAC-SHA512 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (pc *PaymentClient) do(ctx context.Context, op, method, path string, body io.Reader, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.GatewayDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, pc.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+pc.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s payment: %w", op, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", op, resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return fmt.Errorf("gateway %s failed (status %d): %s", op, resp.StatusCode, env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", op, err)
	}
	return nil
}
