package nets

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/freshcart-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

const (
	defaultBaseURL             = "https://sandbox.nets.openapipaas.com"
	requestPath                = "api/v1/common/payments/nets-qr/request"
	queryPath                  = "api/v1/common/payments/nets-qr/query"
	reversalPath               = "api/v1/common/payments/nets-qr/reversal"
	requestBodyReadLimit int64 = 1024

	// SignatureHeader carries the hex HMAC-SHA256 of a webhook body.
	SignatureHeader = "X-Nets-Signature"

	responseCodeApproved = "00"
	txnStatusSuccess     = 1
	txnStatusFailed      = 2
)

var (
	errAPIKeyRequired    = errors.New("nets api key is required")
	errProjectIDRequired = errors.New("nets project id is required")
)

// Client talks to the NETS QR OpenAPI.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	projectID     string
	txnID         string
	webhookSecret string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the NETS client from config.
func NewClient(cfg config.NetsConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	client := &Client{
		apiKey:        apiKey,
		projectID:     projectID,
		txnID:         strings.TrimSpace(cfg.TxnID),
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSpace(cfg.BaseURL),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// QRResult is the data block of a QR request response.
type QRResult struct {
	ResponseCode    string `json:"response_code"`
	TxnStatus       int    `json:"txn_status"`
	QRCode          string `json:"qr_code"`
	TxnRetrievalRef string `json:"txn_retrieval_ref"`
	NetworkStatus   int    `json:"network_status"`
	ErrorMessage    string `json:"error_message"`
	Instruction     string `json:"instruction"`
}

// OK reports whether a scannable QR code was issued.
func (r QRResult) OK() bool {
	return r.ResponseCode == responseCodeApproved && r.TxnStatus == txnStatusSuccess && r.QRCode != ""
}

// StatusResult is the data block of a status query response.
type StatusResult struct {
	ResponseCode string `json:"response_code"`
	TxnStatus    int    `json:"txn_status"`
	ErrorMessage string `json:"error_message"`
	Amount       string `json:"amount"`
}

func (r StatusResult) Succeeded() bool {
	return r.ResponseCode == responseCodeApproved && r.TxnStatus == txnStatusSuccess
}

func (r StatusResult) Failed() bool {
	return r.TxnStatus == txnStatusFailed
}

// ReversalResult is the data block of a reversal response.
type ReversalResult struct {
	ResponseCode string `json:"response_code"`
	TxnStatus    int    `json:"txn_status"`
	ErrorMessage string `json:"error_message"`
}

func (r ReversalResult) Succeeded() bool {
	return r.ResponseCode == responseCodeApproved
}

type envelope[T any] struct {
	Result struct {
		Data T `json:"data"`
	} `json:"result"`
}

// RequestQR asks NETS for a QR code charging amountCents.
func (c *Client) RequestQR(ctx context.Context, amountCents int64) (*QRResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "nets client not configured")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qr amount must be positive")
	}
	payload := map[string]any{
		"txn_id":         c.txnID,
		"amt_in_dollars": json.Number(money.Format(amountCents)),
		"notify_mobile":  0,
	}
	var resp envelope[QRResult]
	if err := c.post(ctx, requestPath, payload, &resp, "qr request"); err != nil {
		return nil, err
	}
	return &resp.Result.Data, nil
}

// QueryStatus looks up the state of a previously issued QR.
func (c *Client) QueryStatus(ctx context.Context, txnRetrievalRef string) (*StatusResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "nets client not configured")
	}
	ref := strings.TrimSpace(txnRetrievalRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "txn retrieval ref is required")
	}
	payload := map[string]any{
		"txn_retrieval_ref":       ref,
		"frontend_timeout_status": 0,
	}
	var resp envelope[StatusResult]
	if err := c.post(ctx, queryPath, payload, &resp, "qr status query"); err != nil {
		return nil, err
	}
	return &resp.Result.Data, nil
}

// Reverse returns amountCents of a settled QR payment to the payer.
func (c *Client) Reverse(ctx context.Context, txnRetrievalRef string, amountCents int64) (*ReversalResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "nets client not configured")
	}
	ref := strings.TrimSpace(txnRetrievalRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "txn retrieval ref is required")
	}
	payload := map[string]any{
		"txn_retrieval_ref": ref,
		"amt_in_dollars":    json.Number(money.Format(amountCents)),
	}
	var resp envelope[ReversalResult]
	if err := c.post(ctx, reversalPath, payload, &resp, "qr reversal"); err != nil {
		return nil, err
	}
	return &resp.Result.Data, nil
}

// VerifySignature checks a webhook body against its hex HMAC-SHA256 signature.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}

// Sign produces the signature VerifySignature accepts.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) post(ctx context.Context, path string, payload any, out any, op string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal "+op)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+op)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)
	httpReq.Header.Set("project-id", c.projectID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), op+" failed")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op)
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
