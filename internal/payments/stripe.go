// Package payments talks to a Stripe-compatible payment intents API.
package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/taskcoin/backend/internal/metrics"
)

// Intent statuses the rest of the service cares about.
const (
	StatusSucceeded = "succeeded"
	StatusCanceled  = "canceled"
)

// ErrIntentNotFound is returned when the gateway has no intent with the given id.
var ErrIntentNotFound = errors.New("payment intent not found")

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Intent is the subset of a payment intent the service reads.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	// Amount is in currency units, not cents.
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateIntent creates a USD payment intent for amount dollars.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", amount.Shift(2).Round(0).String())
	form.Set("currency", "usd")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", metadata[k])
	}

	start := time.Now()
	intent, err := c.do(ctx, http.MethodPost, "/payment_intents", form)
	metrics.RecordGatewayCall("create_intent", time.Since(start), err == nil)
	return intent, err
}

// RetrieveIntent fetches the current state of an intent.
func (c *Client) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	start := time.Now()
	intent, err := c.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil)
	metrics.RecordGatewayCall("retrieve_intent", time.Since(start), err == nil)
	return intent, err
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*Intent, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("gateway returned %d with non-JSON body", resp.StatusCode)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Code:       gjson.GetBytes(raw, "error.code").String(),
			Message:    gjson.GetBytes(raw, "error.message").String(),
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %v", ErrIntentNotFound, apiErr)
		}
		return nil, apiErr
	}

	return parseIntent(raw)
}

func parseIntent(raw []byte) (*Intent, error) {
	doc := gjson.ParseBytes(raw)
	id := doc.Get("id").String()
	if id == "" {
		return nil, errors.New("gateway response missing intent id")
	}
	intent := &Intent{
		ID:           id,
		ClientSecret: doc.Get("client_secret").String(),
		Status:       doc.Get("status").String(),
		Amount:       decimal.New(doc.Get("amount").Int(), -2),
		Currency:     doc.Get("currency").String(),
		Metadata:     map[string]string{},
	}
	doc.Get("metadata").ForEach(func(k, v gjson.Result) bool {
		intent.Metadata[k.String()] = v.String()
		return true
	})
	return intent, nil
}
