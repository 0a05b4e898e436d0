package broker

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// quotesResponse represents the quotes response from the Tradier API.
type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[Quote] `json:"quote"`
	} `json:"quotes"`
}

const (
	productionBaseURL = "https://api.tradier.com/v1"
	sandboxBaseURL    = "https://sandbox.tradier.com/v1"

	defaultTimeout = 10 * time.Second
)

// RetryConfig controls the retry behavior of GetQuoteRetry.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is used when no RetryConfig is supplied.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// TradierClient is a quotes-only client for the Tradier market-data API.
type TradierClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
	sandbox bool
	retry   RetryConfig
}

// Ensure TradierClient implements QuoteSource at compile time.
var _ QuoteSource = (*TradierClient)(nil)

// NewTradierClient creates a new Tradier market-data client.
func NewTradierClient(apiKey string, sandbox bool) *TradierClient {
	return NewTradierClientWithBaseURL(apiKey, sandbox, "")
}

// NewTradierClientWithBaseURL creates a client against a custom base URL,
// used by tests to point at a local server.
func NewTradierClientWithBaseURL(apiKey string, sandbox bool, baseURL string) *TradierClient {
	if baseURL == "" {
		if sandbox {
			baseURL = sandboxBaseURL
		} else {
			baseURL = productionBaseURL
		}
	}
	return &TradierClient{
		client:  &http.Client{Timeout: defaultTimeout},
		apiKey:  apiKey,
		baseURL: baseURL,
		sandbox: sandbox,
		retry:   DefaultRetryConfig,
	}
}

// WithTimeout sets a custom HTTP timeout and returns the client.
func (t *TradierClient) WithTimeout(timeout time.Duration) *TradierClient {
	if timeout > 0 {
		t.client.Timeout = timeout
	}
	return t
}

// GetQuote returns the current quote for a single symbol.
func (t *TradierClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	quotes, err := t.GetQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote found for symbol: %s", symbol)
	}
	return q, nil
}

// GetQuotes fetches quotes for a batch of symbols in one request and
// returns them keyed by symbol. Symbols the API does not know are simply
// absent from the result.
func (t *TradierClient) GetQuotes(ctx context.Context, symbols []string) (map[string]*Quote, error) {
	if len(symbols) == 0 {
		return map[string]*Quote{}, nil
	}
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response quotesResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	out := make(map[string]*Quote, len(response.Quotes.Quote))
	for i := range response.Quotes.Quote {
		q := response.Quotes.Quote[i]
		out[q.Symbol] = &q
	}
	return out, nil
}

// GetQuoteRetry fetches a quote, retrying transient failures with capped
// exponential backoff and jitter.
func (t *TradierClient) GetQuoteRetry(ctx context.Context, symbol string) (*Quote, error) {
	var lastErr error
	backoff := t.retry.InitialBackoff

	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("quote fetch canceled: %w", ctx.Err())
		}

		quote, err := t.GetQuote(ctx, symbol)
		if err == nil {
			return quote, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == t.retry.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, t.retry.MaxBackoff)
		case <-ctx.Done():
			return nil, fmt.Errorf("quote fetch canceled during backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("quote for %s failed after %d attempts: %w", symbol, t.retry.MaxRetries+1, lastErr)
}

// makeRequestCtx makes an HTTP request with context support for timeout/cancellation
func (t *TradierClient) makeRequestCtx(ctx context.Context, method, endpoint string,
	params url.Values, response interface{}) error {
	var req *http.Request
	var err error

	if method == http.MethodPost && params != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "schrute-bucks/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			// Log error but don't fail the operation
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if remaining := resp.Header.Get("X-Ratelimit-Available"); remaining != "" && t.sandbox {
		log.Printf("Rate limit remaining: %s", remaining)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// nextBackoff grows the backoff by 1.5x, caps it, and adds jitter so
// concurrent retries do not synchronize.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

// isTransientError classifies failures worth retrying. API errors are
// judged by status code; transport errors fall back to pattern matching.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"rate limit",
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
