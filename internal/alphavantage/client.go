// Package alphavantage is a client for the Alpha Vantage market data API.
package alphavantage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"avmcp/internal/config"
	"avmcp/internal/errors"
	"avmcp/internal/version"
)

// Alpha Vantage function names.
const (
	FunctionGlobalQuote     = "GLOBAL_QUOTE"
	FunctionTimeSeriesDaily = "TIME_SERIES_DAILY"
	FunctionSymbolSearch    = "SYMBOL_SEARCH"
)

// Accepted TIME_SERIES_DAILY output sizes.
const (
	OutputSizeCompact = "compact"
	OutputSizeFull    = "full"
)

const (
	maxRecentDays        = 5
	maxSearchMatches     = 10
	maxResponseBytes     = 32 << 20
	defaultBackoffFactor = time.Second
	defaultBackoffMax    = 120 * time.Second
	notAvailable         = "N/A"
	apiKeyEnvVar         = "ALPHA_VANTAGE_API_KEY"
)

// ResponseCache stores raw upstream payloads.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key, function string, value []byte, ttl time.Duration) error
}

// CacheTTLs is how long each function's payloads stay fresh.
type CacheTTLs struct {
	Quote  time.Duration
	Daily  time.Duration
	Search time.Duration
}

// TTLsFromConfig converts the cache section into per-function TTLs.
func TTLsFromConfig(cfg config.CacheConfig) CacheTTLs {
	return CacheTTLs{
		Quote:  time.Duration(cfg.QuoteTTLSeconds) * time.Second,
		Daily:  time.Duration(cfg.DailyTTLSeconds) * time.Second,
		Search: time.Duration(cfg.SearchTTLSeconds) * time.Second,
	}
}

func (t CacheTTLs) forFunction(function string) time.Duration {
	switch function {
	case FunctionGlobalQuote:
		return t.Quote
	case FunctionTimeSeriesDaily:
		return t.Daily
	case FunctionSymbolSearch:
		return t.Search
	default:
		return 0
	}
}

// Client talks to Alpha Vantage with retries and an optional response cache.
type Client struct {
	apiKey        string
	baseURL       string
	timeout       time.Duration
	maxRetries    int
	httpClient    *http.Client
	logger        *slog.Logger
	cache         ResponseCache
	ttls          CacheTTLs
	backoffFactor time.Duration
	backoffMax    time.Duration
	now           func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithCache enables response caching.
func WithCache(cache ResponseCache, ttls CacheTTLs) Option {
	return func(c *Client) {
		c.cache = cache
		c.ttls = ttls
	}
}

// WithBackoff sets the retry backoff factor and the cap on a single wait.
func WithBackoff(factor, max time.Duration) Option {
	return func(c *Client) {
		c.backoffFactor = factor
		c.backoffMax = max
	}
}

// WithClock sets the time source used for retrieved_at stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client from the alphaVantage config section.
func New(cfg config.AlphaVantageConfig, opts ...Option) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	c := &Client{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		timeout:       cfg.Timeout(),
		maxRetries:    cfg.MaxRetries,
		logger:        slog.New(slog.DiscardHandler),
		backoffFactor: defaultBackoffFactor,
		backoffMax:    defaultBackoffMax,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient()
	}
	return c
}

// newHTTPClient builds a pooled client. Per-attempt timeouts come from the
// request context, so the client itself has none.
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// HasAPIKey reports whether an API key is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// GetQuote returns the latest quote for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*StockQuote, error) {
	if err := c.requireAPIKey(); err != nil {
		return nil, err
	}
	requested := symbol
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.NewInvalidParameterError("symbol", "symbol is required")
	}

	data, err := c.do(ctx, url.Values{
		"function": {FunctionGlobalQuote},
		"symbol":   {symbol},
	})
	if err != nil {
		return nil, err
	}

	var fields map[string]string
	if raw, ok := data["Global Quote"]; ok {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, errors.NewAPIError("Invalid quote payload", err)
		}
	}
	if len(fields) == 0 {
		return nil, errors.NewNoDataError(fmt.Sprintf("No data found for symbol %s", requested))
	}

	field := func(key string) string {
		if v, ok := fields[key]; ok {
			return v
		}
		return notAvailable
	}

	return &StockQuote{
		Symbol:           symbol,
		Price:            field("05. price"),
		Change:           field("09. change"),
		ChangePercent:    field("10. change percent"),
		Volume:           field("06. volume"),
		LatestTradingDay: field("07. latest trading day"),
		PreviousClose:    field("08. previous close"),
		Open:             field("02. open"),
		High:             field("03. high"),
		Low:              field("04. low"),
		RetrievedAt:      c.now().UTC(),
	}, nil
}

// ValidateOutputSize normalizes outputSize, treating "" as compact.
func ValidateOutputSize(outputSize string) (string, error) {
	switch outputSize {
	case "":
		return OutputSizeCompact, nil
	case OutputSizeCompact, OutputSizeFull:
		return outputSize, nil
	default:
		return "", errors.NewInvalidParameterError("outputsize", "outputsize must be 'compact' or 'full'")
	}
}

// GetDailyPrices returns the most recent days of the daily series for symbol.
func (c *Client) GetDailyPrices(ctx context.Context, symbol, outputSize string) (*DailyPrices, error) {
	outputSize, err := ValidateOutputSize(outputSize)
	if err != nil {
		return nil, err
	}
	if err := c.requireAPIKey(); err != nil {
		return nil, err
	}
	requested := symbol
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.NewInvalidParameterError("symbol", "symbol is required")
	}

	data, err := c.do(ctx, url.Values{
		"function":   {FunctionTimeSeriesDaily},
		"symbol":     {symbol},
		"outputsize": {outputSize},
	})
	if err != nil {
		return nil, err
	}

	var series map[string]DailyPrice
	if raw, ok := data["Time Series (Daily)"]; ok {
		if err := json.Unmarshal(raw, &series); err != nil {
			return nil, errors.NewAPIError("Invalid daily series payload", err)
		}
	}
	if len(series) == 0 {
		return nil, errors.NewNoDataError(fmt.Sprintf("No daily data found for %s", requested))
	}

	dates := make([]string, 0, len(series))
	for date := range series {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > maxRecentDays {
		dates = dates[:maxRecentDays]
	}

	recent := make(map[string]DailyPrice, len(dates))
	for _, date := range dates {
		recent[date] = series[date]
	}

	return &DailyPrices{
		Symbol:             symbol,
		RecentDays:         recent,
		TotalDaysAvailable: len(series),
		RetrievedAt:        c.now().UTC(),
	}, nil
}

// SearchSymbols returns up to ten symbols matching keywords.
func (c *Client) SearchSymbols(ctx context.Context, keywords string) ([]SymbolMatch, error) {
	if err := c.requireAPIKey(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(keywords) == "" {
		return nil, errors.NewInvalidParameterError("keywords", "keywords are required")
	}

	data, err := c.do(ctx, url.Values{
		"function": {FunctionSymbolSearch},
		"keywords": {keywords},
	})
	if err != nil {
		return nil, err
	}

	var raw []map[string]string
	if matches, ok := data["bestMatches"]; ok {
		if err := json.Unmarshal(matches, &raw); err != nil {
			return nil, errors.NewAPIError("Invalid search payload", err)
		}
	}
	if len(raw) == 0 {
		return nil, errors.NewNoDataError(fmt.Sprintf("No symbols found for '%s'", keywords))
	}
	if len(raw) > maxSearchMatches {
		raw = raw[:maxSearchMatches]
	}

	matches := make([]SymbolMatch, 0, len(raw))
	for _, m := range raw {
		matches = append(matches, SymbolMatch{
			Symbol:   m["1. symbol"],
			Name:     m["2. name"],
			Type:     m["3. type"],
			Region:   m["4. region"],
			Currency: m["8. currency"],
		})
	}
	return matches, nil
}

// Now returns the client's current time, used for response stamps.
func (c *Client) Now() time.Time {
	return c.now().UTC()
}

func (c *Client) requireAPIKey() error {
	if c.apiKey == "" {
		return errors.NewConfigMissingError(apiKeyEnvVar)
	}
	return nil
}

// do runs one logical request: cache, fetch with retries, error detection, store.
func (c *Client) do(ctx context.Context, params url.Values) (map[string]json.RawMessage, error) {
	function := params.Get("function")
	key := CacheKey(params)

	if c.cache != nil {
		if body, ok, err := c.cache.Get(ctx, key); err != nil {
			c.logger.Warn("Cache lookup failed", "function", function, "error", err.Error())
		} else if ok {
			data, err := decodePayload(body)
			if err == nil {
				c.logger.Debug("Cache hit", "function", function)
				return data, nil
			}
			c.logger.Warn("Ignoring undecodable cache entry", "function", function, "error", err.Error())
		}
	}

	c.logger.Debug("Making request", "params", redactedParams(params))

	body, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	data, err := decodePayload(body)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if ttl := c.ttls.forFunction(function); ttl > 0 {
			if err := c.cache.Set(ctx, key, function, body, ttl); err != nil {
				c.logger.Warn("Cache store failed", "function", function, "error", err.Error())
			}
		}
	}

	return data, nil
}

// decodePayload parses a response body and maps Alpha Vantage's in-band
// error fields to typed errors.
func decodePayload(body []byte) (map[string]json.RawMessage, error) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.NewAPIError(fmt.Sprintf("Invalid JSON response: %v", err), err)
	}

	if raw, ok := data["Error Message"]; ok {
		return nil, errors.NewAPIError("API Error: "+rawText(raw), nil)
	}
	if raw, ok := data["Note"]; ok {
		return nil, errors.NewRateLimitError(rawText(raw))
	}
	// Newer accounts get throttling and premium notices under "Information".
	if raw, ok := data["Information"]; ok {
		return nil, errors.NewRateLimitError(rawText(raw))
	}
	return data, nil
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// fetch sends the GET with retries and returns the body of a 2xx response.
func (c *Client) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.NewInternalError("parse base URL", err)
	}
	query := u.Query()
	for k, vs := range params {
		query[k] = vs
	}
	query.Set("apikey", c.apiKey)
	u.RawQuery = query.Encode()

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			if retryAfter > 0 {
				delay = retryAfter
			}

			c.logger.Debug("Retrying request",
				"function", params.Get("function"),
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr.Error(),
			)

			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
				case <-timer.C:
				}
			}
		}

		body, status, header, err := c.attempt(ctx, u.String())
		retryAfter = 0
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = err
			continue
		}

		if isRetryableStatus(status) {
			lastErr = errors.NewAPIError(fmt.Sprintf("Request failed: HTTP %d", status), nil)
			if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
				retryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
			}
			continue
		}
		if status < 200 || status > 299 {
			return nil, errors.NewAPIError(fmt.Sprintf("Request failed: HTTP %d", status), nil)
		}

		return body, nil
	}

	return nil, lastErr
}

// attempt performs a single GET bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, target string) ([]byte, int, http.Header, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, nil, errors.NewInternalError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, nil, classifyTransportError(err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

// backoff is the wait before retry n (1-based): 0 for the first retry,
// then factor*2^(n-1), capped at backoffMax.
func (c *Client) backoff(retry int) time.Duration {
	if retry <= 1 || c.backoffFactor <= 0 {
		return 0
	}
	delay := c.backoffFactor * time.Duration(1<<uint(retry-1))
	if c.backoffMax > 0 && delay > c.backoffMax {
		delay = c.backoffMax
	}
	return delay
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewTimeoutError(err)
	}
	return errors.NewUpstreamError(err)
}

// CacheKey fingerprints a request. The API key is never part of it.
func CacheKey(params url.Values) string {
	filtered := url.Values{}
	for k, vs := range params {
		if k == "apikey" {
			continue
		}
		filtered[k] = vs
	}
	sum := sha256.Sum256([]byte(filtered.Encode()))
	return hex.EncodeToString(sum[:])
}

func redactedParams(params url.Values) string {
	filtered := url.Values{}
	for k, vs := range params {
		if k == "apikey" {
			filtered[k] = []string{"****"}
			continue
		}
		filtered[k] = vs
	}
	return filtered.Encode()
}
