package prowlarr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"booksearcher/internal/logging"
	"booksearcher/internal/services"
)

const (
	defaultUserAgent      = "BookSearcher/1.0"
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultMaxConnections = 10
	searchLimit           = 100
	maxBodyBytes          = 16 << 20
	bodySnippetBytes      = 512

	pathTag     = "/api/v1/tag"
	pathIndexer = "/api/v1/indexer"
	pathSearch  = "/api/v1/search"
)

// Config captures the connection settings for one Prowlarr instance.
type Config struct {
	BaseURL           string
	APIKey            string
	UserAgent         string
	Timeout           time.Duration
	ConnectTimeout    time.Duration
	MaxConnections    int
	DNSCacheTTL       time.Duration
	RequestsPerSecond float64
}

// Client talks to the Prowlarr v1 API over one pooled transport. Transient
// faults are retried with exponential backoff and every attempt is recorded
// in the client's Stats.
type Client struct {
	cfg        Config
	httpClient *http.Client
	transport  *http.Transport
	dns        *dnsCache
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *Metrics
	stats      *statsRecorder
	now        func() time.Time

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the pooled client, mostly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the attempt ceiling (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the base and maximum retry delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "prowlarr")
	}
}

// WithMetrics exports observations to the given collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient constructs a client with its own connection pool.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.DNSCacheTTL < 0 {
		cfg.DNSCacheTTL = 0
	}

	dns := newDNSCache(cfg.DNSCacheTTL)
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dns.dialContext(dialer),
		MaxConnsPerHost:       cfg.MaxConnections,
		MaxIdleConns:          cfg.MaxConnections,
		MaxIdleConnsPerHost:   cfg.MaxConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}

	client := &Client{
		cfg:              cfg,
		transport:        transport,
		dns:              dns,
		httpClient:       &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(transport)},
		logger:           logging.NewComponentLogger(nil, "prowlarr"),
		stats:            newStatsRecorder(),
		now:              time.Now,
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Close releases pooled connections and forgets cached DNS answers.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
	c.transport.CloseIdleConnections()
	c.dns.clear()
}

// Stats returns a snapshot of the request statistics.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// ResolveMediaTags looks up the audiobooks and ebooks tag ids.
func (c *Client) ResolveMediaTags(ctx context.Context) (MediaTags, error) {
	var tags []Tag
	if err := c.call(ctx, http.MethodGet, pathTag, nil, nil, &tags); err != nil {
		return MediaTags{}, err
	}
	audio, audioOK := findTag(tags, "audiobooks")
	ebook, ebookOK := findTag(tags, "ebooks")
	var missing []string
	if !audioOK {
		missing = append(missing, "audiobooks")
	}
	if !ebookOK {
		missing = append(missing, "ebooks")
	}
	if len(missing) > 0 {
		return MediaTags{}, services.Wrap(ErrConfiguration, "prowlarr", "resolve tags",
			fmt.Sprintf("required tags not found upstream: %s", strings.Join(missing, ", ")), nil)
	}
	return MediaTags{Audiobooks: audio, Ebooks: ebook}, nil
}

// ResolveIndexers returns the enabled indexers carrying any of tagIDs,
// restricted to protocol when it is non-empty. An empty result is valid.
func (c *Client) ResolveIndexers(ctx context.Context, tagIDs []int, protocol string) ([]int, error) {
	var indexers []Indexer
	if err := c.call(ctx, http.MethodGet, pathIndexer, nil, nil, &indexers); err != nil {
		return nil, err
	}
	return filterIndexers(indexers, tagIDs, protocol), nil
}

// Search runs query against the indexers selected by tagIDs and protocol and
// returns the matching releases, largest first.
func (c *Client) Search(ctx context.Context, query string, tagIDs []int, protocol string) ([]Release, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "prowlarr", "search", "query is empty", nil)
	}
	indexerIDs, err := c.ResolveIndexers(ctx, tagIDs, protocol)
	if err != nil {
		return nil, err
	}
	if len(indexerIDs) == 0 {
		return nil, fmt.Errorf("prowlarr search: tags %v protocol %q: %w", tagIDs, protocol, ErrNoIndexers)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("type", "search")
	params.Set("limit", strconv.Itoa(searchLimit))
	params.Set("offset", "0")
	var releases []Release
	if err := c.call(ctx, http.MethodGet, pathSearch, params, nil, &releases); err != nil {
		return nil, err
	}
	filtered := filterReleases(releases, indexerIDs, protocol)
	sortBySize(filtered)
	c.logger.Debug("search complete",
		logging.String("query", query),
		logging.Int("total_results", len(releases)),
		logging.Int("filtered_results", len(filtered)),
		logging.Int("indexers", len(indexerIDs)),
	)
	return filtered, nil
}

type grabRequest struct {
	GUID      string `json:"guid"`
	IndexerID int    `json:"indexerId"`
}

type grabResponse struct {
	GrabConfirmation
	Rejected   json.RawMessage `json:"rejected"`
	Rejections []string        `json:"rejections"`
	Error      string          `json:"error"`
}

// Grab asks Prowlarr to send the release to its download client.
func (c *Client) Grab(ctx context.Context, guid string, indexerID int) (GrabConfirmation, error) {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return GrabConfirmation{}, services.Wrap(services.ErrValidation, "prowlarr", "grab", "guid is empty", nil)
	}
	body, err := json.Marshal(grabRequest{GUID: guid, IndexerID: indexerID})
	if err != nil {
		return GrabConfirmation{}, fmt.Errorf("prowlarr grab: encode body: %w", err)
	}
	var resp grabResponse
	if err := c.call(ctx, http.MethodPost, pathSearch, nil, body, &resp); err != nil {
		return GrabConfirmation{}, err
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return GrabConfirmation{}, &UpstreamError{Endpoint: http.MethodPost + " " + pathSearch, StatusCode: http.StatusOK, Message: msg}
	}
	if reason, rejected := rejectionReason(resp.Rejected, resp.Rejections); rejected {
		return GrabConfirmation{}, &GrabRejectedError{GUID: guid, Reason: reason}
	}
	confirmation := resp.GrabConfirmation
	if confirmation.GUID == "" {
		confirmation.GUID = guid
	}
	if confirmation.IndexerID == 0 {
		confirmation.IndexerID = indexerID
	}
	c.logger.Info("release grabbed",
		logging.String("guid", guid),
		logging.Int("indexer_id", indexerID),
		logging.String("title", confirmation.Title),
	)
	return confirmation, nil
}

// rejectionReason accepts both a textual "rejected" field and the boolean
// form paired with a "rejections" list.
func rejectionReason(raw json.RawMessage, rejections []string) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("false")) {
		return "", false
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		if text = strings.TrimSpace(text); text == "" {
			return "", false
		}
		return text, true
	}
	if len(rejections) > 0 {
		return strings.Join(rejections, "; "), true
	}
	return "rejected by upstream", true
}

// call performs one logical request with retries.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	endpoint := method + " " + path
	attempts := c.retryAttempts()
	logger := logging.WithContext(ctx, c.logger)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := c.callOnce(ctx, method, path, query, body, out)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		delay, transient := c.retryDelay(ctx, err, attempt)
		if !transient {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		c.metrics.retried(endpoint)
		logger.Debug("retrying upstream request",
			logging.String(logging.FieldEndpoint, endpoint),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	c.metrics.exhausted(endpoint)
	logging.WarnWithContext(logger, "upstream request failed after retries", "prowlarr_retry_exhausted",
		logging.String(logging.FieldEndpoint, endpoint),
		logging.Int(logging.FieldAttempt, attempts),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "check that Prowlarr is reachable at "+c.cfg.BaseURL),
		logging.String(logging.FieldImpact, "the request was not completed"),
	)
	return &RetryExceededError{Endpoint: endpoint, Attempts: attempts, Last: lastErr}
}

// callOnce performs a single attempt and records it.
func (c *Client) callOnce(ctx context.Context, method, path string, query url.Values, body []byte, out any) (err error) {
	endpoint := method + " " + path
	start := c.now()
	status := 0
	defer func() {
		duration := c.now().Sub(start)
		c.stats.record(method, path, status, duration, c.now(), err)
		c.metrics.observe(endpoint, status, duration)
	}()

	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("prowlarr %s: new request: %w", endpoint, err)
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("prowlarr %s: http error (timeout=%s): %w", endpoint, c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("prowlarr %s: read body: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       snippet(payload),
			Message:    errorMessage(payload),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		if msg := errorMessage(payload); msg != "" {
			return &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg, Body: snippet(payload)}
		}
		return &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "malformed JSON", Body: snippet(payload), Err: err}
	}
	return nil
}

// errorMessage extracts the text of an upstream error object, if payload is one.
func errorMessage(payload []byte) string {
	var obj struct {
		Message     string `json:"message"`
		Error       string `json:"error"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	for _, candidate := range []string{obj.Error, obj.Message, obj.Description} {
		if msg := strings.TrimSpace(candidate); msg != "" {
			return msg
		}
	}
	return ""
}

func snippet(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > bodySnippetBytes {
		text = text[:bodySnippetBytes] + "..."
	}
	return text
}
