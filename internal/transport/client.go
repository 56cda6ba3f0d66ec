// Package transport fetches upstream feeds over HTTP. Every failure
// (network, non-2xx, oversize body, missing bus key) is logged and turned
// into a nil body; nothing here returns an error to the caller.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/metrics"
)

const (
	DefaultMTABaseURL = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds"
	DefaultBusBaseURL = "https://gtfsrt.prod.obanyc.com"

	defaultMaxBodyBytes = 25 * 1024 * 1024
)

type Config struct {
	MTABaseURL string
	BusBaseURL string
	// BusAPIKey gates the bus feeds. Empty means bus data is not configured.
	BusAPIKey string
	// MTAAPIKey is sent as x-api-key when set.
	MTAAPIKey string
	// Timeout bounds one Fetch including retries.
	Timeout           time.Duration
	MaxRetries        uint64
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
	UserAgent         string
}

func (c Config) withDefaults() Config {
	if c.MTABaseURL == "" {
		c.MTABaseURL = DefaultMTABaseURL
	}
	if c.BusBaseURL == "" {
		c.BusBaseURL = DefaultBusBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = "crowdcast"
	}
	c.MTABaseURL = strings.TrimRight(c.MTABaseURL, "/")
	c.BusBaseURL = strings.TrimRight(c.BusBaseURL, "/")
	return c
}

// Client fetches feeds by kind through a shared cache.
type Client struct {
	cfg     Config
	http    *http.Client
	cache   Cache
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger

	// inflight merges concurrent cache misses for the same kind.
	inflight singleflight.Group
}

// NewClient builds a Client. A nil cache disables caching; nil metrics and
// logger are allowed.
func NewClient(cfg Config, cache Cache, m *metrics.Metrics, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    newHTTPClient(cfg.Timeout),
		cache:   cache,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		metrics: m,
		logger:  logger.With(slog.String("component", "feed_transport")),
	}
}

// newHTTPClient clones the default transport so proxy, HTTP/2 and keepalive
// settings carry over, and caps each attempt at timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	var tr *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		tr = t.Clone()
	} else {
		tr = &http.Transport{}
	}
	tr.MaxIdleConns = 50
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ExpectContinueTimeout = time.Second
	return &http.Client{Timeout: timeout, Transport: tr}
}

// HasBusKey reports whether bus feeds can be fetched.
func (c *Client) HasBusKey() bool {
	return strings.TrimSpace(c.cfg.BusAPIKey) != ""
}

// URL returns the request URL for kind.
func (c *Client) URL(kind Kind) (string, bool) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return "", false
	}
	if spec.host == hostBus {
		return c.cfg.BusBaseURL + spec.path + "?key=" + url.QueryEscape(c.cfg.BusAPIKey), true
	}
	return c.cfg.MTABaseURL + spec.path, true
}

type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("feed request to %s returned status %d", e.url, e.status)
}

// Fetch returns the body for kind, from cache when fresh. It returns nil on
// any failure and when a bus kind is requested without a bus API key.
func (c *Client) Fetch(ctx context.Context, kind Kind) []byte {
	spec, ok := kindSpecs[kind]
	if !ok {
		logging.LogError(c.logger, "unknown feed kind", nil, slog.String("feed", string(kind)))
		return nil
	}
	if spec.host == hostBus && !c.HasBusKey() {
		c.metrics.ObserveFetch(string(kind), "skipped", 0)
		return nil
	}

	key := string(kind)
	if c.cache != nil {
		if body, hit := c.cache.Get(ctx, key); hit {
			c.metrics.CacheLookup(key, true)
			return body
		}
		c.metrics.CacheLookup(key, false)
	}

	// The shared fetch outlives any one caller; it is bounded by its own
	// timeout instead.
	shared := context.WithoutCancel(ctx)
	v, _, _ := c.inflight.Do(key, func() (any, error) {
		return c.load(shared, kind, spec), nil
	})
	return v.([]byte)
}

// load fetches kind upstream and stores it. A caller that missed the cache
// just before another finished loading finds the fresh body here.
func (c *Client) load(ctx context.Context, kind Kind, spec kindSpec) []byte {
	key := string(kind)
	if c.cache != nil {
		if body, hit := c.cache.Get(ctx, key); hit {
			return body
		}
	}

	target, _ := c.URL(kind)
	start := time.Now()
	body, err := c.fetch(ctx, target, spec.format)
	elapsed := time.Since(start)
	if err != nil {
		result := "error"
		var se *statusError
		if errors.As(err, &se) {
			result = "status"
		}
		c.metrics.ObserveFetch(key, result, elapsed)
		logging.LogError(c.logger, "feed fetch failed", err,
			slog.String("feed", key),
			slog.Duration("elapsed", elapsed),
			slog.String("request_id", logging.RequestID(ctx)))
		return nil
	}

	c.metrics.ObserveFetch(key, "ok", elapsed)
	c.logger.Debug("feed_fetched",
		slog.String("feed", key),
		slog.Int("bytes", len(body)),
		slog.Duration("elapsed", elapsed),
		slog.String("request_id", logging.RequestID(ctx)))
	if c.cache != nil {
		c.cache.Set(ctx, key, body, spec.ttl)
	}
	return body
}

func (c *Client) fetch(ctx context.Context, target string, f format) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for outbound request slot: %w", err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.cfg.MaxRetries), ctx)

	return backoff.RetryWithData(func() ([]byte, error) {
		body, err := c.do(ctx, target, f)
		var se *statusError
		if errors.As(err, &se) && se.status < 500 {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}, policy)
}

func (c *Client) do(ctx context.Context, target string, f format) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building feed request: %w", err))
	}
	req.Header.Set("Accept", accept(f))
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.MTAAPIKey != "" && !strings.HasPrefix(target, c.cfg.BusBaseURL) {
		req.Header.Set("x-api-key", c.cfg.MTAAPIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing feed request: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "feed_response_body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode, url: redact(target)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading feed body: %w", err)
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, backoff.Permanent(fmt.Errorf("feed body exceeds %d bytes", c.cfg.MaxBodyBytes))
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("opening gzip body: %w", err))
		}
		defer logging.SafeCloseWithLogging(zr, c.logger, "feed_gzip_reader")
		body, err = io.ReadAll(io.LimitReader(zr, c.cfg.MaxBodyBytes+1))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("inflating gzip body: %w", err))
		}
		if int64(len(body)) > c.cfg.MaxBodyBytes {
			return nil, backoff.Permanent(fmt.Errorf("inflated feed body exceeds %d bytes", c.cfg.MaxBodyBytes))
		}
	}
	return body, nil
}

// redact strips the query string so API keys stay out of logs.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
