package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"EcoCart/internal/config"
	"EcoCart/internal/domain"
	"EcoCart/internal/logging"
	"EcoCart/internal/ports"
)

const maxResponseBytes = 1 << 20

// Client talks to the scrape relay, the rating model, the image analyzer and the product search.
// It is stateless between calls and safe for concurrent use.
type Client struct {
	endpoints endpoints
	apiKey    string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	observer  ports.GatewayObserver
	logger    *slog.Logger
}

type endpoints struct {
	scrape, rate, image, search string
}

var (
	_ ports.Scraper             = (*Client)(nil)
	_ ports.Rater               = (*Client)(nil)
	_ ports.ImageAnalyzer       = (*Client)(nil)
	_ ports.AlternativeSearcher = (*Client)(nil)
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithObserver reports every call to o (metrics).
func WithObserver(o ports.GatewayObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a reusable client from configuration.
func NewClient(cfg config.GatewayConfig, opts ...Option) *Client {
	c := &Client{
		endpoints: endpoints{
			scrape: cfg.ScrapeURL,
			rate:   cfg.RatingURL,
			image:  cfg.ImageAnalysisURL,
			search: cfg.SearchURL,
		},
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    &http.Client{},
		logger:  logging.Discard(),
	}
	if c.timeout <= 0 {
		c.timeout = 20 * time.Second
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// post sends payload as JSON, validates the response against schema and decodes it into v.
// Every failure comes back as a *domain.GatewayError.
func (c *Client) post(ctx context.Context, op, endpoint string, payload any, schema *jsonschema.Schema, v any) (err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		if c.observer != nil {
			c.observer.ObserveGatewayCall(op, elapsed, err)
		}
		c.logger.Debug("gateway call", "operation", op, "url", endpoint, "elapsed_ms", elapsed.Milliseconds(), "outcome", domain.ErrorKind(err))
	}()

	if endpoint == "" {
		return domain.NewGatewayError(op, domain.ErrNetwork, errors.New("endpoint is not configured"))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.NewGatewayError(op, domain.ErrNetwork, fmt.Errorf("rate limiter: %w", err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.NewGatewayError(op, domain.ErrInvalidResponse, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.NewGatewayError(op, domain.ErrNetwork, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewGatewayError(op, domain.ErrNetwork, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.NewGatewayError(op, domain.ErrNetwork, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.NewGatewayError(op, domain.ErrUpstream, fmt.Errorf("unexpected status %s: %s", resp.Status, snippet(raw)))
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.NewGatewayError(op, domain.ErrInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	if schema != nil {
		if err := schema.Validate(doc); err != nil {
			return domain.NewGatewayError(op, domain.ErrInvalidResponse, err)
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return domain.NewGatewayError(op, domain.ErrInvalidResponse, fmt.Errorf("decode response: %w", err))
	}

	return nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
