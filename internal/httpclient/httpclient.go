// Package httpclient is the shared JSON-over-HTTP client used by the gas and
// NFT providers.
package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"
)

const defaultTimeout = 10 * time.Second

// Config tunes the client.
type Config struct {
	Timeout   time.Duration // per request; zero means 10s
	RateLimit int           // requests per minute; zero disables limiting
	UserAgent string
}

// StatusError is returned for 4xx/5xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status code %d from %s", e.Status, e.URL)
}

// Client wraps resty with a rate limiter and request logging. It never
// retries: callers own the fallback policy.
type Client struct {
	client  *resty.Client
	logger  *slog.Logger
	limiter *rate.Limiter
}

// New creates a client. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(float64(cfg.RateLimit) / 60)
	}
	limiter := rate.NewLimiter(limit, 1)

	restyClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		AddRequestMiddleware(func(_ *resty.Client, r *resty.Request) error {
			limiterCtx, cancel := context.WithTimeout(r.Context(), cfg.Timeout)
			defer cancel()

			if err := limiter.Wait(limiterCtx); err != nil {
				logger.Warn("Rate limiter wait failed", "error", err)
				return err
			}
			if cfg.UserAgent != "" {
				r.SetHeader("User-Agent", cfg.UserAgent)
			}
			logger.Debug("Outgoing request", "url", r.URL)
			return nil
		}).
		AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
			if resp.StatusCode() >= 400 {
				logger.Warn("HTTP request failed",
					"status", resp.StatusCode(),
					"url", resp.Request.URL)
			}
			return nil
		})

	return &Client{
		client:  restyClient,
		logger:  logger,
		limiter: limiter,
	}
}

// Get issues a GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, url string, query, headers map[string]string, out any) error {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out)
	if headers != nil {
		req.SetHeaders(headers)
	}

	resp, err := req.Get(url)
	if err != nil {
		c.logger.Debug("HTTP GET request failed", "url", url, "error", err)
		return fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode() >= 400 {
		return &StatusError{URL: url, Status: resp.StatusCode()}
	}
	return nil
}

// PostJSON sends body as JSON and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, url string, body any, headers map[string]string, out any) error {
	req := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out)
	if headers != nil {
		req.SetHeaders(headers)
	}
	req.SetHeader("Content-Type", "application/json")

	resp, err := req.Post(url)
	if err != nil {
		c.logger.Debug("HTTP POST request failed", "url", url, "error", err)
		return fmt.Errorf("POST %s: %w", url, err)
	}
	if resp.StatusCode() >= 400 {
		return &StatusError{URL: url, Status: resp.StatusCode()}
	}
	return nil
}
