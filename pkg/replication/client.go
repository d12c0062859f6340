package replication

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/osmtools/changesetd/internal/logger"
)

// ErrNotFound is returned when the upstream has no file at a sequence
// (HTTP 404). It is a normal terminal outcome, not a failure.
var ErrNotFound = errors.New("replication file not found")

// ClientConfig holds replication client settings.
type ClientConfig struct {
	// BaseURL is the replication root, e.g.
	// https://planet.osm.org/replication/changesets
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// StateURL overrides the state file location. Defaults to
	// {BaseURL}/state.yaml.
	StateURL string `mapstructure:"state_url" yaml:"state_url,omitempty"`

	// ThrottleDelay is the minimum interval between requests to the
	// upstream, shared across all callers. Default: 1s.
	ThrottleDelay time.Duration `mapstructure:"throttle_delay" yaml:"throttle_delay"`

	// MaxAttempts is the number of fetch attempts before a transient
	// error surfaces to the caller. Default: 3.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// RequestTimeout is the overall deadline for a single HTTP request.
	// Default: 60s.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// RetryDelay is the base backoff between fetch attempts. Default: 2s.
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

func (c *ClientConfig) applyDefaults() {
	if c.ThrottleDelay <= 0 {
		c.ThrottleDelay = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.StateURL == "" {
		c.StateURL = StateFileURL(c.BaseURL)
	}
}

// Client fetches replication files and the remote state file.
//
// A single token bucket paces every request this client makes, so the
// configured throttle holds across all workers sharing it.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a replication client.
func NewClient(cfg ClientConfig) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.ThrottleDelay), 1),
		log:     logger.With("component", "replication_client"),
	}
}

// Tip fetches the state file and returns the latest published sequence.
func (c *Client) Tip(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, c.cfg.StateURL)
	if err != nil {
		return 0, fmt.Errorf("fetch state file: %w", err)
	}
	return ParseState(body)
}

// Fetch downloads and gzip-decompresses the replication file for seq.
// Returns ErrNotFound (unwrapped via errors.Is) on HTTP 404. Transient
// errors are retried with exponential backoff up to MaxAttempts before
// surfacing.
func (c *Client) Fetch(ctx context.Context, seq int64) ([]byte, error) {
	url := FileURL(c.cfg.BaseURL, seq)

	var compressed []byte
	err := retry.Do(
		func() error {
			var err error
			compressed, err = c.get(ctx, url)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxAttempts)),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("Retrying replication fetch",
				"sequence", seq, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch sequence %d: %w", seq, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream for sequence %d: %w", seq, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress sequence %d: %w", seq, err)
	}
	return data, nil
}

// get performs a single throttled HTTP GET and reads the body fully.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("GET %s: %w", url, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", url, err)
	}
	return body, nil
}
