// Package client implements the HTTP side of the gotrade SDK: a typed
// operations layer on top of a request pipeline that handles
// authentication, retries with exponential backoff, and rate limiting.
package client

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/pkg/cache"
	"github.com/tradebot/gotrade/pkg/ratelimit"
)

// Client talks to the trading backend. Construct one with New and share
// it freely; all methods are safe for concurrent use.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *ratelimit.TokenBucket
	memo    *cache.TTL[string, any]
	log     *logrus.Logger
}

// New creates a Client from cfg. Unset policy fields fall back to the
// package defaults.
func New(cfg Config) *Client {
	return NewWithLogger(cfg, nil)
}

// NewWithLogger is New with an injected logger. When log is nil the
// client logs through logrus.StandardLogger() if cfg.EnableLogging is
// set, and stays silent otherwise.
func NewWithLogger(cfg Config, log *logrus.Logger) *Client {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg = cfg.withDefaults()

	if log == nil {
		if cfg.EnableLogging {
			log = logrus.StandardLogger()
		} else {
			log = logrus.New()
			log.SetOutput(io.Discard)
		}
	}

	hc := resty.New().
		SetBaseURL(cfg.APIURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "gotrade-go-sdk").
		// The pipeline owns the retry policy; resty must not add its own.
		SetRetryCount(0)

	var limiter *ratelimit.TokenBucket
	if cfg.RateLimit > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit)
	}

	var memo *cache.TTL[string, any]
	if cfg.CacheTTL > 0 {
		memo = cache.New[string, any](cfg.CacheTTL)
	}

	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: limiter,
		memo:    memo,
		log:     log,
	}
}

// Config returns the immutable configuration snapshot of this client.
func (c *Client) Config() Config { return c.cfg }

// WithAPIKey returns a client view that authenticates with key. The
// receiver is left untouched, so operations already in flight keep the
// credential they started with. The clone gets its own response cache;
// a different credential may see different data.
func (c *Client) WithAPIKey(key string) *Client {
	clone := *c
	clone.cfg.APIKey = key
	if c.memo != nil {
		clone.memo = cache.New[string, any](c.cfg.CacheTTL)
	}
	return &clone
}

// sleep waits for d, aborting early when ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
