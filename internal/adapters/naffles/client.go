// Package naffles provides a resilient REST client for the Naffles platform API
package naffles

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	perr "nafbridge/internal/platform/errors"
	"nafbridge/internal/platform/logger"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUA        = "nafbridge"
	defaultRetryBase = 500 * time.Millisecond

	// syncHeader marks requests as bot-originated so the platform can
	// suppress its own outbound notifications for them
	syncHeader = "X-Discord-Bot-Sync"
)

// Options configures the Client
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration

	// MaxRetries is in-call retries for transient failures.
	// The sync engine schedules its own retries, so this stays 0 there
	MaxRetries int
	RetryBase  time.Duration
}

// Client is a minimal platform API client with auth and error classification
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("naffles"),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Do issues a request with auth headers and classifies failures.
// body may be nil for GET style calls
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	url := c.opts.BaseURL + path
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var rd io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "naffles marshal body failed")
			}
			rd = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInternal, "naffles new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set(syncHeader, "true")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			cerr := classifyTransport(err)
			if !c.shouldRetry(attempts) || !perr.Retryable(cerr) {
				return nil, cerr
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("naffles transport error retrying")
			c.sleep(back)
			attempts++
			continue
		}

		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("naffles http response")

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			b, rerr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if rerr != nil {
				return nil, perr.Wrapf(rerr, perr.ErrorCodeUnavailable, "naffles read body failed")
			}
			return b, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.RateLimitedf("naffles rate limited")
			}
			wait := retryAfterWait(resp.Header, c.backoff(attempts))
			c.log.Warn().Dur("sleep", wait).Msg("naffles rate limited backing off")
			c.sleep(wait)
			attempts++
			continue

		case resp.StatusCode >= 500:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.Unavailablef("naffles server error %d", resp.StatusCode)
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("naffles transient error retrying")
			c.sleep(back)
			attempts++
			continue

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, classifyStatus(resp.StatusCode, body)
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase
	ms := int64(d / time.Millisecond)
	ms = ms << uint(attempt)
	ceiling := int64(30 * time.Second / time.Millisecond)
	if ms > ceiling {
		ms = ceiling
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}
