// Package transport provides the default HTTP implementation of
// pkg/providers.HTTPClient: a retrying client for block ciphertext and
// paginated JSON listings, built on github.com/hashicorp/go-retryablehttp
// so transient network failures are retried below the pipeline's own
// block-level retry budget, while an HTTP 404 on a block URL is surfaced
// immediately as direrrors.AuthExpired for the pipeline to handle by
// refreshing the block's token.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/kraklabs/drivedl/pkg/direrrors"
)

// Config controls the retrying HTTP client's timeouts and retry budget.
// The zero value is not usable; use DefaultConfig.
type Config struct {
	// Timeout bounds each HTTP attempt's round trip. It does not bound the
	// total time spent across go-retryablehttp's retries of one request.
	Timeout time.Duration
	// MaxRetries bounds how many times go-retryablehttp itself retries a
	// transient failure, independent of and below the pipeline's own
	// per-block retry.
	MaxRetries int
	// RetryWaitMin/RetryWaitMax bound the backoff between transport-level
	// retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultConfig returns the timeouts used when an embedder does not
// override them: a 2-minute per-attempt timeout, 2 transport-level retries
// with exponential backoff between 500ms and 5s.
func DefaultConfig() Config {
	return Config{
		Timeout:      2 * time.Minute,
		MaxRetries:   2,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		UserAgent:    "drivedl/1.0",
	}
}

// Client is the default providers.HTTPClient implementation.
type Client struct {
	cfg   Config
	inner *retryablehttp.Client
}

// New builds a Client from cfg, wiring go-cleanhttp's pooled transport as
// the underlying RoundTripper per go-retryablehttp convention.
func New(cfg Config) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	return &Client{cfg: cfg, inner: rc}
}

// checkRetry retries on connection errors and 5xx responses, but never on a
// 404 (an expired block token, which the pipeline handles by refreshing)
// or other 4xx (a validation problem the caller should not blindly retry).
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode == 0 || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// FetchBlob retrieves the raw bytes at url, classifying a 404 as
// direrrors.AuthExpired and any other failure as direrrors.Transport.
func (c *Client) FetchBlob(ctx context.Context, url string, onProgress func(n int64)) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, direrrors.Wrap(direrrors.Validation, "build blob request", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, classifyDoErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, direrrors.New(direrrors.AuthExpired, fmt.Sprintf("block URL expired: %s", url))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, direrrors.New(direrrors.Transport, fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url))
	}

	var buf []byte
	if resp.ContentLength > 0 {
		buf = make([]byte, 0, resp.ContentLength)
	}
	reader := &progressReader{r: resp.Body, onProgress: onProgress}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, direrrors.Wrap(direrrors.Transport, "read blob body", err)
	}
	buf = append(buf, body...)
	return buf, nil
}

// FetchJSON retrieves and unmarshals a JSON document at url into out.
func (c *Client) FetchJSON(ctx context.Context, url string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return direrrors.Wrap(direrrors.Validation, "build json request", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.inner.Do(req)
	if err != nil {
		return classifyDoErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return direrrors.New(direrrors.AuthExpired, fmt.Sprintf("listing URL expired: %s", url))
	}
	if resp.StatusCode != http.StatusOK {
		return direrrors.New(direrrors.Transport, fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return direrrors.Wrap(direrrors.Transport, "decode json response", err)
	}
	return nil
}

// PostJSON sends body as a JSON request to url and unmarshals the response
// into out.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return direrrors.Wrap(direrrors.Validation, "encode json request body", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, encoded)
	if err != nil {
		return direrrors.Wrap(direrrors.Validation, "build json request", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.inner.Do(req)
	if err != nil {
		return classifyDoErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return direrrors.New(direrrors.AuthExpired, fmt.Sprintf("listing URL expired: %s", url))
	}
	if resp.StatusCode != http.StatusOK {
		return direrrors.New(direrrors.Transport, fmt.Sprintf("unexpected status %d posting %s", resp.StatusCode, url))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return direrrors.Wrap(direrrors.Transport, "decode json response", err)
	}
	return nil
}

func classifyDoErr(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return direrrors.Wrap(direrrors.Cancellation, "request canceled", err)
	}
	return direrrors.Wrap(direrrors.Transport, "request failed", err)
}

type progressReader struct {
	r          io.Reader
	onProgress func(n int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.onProgress != nil {
		p.onProgress(int64(n))
	}
	return n, err
}
