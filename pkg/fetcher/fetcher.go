package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/smutt/fediscripts/fedi"
	"github.com/smutt/fediscripts/pkg/retrier"
)

const (
	// DefaultTimeout bounds a single request, connect through body read
	DefaultTimeout = 10 * time.Second
	// DefaultAttempts number of attempts made for retryable failures
	DefaultAttempts = 3
	// MaxBodySize caps how much of a response body we read
	MaxBodySize = 10 << 20
)

// defaultHeaders sent with every request
var defaultHeaders = map[string]string{
	"User-Agent":      "https://github.com/smutt/fediscripts",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Charset":  "ISO-8859-1,utf-8;q=0.7,*;q=0.3",
	"Accept-Encoding": "none",
	"Accept-Language": "en-US,en;q=0.8",
	"Connection":      "keep-alive",
}

// HTTPError is returned when a server answers with an error status that is
// not worth retrying.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error status: %d", e.Code)
}

// Response holds the decoded result of a successful fetch.
type Response struct {
	Body        []byte
	StatusCode  int
	ContentType string
}

// Client fetches HTTPS URLs with a fixed header set, a per-request timeout
// and a bounded retry budget for transport-level failures.
type Client struct {
	c        *http.Client
	attempts uint
}

// New returns a fetch client with the default timeout and retry budget.
func New() *Client {
	return &Client{
		c:        &http.Client{Timeout: DefaultTimeout},
		attempts: DefaultAttempts,
	}
}

// NewWithAttempts returns a fetch client with a custom retry budget.
func NewWithAttempts(attempts uint) *Client {
	c := New()
	c.attempts = attempts
	return c
}

// Fetch issues a GET for rawurl and returns the response body and metadata.
// Malformed URLs, client-error statuses and undecodable bodies fail
// immediately. Transport errors and server-error statuses are retried up to
// the budget; exhaustion surfaces as fedi.ErrRetriesExhausted.
func (c *Client) Fetch(ctx context.Context, rawurl string) (*Response, error) {
	u, err := url.Parse(rawurl)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Wrap(fedi.ErrBadURL, rawurl)
	}

	var resp *Response
	err = retrier.RetryIfAttempts(func() error {
		var doErr error
		resp, doErr = c.do(ctx, u.String())
		return doErr
	}, isRetryable, c.attempts)

	if err != nil {
		if isRetryable(err) {
			log.Debug().Str("url", rawurl).Err(err).Msg("fetch retries exhausted")
			return nil, errors.Wrap(fedi.ErrRetriesExhausted, err.Error())
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(fedi.ErrBadURL, url)
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "transport error")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	if !utf8.Valid(body) {
		return nil, errors.Wrap(fedi.ErrDecode, url)
	}

	return &Response{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// isRetryable reports whether a failed attempt is worth repeating. Server
// error statuses and transport-level failures are, everything else fails
// for good.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	if httpErr, ok := cause.(*HTTPError); ok {
		return httpErr.Code >= http.StatusInternalServerError
	}
	if cause == fedi.ErrBadURL || cause == fedi.ErrDecode {
		return false
	}
	return true
}

// IsClientError reports whether err is an HTTP client error status (400-499).
func IsClientError(err error) bool {
	httpErr, ok := errors.Cause(err).(*HTTPError)
	return ok && httpErr.Code >= http.StatusBadRequest && httpErr.Code < http.StatusInternalServerError
}
