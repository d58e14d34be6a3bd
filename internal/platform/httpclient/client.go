package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ifiokjr/verily/pkg/retry"
)

// Client wraps http.Client with logging and retries.
type Client struct {
	hc            *stdhttp.Client
	log           *slog.Logger
	retry         retry.Config
	headers       map[string]string
	urlRedactor   func(*url.URL) string
	retryMethods  map[string]struct{}
	retryNonIdem  bool
	maxReplayBody int64
	maxErrorBody  int64
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets request timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetry sets the retry budget. MaxAttempts of 1 disables retries.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			if c.headers == nil {
				c.headers = make(map[string]string)
			}
			c.headers[k] = v
		}
	}
}

// WithoutHeaders removes default headers.
func WithoutHeaders(keys ...string) Option {
	return func(c *Client) {
		for _, k := range keys {
			delete(c.headers, k)
		}
	}
}

// WithURLRedactor sets URL redactor for logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithRetryMethods adds methods allowed for retries.
func WithRetryMethods(methods ...string) Option {
	return func(c *Client) {
		for _, m := range methods {
			c.retryMethods[m] = struct{}{}
		}
	}
}

// WithRetryNonIdempotent allows retries for non-idempotent methods like POST.
func WithRetryNonIdempotent(v bool) Option {
	return func(c *Client) { c.retryNonIdem = v }
}

// WithMaxReplayBodySize limits size of buffered body for retries (0 disables limit).
func WithMaxReplayBodySize(n int64) Option {
	return func(c *Client) { c.maxReplayBody = n }
}

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 100
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 10 * time.Second

	noRetry := retry.DefaultConfig()
	noRetry.MaxAttempts = 1

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   15 * time.Second,
			Transport: tr,
		},
		log:           slog.Default(),
		retry:         noRetry,
		maxReplayBody: 1 << 20,
		maxErrorBody:  64 << 10,
		retryMethods: map[string]struct{}{
			stdhttp.MethodGet:     {},
			stdhttp.MethodHead:    {},
			stdhttp.MethodOptions: {},
			stdhttp.MethodPut:     {},
			stdhttp.MethodDelete:  {},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ErrReplayBodyTooLarge indicates request body exceeds replay limit.
var ErrReplayBodyTooLarge = errors.New("http: body too large for replay")

// StatusError is returned when every attempt ended with a retryable status.
// Body holds the start of the last response body.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// RetryAfter returns the delay requested by the server, if any.
func (e *StatusError) RetryAfter() time.Duration { return e.retryAfter }

// IsRetryable implements the retry classification interface.
func (e *StatusError) IsRetryable() bool { return retryableStatus(e.StatusCode) }

func retryableStatus(code int) bool {
	switch code {
	case 408, 421, 425, 429:
		return true
	}
	return code >= 500
}

// retryAfter parses Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

func (c *Client) redactURL(u *url.URL) string {
	if c.urlRedactor != nil {
		return c.urlRedactor(u)
	}
	return u.Redacted()
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

// bufferBody makes req replayable across attempts.
func (c *Client) bufferBody(req *stdhttp.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	var body []byte
	var err error
	if c.maxReplayBody > 0 {
		body, err = io.ReadAll(io.LimitReader(req.Body, c.maxReplayBody+1))
		if err == nil && int64(len(body)) > c.maxReplayBody {
			err = ErrReplayBodyTooLarge
		}
	} else {
		body, err = io.ReadAll(req.Body)
	}
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Body, _ = req.GetBody()
	return nil
}

func (c *Client) retryable(req *stdhttp.Request) bool {
	if _, ok := c.retryMethods[req.Method]; ok {
		return true
	}
	if req.Method == stdhttp.MethodPost && req.Header.Get("Idempotency-Key") != "" {
		return true
	}
	return c.retryNonIdem
}

// Do sends req with ctx, logging and retries. A response with a
// non-retryable status is returned as is; when retries run out on a
// retryable status the error unwraps to *StatusError.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	if err := c.bufferBody(req); err != nil {
		return nil, err
	}

	cfg := c.retry
	if !c.retryable(req) {
		cfg.MaxAttempts = 1
	}
	u := c.redactURL(req.URL)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("http request retry",
			slog.String("method", req.Method),
			slog.String("url", u),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Bool("idempotency_key", req.Header.Get("Idempotency-Key") != ""),
			slog.Any("error", err),
		)
	}

	var resp *stdhttp.Response
	attempt := 0
	err := retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		attempt++
		r, err := c.attempt(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, retry.DefaultRetryable)
	if err != nil {
		c.log.Warn("http request error",
			slog.String("method", req.Method),
			slog.String("url", u),
			slog.Int("attempts", attempt),
			slog.Any("error", err),
		)
		if cfg.MaxAttempts == 1 {
			var exceeded *retry.RetriesExceededError
			if errors.As(err, &exceeded) {
				return nil, exceeded.LastError
			}
		}
		return nil, err
	}
	return resp, nil
}

// attempt performs a single round trip. Retryable statuses become a
// *StatusError so the retry loop sees them.
func (c *Client) attempt(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	r := req.Clone(ctx)
	for k, v := range c.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	if r.GetBody != nil {
		rc, err := r.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = rc
	}

	st := time.Now()
	resp, err := c.hc.Do(r)
	if err != nil {
		return nil, err
	}
	c.log.Debug("http request",
		slog.String("method", r.Method),
		slog.String("url", c.redactURL(r.URL)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", time.Since(st)),
	)
	if !retryableStatus(resp.StatusCode) {
		return resp, nil
	}

	if resp.StatusCode == 421 {
		if tr, ok := c.hc.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxErrorBody))
	drainAndClose(resp.Body)
	return nil, &StatusError{
		Method:     r.Method,
		URL:        c.redactURL(r.URL),
		StatusCode: resp.StatusCode,
		Body:       body,
		retryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
}
