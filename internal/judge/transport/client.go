package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) reftester"

// Config holds transport settings for one judge.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RPS       float64
	Burst     int
	UserAgent string
}

// Response carries response details.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// URL is the final request URL after redirects.
	URL *url.URL
}

// FilePart is a file field of a multipart request.
type FilePart struct {
	Field    string
	FileName string
	Content  []byte
}

// Client is a cookie-keeping, rate limited HTTP client bound to one judge.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	jar       *cookiejar.Jar
	limiter   *rate.Limiter
	userAgent string
}

// New creates a judge client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, appErr.Newf(appErr.InvalidParams, "invalid judge base url %q", cfg.BaseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalError, "create cookie jar failed")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout, Jar: jar},
		jar:       jar,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: userAgent,
	}, nil
}

// BaseURL returns the judge root url.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Resolve turns a judge-relative path into an absolute url.
func (c *Client) Resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "invalid path %q", path)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// PostForm issues a url-encoded POST request.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (Response, error) {
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	return c.Do(ctx, http.MethodPost, path, headers, []byte(form.Encode()))
}

// PostMultipart issues a multipart POST request with plain fields followed by file parts.
func (c *Client) PostMultipart(ctx context.Context, path string, fields url.Values, files ...FilePart) (Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			if err := w.WriteField(key, v); err != nil {
				return Response{}, appErr.Wrapf(err, appErr.InternalError, "build multipart body failed")
			}
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.FileName)
		if err != nil {
			return Response{}, appErr.Wrapf(err, appErr.InternalError, "build multipart body failed")
		}
		if _, err := part.Write(f.Content); err != nil {
			return Response{}, appErr.Wrapf(err, appErr.InternalError, "build multipart body failed")
		}
	}
	if err := w.Close(); err != nil {
		return Response{}, appErr.Wrapf(err, appErr.InternalError, "build multipart body failed")
	}
	headers := map[string]string{"Content-Type": w.FormDataContentType()}
	return c.Do(ctx, http.MethodPost, path, headers, buf.Bytes())
}

// Do sends one request through the rate limiter.
// Network failures and 5xx/429 answers come back as JudgeUnavailable; a done ctx as Canceled.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (Response, error) {
	var info Response
	target, err := c.Resolve(path)
	if err != nil {
		return info, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return info, c.wrapFailure(ctx, err, "rate limiter wait failed")
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return info, appErr.Wrapf(err, appErr.InternalError, "build request failed")
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, c.wrapFailure(ctx, err, fmt.Sprintf("%s %s failed", method, target.Path))
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	info.URL = resp.Request.URL
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, c.wrapFailure(ctx, err, "read response body failed")
	}
	info.Body = bodyBytes

	logger.Debug(ctx, "judge request",
		zap.String("method", method),
		zap.String("url", target.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", info.Duration),
	)

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return info, appErr.Newf(appErr.JudgeUnavailable, "judge answered %d for %s %s", resp.StatusCode, method, target.Path)
	}
	return info, nil
}

func (c *Client) wrapFailure(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return appErr.Wrapf(err, appErr.Canceled, "%s", msg)
	}
	return appErr.Wrapf(err, appErr.JudgeUnavailable, "%s", msg)
}

// Cookies returns the session cookies the judge has set for its base url.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.baseURL)
}

// SetCookies seeds the jar, typically with a persisted session.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	c.jar.SetCookies(c.baseURL, cookies)
}

// PathIs reports whether the final url of the response lives under prefix.
func (r Response) PathIs(prefix string) bool {
	if r.URL == nil {
		return false
	}
	return strings.HasPrefix(r.URL.Path, prefix)
}
