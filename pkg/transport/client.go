// Package transport is the single egress point for calls to the casegen API.
//
// A Client applies the base URL, per-call timeouts, request ids, and an
// optional outbound rate limit. Responses are normalized into one canonical
// Envelope at this boundary so callers never branch on response shape.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Observer receives one callback per completed request. Status is zero when
// no response was received.
type Observer interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// RawResponse is a 2xx response with its body fully read.
type RawResponse struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// Blob is a binary response handed back verbatim.
type Blob struct {
	ContentType string
	FileName    string
	Data        []byte
}

// Client is safe for concurrent use. Construct it once at process start
// and share it between gateways.
type Client struct {
	base          string
	http          *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	limiter       *rate.Limiter
	userAgent     string
	logger        *zap.Logger
	observer      Observer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a request observer (metrics).
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout == 0 {
		uploadTimeout = DefaultUploadTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := &Client{
		base:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:          &http.Client{},
		timeout:       timeout,
		uploadTimeout: uploadTimeout,
		userAgent:     userAgent,
		logger:        zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.base
}

// MultipartFile is a single file part of a multipart/form-data request.
type MultipartFile struct {
	Field    string
	FileName string
	Content  io.Reader
}

type requestOptions struct {
	query     url.Values
	accept    string
	route     string
	multipart *MultipartFile
	upload    bool
}

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

// WithQuery sets query parameters. Empty values are dropped.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = q
	}
}

// WithAccept sets the Accept header.
func WithAccept(accept string) RequestOption {
	return func(o *requestOptions) {
		o.accept = accept
	}
}

// WithRoute labels the request with a low-cardinality route template
// (e.g. "/files/{id}") for observers.
func WithRoute(route string) RequestOption {
	return func(o *requestOptions) {
		o.route = route
	}
}

// WithMultipart streams f as multipart/form-data and applies the upload
// timeout. The content type (including boundary) is produced here and must
// not be overridden by callers.
func WithMultipart(f MultipartFile) RequestOption {
	return func(o *requestOptions) {
		o.multipart = &f
		o.upload = true
	}
}

// Send issues one request and returns the raw 2xx response.
//
// It fails with *NetworkError when no response is received and with
// *HTTPError when the status is outside 200-299. body, when non-nil, is
// JSON-encoded.
func (c *Client) Send(ctx context.Context, method, path string, body any, opts ...RequestOption) (*RawResponse, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	route := ro.route
	if route == "" {
		route = path
	}

	timeout := c.timeout
	if ro.upload {
		timeout = c.uploadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.resolve(path, ro.query)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Method: method, URL: target, Err: err}
		}
	}

	reqBody, contentType, err := c.encodeBody(body, ro.multipart)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		if closer, ok := reqBody.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if ro.accept != "" {
		req.Header.Set("Accept", ro.accept)
	} else {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, route, 0, time.Since(start))
		netErr := &NetworkError{Method: method, URL: target, Err: err}
		c.logger.Warn("API request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, netErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	c.observe(method, route, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("API responded with error status",
			zap.String("method", method),
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", requestID),
			zap.ByteString("body", truncate(data, 512)))
		return nil, &HTTPError{Method: method, URL: target, Status: resp.StatusCode, Body: data}
	}

	c.logger.Debug("API request completed",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &RawResponse{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      data,
		RequestID: requestID,
	}, nil
}

// Do sends a request, normalizes the response into an Envelope, and decodes
// its data into out (which may be nil).
//
// Non-2xx statuses are re-raised as *APIError with the fixed message table.
// An envelope whose code is not a success value is an *APIError as well and
// out is never written.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) (*Envelope, error) {
	raw, err := c.Send(ctx, method, path, body, opts...)
	if err != nil {
		return nil, asAPIError(err)
	}

	env, err := Normalize(raw.Body)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if !env.OK() {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return nil, &APIError{Status: raw.Status, Code: env.Code, Message: msg}
	}
	if out != nil {
		if err := env.Decode(out); err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
	}
	return env, nil
}

// Fetch sends a request expecting a binary body and returns it verbatim.
// The body is never parsed as JSON.
func (c *Client) Fetch(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Blob, error) {
	raw, err := c.Send(ctx, method, path, body, opts...)
	if err != nil {
		return nil, asAPIError(err)
	}
	return &Blob{
		ContentType: raw.Header.Get("Content-Type"),
		FileName:    fileNameFromDisposition(raw.Header.Get("Content-Disposition")),
		Data:        raw.Body,
	}, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.base + path
	if len(query) > 0 {
		clean := url.Values{}
		for k, vs := range query {
			for _, v := range vs {
				if v != "" {
					clean.Add(k, v)
				}
			}
		}
		if encoded := clean.Encode(); encoded != "" {
			target += "?" + encoded
		}
	}
	return target
}

func (c *Client) encodeBody(body any, mp *MultipartFile) (io.Reader, string, error) {
	if mp != nil {
		return streamMultipart(*mp)
	}
	if body == nil {
		return nil, "", nil
	}
	data, err := codec.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// streamMultipart pipes the file through a multipart writer so large
// archives are never buffered in memory.
func streamMultipart(f MultipartFile) (io.Reader, string, error) {
	if f.Content == nil {
		return nil, "", fmt.Errorf("multipart content is required")
	}
	field := f.Field
	if field == "" {
		field = "file"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(field, f.FileName)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()
	return pr, mw.FormDataContentType(), nil
}

func (c *Client) observe(method, route string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, route, status, elapsed)
	}
}

func fileNameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
