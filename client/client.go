// Package client talks to a swapkv server. Swap performs a single call; Exchange runs the
// whole offer, poll and resume protocol for one party.
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// APIError surfaces non-2xx responses other than conflicts.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, strings.TrimSpace(e.Body))
}

// ErrConflict is returned on 404: the exchange must restart at offset 0.
var ErrConflict = errors.New("swap conflict")

type Request struct {
	Key    []byte
	ID     []byte
	Offset uint64
	Values [][]byte
	// TTL in seconds; 0 asks for the server maximum.
	TTL uint32
}

type Response struct {
	Key    []byte
	ID     []byte
	Offset uint64
	// TTL is set when the call created or refreshed an offer.
	TTL uint32
	// Matched is set when Values carries the counterpart's chunks.
	Matched bool
	Values  [][]byte
}

type Client struct {
	baseURL      string
	http         *retryablehttp.Client
	clock        clockwork.Clock
	logger       *zap.Logger
	pollInterval time.Duration
}

type Opt func(*Client)

func WithHTTPClient(hc *http.Client) Opt {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(c *Client) {
		c.logger = logger
		c.http.Logger = &retryableHTTPLogger{inner: logger}
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithPollInterval sets how long Exchange waits between polls.
func WithPollInterval(d time.Duration) Opt {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithRetries bounds transport level retries of a single call.
func WithRetries(max int, waitMin, waitMax time.Duration) Opt {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

func New(baseURL string, opts ...Opt) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 50 * time.Millisecond
	hc.RetryWaitMax = time.Second
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	hc.Logger = &retryableHTTPLogger{inner: zap.NewNop()}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         hc,
		clock:        clockwork.NewRealClock(),
		logger:       zap.NewNop(),
		pollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewPartyID returns a random party id.
func NewPartyID() []byte {
	id := uuid.New()
	return id[:]
}

// Swap performs one submitOrRetrieve call.
func (c *Client) Swap(ctx context.Context, req Request) (Response, error) {
	q := url.Values{}
	q.Set("key", encodeBase64(req.Key))
	q.Set("uid", encodeBase64(req.ID))
	q.Set("off", strconv.FormatUint(req.Offset, 10))
	if req.TTL > 0 {
		q.Set("ttl", strconv.FormatUint(uint64(req.TTL), 10))
	}
	for _, v := range req.Values {
		q.Add("val", encodeBase64(v))
	}

	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/swap?"+q.Encode(), nil)
	if err != nil {
		return Response{}, err
	}
	resp, err := c.http.Do(hreq)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return Response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeResponse(body)
	case http.StatusNotFound:
		return Response{}, ErrConflict
	default:
		return Response{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// Exchange deposits values under key as party id and polls until the counterpart's
// values arrive. A conflict, such as the offer expiring between polls, restarts the
// exchange from offset 0 after the poll interval. Exchange returns when ctx is done.
func (c *Client) Exchange(ctx context.Context, key, id []byte, values [][]byte, ttl uint32) ([][]byte, error) {
	req := Request{Key: key, ID: id, Values: values, TTL: ttl}
	for {
		resp, err := c.Swap(ctx, req)
		switch {
		case errors.Is(err, ErrConflict):
			c.logger.Debug("exchange restarted", zap.Uint64("offset", req.Offset))
			req.Offset, req.Values = 0, values
		case err != nil:
			return nil, err
		case resp.Matched:
			return resp.Values, nil
		default:
			req.Offset, req.Values = resp.Offset, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.pollInterval):
		}
	}
}

func decodeResponse(body []byte) (Response, error) {
	q, err := url.ParseQuery(string(body))
	if err != nil {
		return Response{}, fmt.Errorf("parse response: %w", err)
	}
	var resp Response
	if resp.Key, err = decodeBase64(q.Get("key")); err != nil {
		return Response{}, fmt.Errorf("response key: %w", err)
	}
	if resp.ID, err = decodeBase64(q.Get("uid")); err != nil {
		return Response{}, fmt.Errorf("response uid: %w", err)
	}
	if resp.Offset, err = strconv.ParseUint(q.Get("off"), 10, 64); err != nil {
		return Response{}, fmt.Errorf("response off: %w", err)
	}
	if v := q.Get("ttl"); v != "" {
		ttl, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Response{}, fmt.Errorf("response ttl: %w", err)
		}
		resp.TTL = uint32(ttl)
	}
	resp.Matched = q.Get("matched") == "1"
	for _, v := range q["val"] {
		chunk, err := decodeBase64(v)
		if err != nil {
			return Response{}, fmt.Errorf("response val: %w", err)
		}
		resp.Values = append(resp.Values, chunk)
	}
	if resp.Matched && resp.Values == nil {
		resp.Values = [][]byte{}
	}
	return resp, nil
}

func encodeBase64(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// A wrapper around zap.Logger to make it compatible with
// retryablehttp.LeveledLogger interface.
type retryableHTTPLogger struct {
	inner *zap.Logger
}

func (r retryableHTTPLogger) Error(format string, args ...any) {
	r.inner.Sugar().Errorw(format, args...)
}

func (r retryableHTTPLogger) Info(format string, args ...any) {
	r.inner.Sugar().Infow(format, args...)
}

func (r retryableHTTPLogger) Warn(format string, args ...any) {
	r.inner.Sugar().Warnw(format, args...)
}

func (r retryableHTTPLogger) Debug(format string, args ...any) {
	r.inner.Sugar().Debugw(format, args...)
}
