// Package apiclient talks to the tracksys REST backend on behalf of one
// browser workspace. Authentication and session expiry are handled by
// transport middleware so callers only see data or an AppError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
)

var _ ports.Backend = (*Client)(nil)

const maxErrorBodyBytes = 4096

// Options configures a Client.
type Options struct {
	// BaseURL prefixes relative paths such as /api/units/1.
	BaseURL string
	Session *session.Context
	Storage ports.ClientStorage
	// Navigator receives the page to show when a request ends the session.
	Navigator ports.Navigator
	// UnauthenticatedPrefixes are URL prefixes that never get a bearer token.
	UnauthenticatedPrefixes []string
	Timeout                 time.Duration
	// Transport is the innermost transport. It defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// Breaker is shared by every workspace so a dead backend trips once.
	Breaker Middleware
	Logger  *slog.Logger
}

// Client is a backend client bound to one session.
type Client struct {
	base   string
	http   *http.Client
	unauth *Prefixes
	logger *slog.Logger
}

// New builds a client. Middleware order, outermost first: bearer token,
// unauthorized handling, breaker.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	unauth := NewPrefixes(opts.UnauthenticatedPrefixes...)
	mw := []Middleware{
		Bearer(opts.Session, unauth),
		Unauthorized(UnauthorizedOptions{
			Session:   opts.Session,
			Storage:   opts.Storage,
			Navigator: opts.Navigator,
			Logger:    logger,
		}),
	}
	if opts.Breaker != nil {
		mw = append(mw, opts.Breaker)
	}

	return &Client{
		base: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: Chain(opts.Transport, mw...),
		},
		unauth: unauth,
		logger: logger,
	}
}

// ExemptPrefix stops the bearer token from being sent to URLs under prefix.
func (c *Client) ExemptPrefix(prefix string) { c.unauth.Add(prefix) }

// URL resolves a path against the base URL. Absolute URLs are returned as is.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base + path
}

// GetJSON decodes the response of a GET into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp.Body, out)
}

// GetText returns the body of a GET as trimmed text.
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return readText(resp.Body)
}

// PostJSON sends in as JSON and decodes the answer into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := encodeJSON(in)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeJSON(resp.Body, out)
}

// PostText sends in as JSON and returns the plain text answer.
func (c *Client) PostText(ctx context.Context, path string, in any) (string, error) {
	body, err := encodeJSON(in)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodPost, path, body, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return readText(resp.Body)
}

// Delete issues a DELETE with an optional JSON body and decodes the answer
// into out when out is non-nil.
func (c *Client) Delete(ctx context.Context, path string, in, out any) error {
	var (
		body  []byte
		ctype string
		err   error
	)
	if in != nil {
		if body, err = encodeJSON(in); err != nil {
			return err
		}
		ctype = "application/json"
	}
	resp, err := c.do(ctx, http.MethodDelete, path, body, ctype)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeJSON(resp.Body, out)
}

// Stream returns the successful response for the caller to copy and close.
func (c *Client) Stream(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, "")
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, ctype string) (*http.Response, error) {
	target := c.URL(path)
	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "build request %s %s", method, path)
	}
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, method, path, err)
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	msg, _ := readLimited(resp.Body)
	_ = resp.Body.Close()
	c.logger.DebugContext(ctx, "backend request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		if msg == "" {
			msg = path + " not found"
		}
		return nil, apperrors.NotFound(msg)
	}
	return nil, apperrors.Upstream(resp.StatusCode, msg)
}

func (c *Client) transportError(ctx context.Context, method, path string, err error) error {
	switch {
	case errors.Is(err, ErrRedirected):
		return ErrRedirected
	case ctx.Err() != nil:
		return apperrors.Wrapf(ctx.Err(), apperrors.ErrCodeCanceled, "%s %s", method, path)
	case errors.Is(err, ErrBreakerOpen), errors.Is(err, gobreaker.ErrOpenState):
		return apperrors.Unavailable(err, "backend is unavailable")
	default:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperrors.Unavailable(err, fmt.Sprintf("%s %s", method, path))
	}
}

// IsRedirected reports whether err means the browser was already sent elsewhere.
func IsRedirected(err error) bool { return errors.Is(err, ErrRedirected) }

func encodeJSON(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request body")
	}
	return b, nil
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode backend response")
	}
	return nil
}

func readText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "read backend response")
	}
	return strings.TrimSpace(string(b)), nil
}

func readLimited(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	return strings.TrimSpace(string(b)), err
}
