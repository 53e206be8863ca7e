// Package apiclient is the folio HTTP API as seen by non-browser clients. It
// carries the session token as a bearer credential and implements
// clientsession.API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"folio/internal/auth"
	"folio/internal/clientsession"
	"folio/internal/identity"
	"folio/internal/profile"
)

// DefaultCookieName matches the server's default session cookie.
const DefaultCookieName = "folio_session"

// ErrNoToken is returned by operations that need a session when none is held.
var ErrNoToken = errors.New("not signed in")

// Error is a non-2xx response from the API.
type Error struct {
	Status    int
	Type      string
	Message   string
	Retryable bool
	Fields    map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for field, msg := range e.Fields {
			parts = append(parts, field+": "+msg)
		}
		sort.Strings(parts)
		return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
	}
	return e.Message
}

// Is lets callers match API errors against the auth taxonomy.
func (e *Error) Is(target error) bool {
	switch target {
	case auth.ErrUpstream:
		return e.Type == auth.TypeUpstream || e.Status == http.StatusServiceUnavailable
	case auth.ErrInvalidCredentials:
		return e.Status == http.StatusUnauthorized && e.Message == auth.ErrInvalidCredentials.Error()
	case auth.ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	case auth.ErrProfileMissing:
		return e.Type == auth.TypeProfileMissing
	case auth.ErrForbidden:
		return e.Status == http.StatusForbidden
	case auth.ErrValidation:
		return e.Status == http.StatusBadRequest
	case auth.ErrNotFound:
		return e.Status == http.StatusNotFound
	case auth.ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	CookieName string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to a folio server.
type Client struct {
	baseURL    *url.URL
	cookieName string
	client     *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client for the server at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	return &Client{
		baseURL:    u,
		cookieName: cookieName,
		client:     httpClient,
		token:      cfg.Token,
	}, nil
}

// Token returns the session token currently held.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type sessionResponse struct {
	User    identity.Identity `json:"user"`
	Session identity.Session  `json:"session"`
	Profile *profile.Profile  `json:"profile"`
}

// CurrentSession asks the server who the held token belongs to. It returns
// (nil, nil) when no token is held or the server does not admit it.
func (c *Client) CurrentSession(ctx context.Context) (*clientsession.Snapshot, error) {
	if c.Token() == "" {
		return nil, nil
	}

	var resp sessionResponse
	err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &resp)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, nil
		}
		return nil, err
	}

	return &clientsession.Snapshot{Identity: resp.User, Session: resp.Session, Profile: resp.Profile}, nil
}

type signInResponse struct {
	Profile    *profile.Profile `json:"profile"`
	RedirectTo string           `json:"redirect_to"`
}

// SignIn exchanges credentials for a session. The token arrives in the
// session cookie and is kept for later calls.
func (c *Client) SignIn(ctx context.Context, email, password string) (*clientsession.Snapshot, string, error) {
	body := map[string]string{"email": email, "password": password}

	var resp signInResponse
	httpResp, err := c.send(ctx, http.MethodPost, "/api/auth/signin", body, &resp)
	if err != nil {
		return nil, "", err
	}

	token := ""
	for _, ck := range httpResp.Cookies() {
		if ck.Name == c.cookieName && ck.Value != "" {
			token = ck.Value
		}
	}
	if token == "" {
		return nil, "", fmt.Errorf("sign-in response carried no %s cookie", c.cookieName)
	}
	c.SetToken(token)

	snap, err := c.CurrentSession(ctx)
	if err != nil {
		return nil, "", err
	}
	if snap == nil {
		c.SetToken("")
		return nil, "", auth.ErrUnauthenticated
	}
	return snap, resp.RedirectTo, nil
}

// SignOut revokes the held session. A session the server no longer knows
// counts as signed out.
func (c *Client) SignOut(ctx context.Context) (string, error) {
	if c.Token() == "" {
		return "/", nil
	}

	var resp struct {
		RedirectTo string `json:"redirect_to"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/signout", nil, &resp)
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return "", err
		}
		resp.RedirectTo = "/"
	}
	c.SetToken("")
	return resp.RedirectTo, nil
}

// ResetPassword requests a recovery message for email.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password", map[string]string{"email": email}, nil)
}

// UpdatePassword changes the password of the signed-in identity.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	if c.Token() == "" {
		return ErrNoToken
	}
	return c.do(ctx, http.MethodPost, "/api/auth/update-password", map[string]string{"password": password}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	_, err := c.send(ctx, method, path, in, out)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, auth.Upstream(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp, decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body auth.APIError
	apiErr := &Error{Status: resp.StatusCode}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		apiErr.Type = body.Error.Type
		apiErr.Message = body.Error.Message
		apiErr.Retryable = body.Error.Retryable
		apiErr.Fields = body.Error.Fields
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		apiErr.Retryable = true
	}
	return apiErr
}
