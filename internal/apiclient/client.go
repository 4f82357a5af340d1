// Package apiclient talks to the remote expense REST API on behalf of one
// browser session. Every request carries the session's cookie jar and, once
// logged in, its bearer token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"expensedash/internal/core"
	applog "expensedash/internal/log"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *applog.Logger
}

// Client is bound to one base URL. Forked copies share the pooled transport
// but own their cookie jar.
type Client struct {
	base      *url.URL
	timeout   time.Duration
	transport http.RoundTripper
	jar       http.CookieJar
	token     string
	http      *http.Client
	logger    *applog.Logger
}

// New creates a client without credentials.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid expense API base URL %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = NewPooledTransport()
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}

	c := &Client{
		base:      base,
		timeout:   opts.Timeout,
		transport: opts.Transport,
		logger:    opts.Logger.WithComponent(applog.ComponentAPIClient),
	}
	if c.jar, err = newJar(); err != nil {
		return nil, err
	}
	c.http = c.newHTTPClient()
	return c, nil
}

// NewPooledTransport returns a keep-alive transport sized for one upstream API.
func NewPooledTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}
}

func newJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return jar, nil
}

// Fork returns a credential-free copy with a fresh cookie jar.
func (c *Client) Fork() (*Client, error) {
	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	f := *c
	f.jar = jar
	f.token = ""
	f.http = f.newHTTPClient()
	return &f, nil
}

// WithToken returns a copy that sends token as a bearer credential.
// The cookie jar is shared with the receiver.
func (c *Client) WithToken(token string) *Client {
	f := *c
	f.token = token
	f.http = f.newHTTPClient()
	return &f
}

// Token returns the bearer token the client sends, if any.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) newHTTPClient() *http.Client {
	rt := c.transport
	if c.token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}),
			Base:   c.transport,
		}
	}
	return &http.Client{
		Transport: rt,
		Jar:       c.jar,
		Timeout:   c.timeout,
	}
}

// ListExpenses fetches every record of the authenticated user.
func (c *Client) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	raw, err := c.do(ctx, http.MethodGet, "/expenses", nil)
	if err != nil {
		return nil, err
	}
	records, err := decodeExpenseList(raw)
	if err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	return records, nil
}

// CreateExpense posts a new record built from the draft.
func (c *Client) CreateExpense(ctx context.Context, d core.Draft) (core.Expense, error) {
	raw, err := c.do(ctx, http.MethodPost, "/expenses", d)
	if err != nil {
		return core.Expense{}, err
	}
	return decodeExpense(raw)
}

// UpdateExpense replaces the editable fields of record id.
func (c *Client) UpdateExpense(ctx context.Context, id string, d core.Draft) (core.Expense, error) {
	raw, err := c.do(ctx, http.MethodPut, "/expenses/"+url.PathEscape(id), d)
	if err != nil {
		return core.Expense{}, err
	}
	return decodeExpense(raw)
}

// DeleteExpense removes record id.
func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/expenses/"+url.PathEscape(id), nil)
	return err
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", credentialsRequest{Email: email, Password: password})
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", credentialsRequest{Name: name, Email: email, Password: password})
}

// Me returns the user the bearer token belongs to.
func (c *Client) Me(ctx context.Context) (core.User, error) {
	raw, err := c.do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return core.User{}, err
	}
	u, err := decodeUser(raw)
	if err != nil {
		return core.User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

func (c *Client) authenticate(ctx context.Context, path string, req credentialsRequest) (AuthResult, error) {
	raw, err := c.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return AuthResult{}, err
	}
	var resp authResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AuthResult{}, fmt.Errorf("decode auth response: %w", err)
	}
	if resp.Token == "" {
		return AuthResult{}, &StatusError{Status: http.StatusBadGateway, Message: "auth response without token"}
	}
	out := AuthResult{Token: resp.Token}
	if resp.User != nil {
		out.User = resp.User.toCore()
	}
	return out, nil
}

func decodeExpense(raw []byte) (core.Expense, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return core.Expense{}, nil
	}
	var d expenseDTO
	if err := json.Unmarshal(raw, &d); err != nil {
		return core.Expense{}, fmt.Errorf("decode expense: %w", err)
	}
	return d.toCore(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	target := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Expense API request failed",
			applog.FieldMethod, method,
			applog.FieldPath, path,
			applog.FieldErrorType, string(KindNetwork),
			applog.FieldError, err)
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %w", method, path, ErrTransport, err)
	}

	c.logger.DebugContext(ctx, "Expense API request",
		applog.FieldMethod, method,
		applog.FieldPath, path,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: %w: %s", method, path, ErrUnauthorized, errorMessage(raw))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%s %s: %w", method, path, &StatusError{Status: resp.StatusCode, Message: errorMessage(raw)})
	}
	return raw, nil
}

func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
