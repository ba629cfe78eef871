package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"layoutbot/internal/observability"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	requestTimeout = 10 * time.Second
)

// TokenSource yields the bot token. It is resolved on the first call and
// cached for the lifetime of the Client.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a token known up front.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", errors.New("telegram: bot token is empty")
	}
	return string(t), nil
}

// HTTPStatusError captures non-2xx responses whose body is not a Bot API
// envelope.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("telegram: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// APIError is an ok=false answer from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed (%d): %s", e.Method, e.Code, e.Description)
}

func (e *APIError) HTTPStatusCode() int {
	return e.Code
}

// Client is a focused Telegram Bot API client covering what the bot uses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	breaker    *gobreaker.CircuitBreaker

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) {
		if st.IsSuccessful == nil {
			st.IsSuccessful = breakerSuccess
		}
		c.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

func NewClient(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("telegram: token source must not be nil")
	}
	c := &Client{
		baseURL: defaultBaseURL,
		// Per-call deadlines come from the request context; long polls
		// outlive any fixed client timeout.
		httpClient: &http.Client{},
		tokens:     tokens,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "telegram",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: breakerSuccess,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// breakerSuccess counts request-level rejections and cancellations as
// success: only transport faults and 5xx/429 answers should open the breaker.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
	}
	return false
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{}
}

func methodURL(baseURL, token, method string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + "/bot" + token + "/" + method
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u, requestTimeout); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates with id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := getUpdatesParams{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates, timeout+requestTimeout); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, errors.New("telegram: message text must not be empty")
	}
	var m Message
	if err := c.call(ctx, "sendMessage", params, &m, requestTimeout); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	var ok bool
	return c.call(ctx, "setMyCommands", setMyCommandsParams{Commands: commands}, &ok, requestTimeout)
}

func (c *Client) call(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, params, result, timeout)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.TelegramRequestDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) do(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := []byte("{}")
	if params != nil {
		body, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, methodURL(c.baseURL, token, method), bytes.NewReader(body))
	if reqErr != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	// The token is part of the path, so errors carry a redacted URL.
	raw, err := c.doJSONRequest(req, methodURL(c.baseURL, "<redacted>", method))
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			if apiErr := parseAPIError(method, []byte(statusErr.Body)); apiErr != nil {
				return apiErr
			}
		}
		return fmt.Errorf("telegram: %s request failed: %w", method, redact(err, token))
	}

	var env envelope
	if decErr := json.Unmarshal(raw, &env); decErr != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, decErr)
	}
	if !env.OK {
		return envelopeError(method, env)
	}
	if result == nil || len(env.Result) == 0 {
		return nil
	}
	if decErr := json.Unmarshal(env.Result, result); decErr != nil {
		return fmt.Errorf("telegram: decode %s result: %w", method, decErr)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func parseAPIError(method string, body []byte) *APIError {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.OK || env.Description == "" {
		return nil
	}
	return envelopeError(method, env)
}

func envelopeError(method string, env envelope) *APIError {
	apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
		apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
	}
	return apiErr
}

// redact scrubs the token from transport errors, which embed the request URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
