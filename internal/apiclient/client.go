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
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/astroveda/consult/internal/dtos"
	apperrors "github.com/astroveda/consult/internal/errors"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Detail)
}

// InsufficientBalance reports the wallet-floor rejection of a session start.
func (e *APIError) InsufficientBalance() bool {
	if e.Code == string(apperrors.ErrCodeInsufficientBalance) {
		return true
	}
	return e.StatusCode == http.StatusBadRequest && e.Detail == apperrors.InsufficientBalanceMessage
}

// IsInsufficientBalance reports whether err carries the wallet-floor rejection.
func IsInsufficientBalance(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.InsufficientBalance()
}

// Client calls the consultation REST API with a bearer token.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*dtos.SessionResponse, error) {
	var out dtos.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActiveSessions(ctx context.Context) ([]dtos.SessionResponse, error) {
	var out []dtos.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/active", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StartSession(ctx context.Context, req dtos.StartSessionRequest) (*dtos.SessionResponse, error) {
	var out dtos.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/start", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EndSession(ctx context.Context, sessionID string) (*dtos.SessionResponse, error) {
	var out dtos.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/end", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAstrologer(ctx context.Context, astrologerID string) (*dtos.AstrologerProfile, error) {
	var out dtos.AstrologerProfile
	if err := c.do(ctx, http.MethodGet, "/api/astrologers/"+url.PathEscape(astrologerID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) WalletBalance(ctx context.Context) (*dtos.WalletBalanceResponse, error) {
	var out dtos.WalletBalanceResponse
	if err := c.do(ctx, http.MethodGet, "/api/wallet/balance", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddFunds(ctx context.Context, amount float64) (*dtos.AddFundsResponse, error) {
	q := url.Values{"amount": {strconv.FormatFloat(amount, 'f', -1, 64)}}
	var out dtos.AddFundsResponse
	if err := c.do(ctx, http.MethodPost, "/api/wallet/add-funds", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawPath = ""
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody dtos.ErrorResponse
		if json.Unmarshal(data, &errBody) == nil && errBody.Detail != "" {
			apiErr.Detail = errBody.Detail
			apiErr.Code = errBody.Code
		} else {
			apiErr.Detail = http.StatusText(resp.StatusCode)
		}
		log.Debug().
			Str("component", "apiclient").
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Msg("api request failed")
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
