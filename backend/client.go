// Package backend is the JSON client for the application REST API. It knows
// the endpoint shapes and the response envelope; it holds no session state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	PathLogin                = "/auth/login"
	PathRegister             = "/auth/register"
	PathLinkOAuth            = "/auth/google-oauth"
	PathMe                   = "/auth/me"
	PathVerifySession        = "/auth/verify-session"
	PathResetPassword        = "/auth/reset-password"
	PathResetPasswordConfirm = "/auth/reset-password/confirm"
	PathOnboardingStatus     = "/onboarding/status"
	PathOnboardingSubmit     = "/onboarding/submit"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client calls the application backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the API rooted at baseURL (e.g. "https://api.example.com/api").
func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[backend New] baseURL is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zerolog.Nop(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, PathLogin, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account. The payload is backend-defined (confirmation
// instructions and similar) and returned undecoded.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.do(ctx, http.MethodPost, PathRegister, "", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) LinkOAuth(ctx context.Context, req LinkRequest) (*LinkResponse, error) {
	var resp LinkResponse
	if err := c.do(ctx, http.MethodPost, PathLinkOAuth, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Me(ctx context.Context, token string) (*MeResponse, error) {
	var resp MeResponse
	if err := c.do(ctx, http.MethodGet, PathMe, token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) VerifySession(ctx context.Context, token string) (*VerifySessionResponse, error) {
	var resp VerifySessionResponse
	if err := c.do(ctx, http.MethodPost, PathVerifySession, token, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) OnboardingStatus(ctx context.Context, token string) (*OnboardingStatusResponse, error) {
	var resp OnboardingStatusResponse
	if err := c.do(ctx, http.MethodGet, PathOnboardingStatus, token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitOnboarding(ctx context.Context, token string, answers map[string]any) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.do(ctx, http.MethodPost, PathOnboardingSubmit, token, answers, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, req ResetPasswordRequest) error {
	return c.do(ctx, http.MethodPost, PathResetPassword, "", req, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, req ConfirmResetRequest) error {
	return c.do(ctx, http.MethodPost, PathResetPasswordConfirm, "", req, nil)
}

// do sends one JSON request. Transport failures wrap ErrUnavailable, non-2xx
// and success:false responses come back as *APIError, undecodable 2xx bodies
// wrap ErrMalformedResponse.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[backend %s] encode request", path)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "[backend %s] build request", path)
	}

	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Str("request_id", requestID).Msg("backend request failed")
		return apperrors.Wrapf(apperrors.ErrUnavailable, "[backend %s] %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrUnavailable, "[backend %s] read body: %v", path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("backend request")

	var env envelope
	envErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Path: path}
		if envErr == nil {
			apiErr.Reason = env.reason()
		}
		return apiErr
	}

	if envErr == nil && env.Success != nil && !*env.Success {
		reason := env.reason()
		if reason == "" {
			reason = "request was not successful"
		}
		return &APIError{StatusCode: resp.StatusCode, Reason: reason, Path: path}
	}

	if out == nil {
		return nil
	}

	payload := json.RawMessage(raw)
	if envErr == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		payload = env.Data
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return apperrors.Wrapf(apperrors.ErrMalformedResponse, "[backend %s] %v", path, err)
	}
	return nil
}
