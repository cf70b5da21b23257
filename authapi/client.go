// Package authapi is a client for the Identity Toolkit accounts REST API
// used for e-mail/password sign-up, sign-in and password reset.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1/"

	opSignUp   = "accounts:signUp"
	opSignIn   = "accounts:signInWithPassword"
	opSendOob  = "accounts:sendOobCode"
	resetOobRq = "PASSWORD_RESET"
)

var ErrMalformedResponse = errors.New("malformed auth response")

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s", e.Code, e.Message)
}

// InvalidCredentials reports whether the endpoint rejected the e-mail or
// password.
func (e *APIError) InvalidCredentials() bool {
	switch strings.SplitN(e.Message, " ", 2)[0] {
	case "INVALID_LOGIN_CREDENTIALS", "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "USER_DISABLED", "INVALID_EMAIL":
		return true
	}
	return e.Status == http.StatusUnauthorized
}

// AuthResponse is the reply to sign-up and sign-in.
type AuthResponse struct {
	LocalID      string `json:"localId"`
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	Registered   bool   `json:"registered,omitempty"`
}

// OobResponse acknowledges an out-of-band code request.
type OobResponse struct {
	Email string `json:"email"`
	Kind  string `json:"kind,omitempty"`
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SignUp(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.authenticate(ctx, opSignUp, email, password)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.authenticate(ctx, opSignIn, email, password)
}

// SendOobCode asks the endpoint to e-mail a password reset link.
func (c *Client) SendOobCode(ctx context.Context, email string) (OobResponse, error) {
	body := map[string]any{
		"email":       email,
		"requestType": resetOobRq,
	}
	var out OobResponse
	if err := c.post(ctx, opSendOob, body, &out); err != nil {
		return OobResponse{}, err
	}
	return out, nil
}

func (c *Client) authenticate(ctx context.Context, op, email, password string) (AuthResponse, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	var out AuthResponse
	if err := c.post(ctx, op, body, &out); err != nil {
		return AuthResponse{}, err
	}
	if out.LocalID == "" || out.IDToken == "" {
		return AuthResponse{}, fmt.Errorf("%s: %w", op, ErrMalformedResponse)
	}
	return out, nil
}

func (c *Client) endpoint(op string) string {
	base := c.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + op + "?key=" + url.QueryEscape(c.APIKey)
}

func (c *Client) post(ctx context.Context, op string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(op), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == nil {
		return &APIError{Status: status, Code: status, Message: strings.TrimSpace(string(raw))}
	}
	envelope.Error.Status = status
	if envelope.Error.Code == 0 {
		envelope.Error.Code = status
	}
	return envelope.Error
}
