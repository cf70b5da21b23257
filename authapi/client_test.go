package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path string
	key  string
	body map[string]any
}

func newServer(t *testing.T, status int, reply string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		rec.key = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/v1/", "test-key"), rec
}

func TestSignInWithPassword(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"localId":"u1","idToken":"tok","email":"a@b.com","expiresIn":"3600"}`)

	resp, err := c.SignInWithPassword(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.LocalID)
	assert.Equal(t, "tok", resp.IDToken)

	assert.Equal(t, "/v1/accounts:signInWithPassword", rec.path)
	assert.Equal(t, "test-key", rec.key)
	assert.Equal(t, "a@b.com", rec.body["email"])
	assert.Equal(t, "secret", rec.body["password"])
	assert.Equal(t, true, rec.body["returnSecureToken"])
}

func TestSignUp(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"localId":"u2","idToken":"tok2"}`)

	resp, err := c.SignUp(context.Background(), "new@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u2", resp.LocalID)
	assert.Equal(t, "/v1/accounts:signUp", rec.path)
}

func TestSendOobCode(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"email":"a@b.com","kind":"identitytoolkit#GetOobConfirmationCodeResponse"}`)

	resp, err := c.SendOobCode(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", resp.Email)
	assert.Equal(t, "/v1/accounts:sendOobCode", rec.path)
	assert.Equal(t, "PASSWORD_RESET", rec.body["requestType"])
	assert.NotContains(t, rec.body, "password")
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		reply       string
		wantMessage string
		wantCreds   bool
	}{
		{"bad password", 400, `{"error":{"code":400,"message":"INVALID_PASSWORD"}}`, "INVALID_PASSWORD", true},
		{"with detail", 400, `{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS : extra"}}`, "INVALID_LOGIN_CREDENTIALS : extra", true},
		{"email exists", 400, `{"error":{"code":400,"message":"EMAIL_EXISTS"}}`, "EMAIL_EXISTS", false},
		{"not json", 503, `upstream down`, "upstream down", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, tt.status, tt.reply)
			_, err := c.SignInWithPassword(context.Background(), "a@b.com", "x")

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantCreds, apiErr.InvalidCredentials())
		})
	}
}

func TestMalformedResponse(t *testing.T) {
	tests := map[string]string{
		"missing token": `{"localId":"u1"}`,
		"missing id":    `{"idToken":"t"}`,
		"not json":      `<html>`,
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			c, _ := newServer(t, http.StatusOK, reply)
			_, err := c.SignInWithPassword(context.Background(), "a@b.com", "x")
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only notices a gone client once the body is consumed
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)
	c := NewClient(srv.URL+"/", "k")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.SignInWithPassword(ctx, "a@b.com", "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultBaseURL(t *testing.T) {
	c := NewClient("", "k")
	assert.Equal(t, "https://identitytoolkit.googleapis.com/v1/accounts:signUp?key=k", c.endpoint(opSignUp))
}
