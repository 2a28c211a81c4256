// Package authapi is a thin client for the external auth provider. The
// backend never issues or stores credentials itself; signup, signin, token
// refresh and signout are all proxied to the provider's HTTP API and the
// provider-signed access token is what request middleware later verifies.
package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors mapped from provider responses.
var (
	ErrUserExists         = errors.New("authapi: user already registered")
	ErrInvalidCredentials = errors.New("authapi: invalid email or password")
	ErrInvalidToken       = errors.New("authapi: invalid or expired token")
)

// Metadata is the free-form profile data attached to an account at signup.
type Metadata struct {
	FullName string `json:"full_name"`
}

// User is the provider's view of an account.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Metadata Metadata `json:"user_metadata"`
}

// Session is an issued token pair. SignUp may return a session without
// tokens when the provider requires email confirmation first.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Client calls the auth provider's REST API.
type Client struct {
	client *resty.Client
}

// New builds a Client against baseURL. apiKey, when set, is sent as the
// provider's apikey header on every request.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		c.SetHeader("apikey", apiKey)
	}
	return &Client{client: c}
}

type credentials struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Data     *Metadata `json:"data,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// apiError is the loose shape of provider error bodies; different endpoints
// use different field names.
type apiError struct {
	Code             int    `json:"code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func errMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		for _, m := range []string{e.Msg, e.ErrorDescription, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// SignUp registers a new account; fullName rides along as profile metadata.
// Returns ErrUserExists when the address is already registered.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*Session, error) {
	body := credentials{Email: email, Password: password}
	if fullName != "" {
		body.Data = &Metadata{FullName: fullName}
	}

	var out Session
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/signup")
	if err != nil {
		return nil, fmt.Errorf("auth signup: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return &out, nil
	}
	msg := errMessage(resp.Body())
	if (resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnprocessableEntity) &&
		strings.Contains(strings.ToLower(msg), "already") {
		return nil, ErrUserExists
	}
	return nil, fmt.Errorf("auth signup status %d: %s", resp.StatusCode(), msg)
}

// SignIn exchanges email and password for a token pair. Returns
// ErrInvalidCredentials on rejected logins.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(credentials{Email: email, Password: password}).
		SetResult(&out).
		Post("/token")
	if err != nil {
		return nil, fmt.Errorf("auth signin: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return &out, nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	}
	return nil, fmt.Errorf("auth signin status %d: %s", resp.StatusCode(), errMessage(resp.Body()))
}

// Refresh exchanges a refresh token for a fresh token pair. Returns
// ErrInvalidToken when the token is unknown or already rotated.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var out Session
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(refreshRequest{RefreshToken: refreshToken}).
		SetResult(&out).
		Post("/token")
	if err != nil {
		return nil, fmt.Errorf("auth refresh: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return &out, nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		return nil, ErrInvalidToken
	}
	return nil, fmt.Errorf("auth refresh status %d: %s", resp.StatusCode(), errMessage(resp.Body()))
}

// SignOut revokes the session behind accessToken. Providers answer 204; any
// 2xx is treated as revoked.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		Post("/logout")
	if err != nil {
		return fmt.Errorf("auth signout: %w", err)
	}
	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		return nil
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrInvalidToken
	}
	return fmt.Errorf("auth signout status %d: %s", resp.StatusCode(), errMessage(resp.Body()))
}
