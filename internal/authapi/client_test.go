package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeProvider serves a minimal auth API for the client tests.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Email    string    `json:"email"`
			Password string    `json:"password"`
			Data     *Metadata `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email == "taken@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"msg":"User already registered"}`))
			return
		}
		if body.Password == "short" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"msg":"Password should be at least 6 characters"}`))
			return
		}
		u := User{ID: "u-1", Email: body.Email}
		if body.Data != nil {
			u.Metadata = *body.Data
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Session{
			AccessToken:  "at-new",
			RefreshToken: "rt-new",
			ExpiresIn:    3600,
			User:         u,
		})
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("grant_type") {
		case "password":
			var body struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Password != "correct" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Session{
				AccessToken:  "at-pass",
				RefreshToken: "rt-pass",
				ExpiresIn:    3600,
				User:         User{ID: "u-1", Email: body.Email},
			})
		case "refresh_token":
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.RefreshToken != "rt-valid" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Session{
				AccessToken:  "at-rotated",
				RefreshToken: "rt-rotated",
				ExpiresIn:    3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		}
	})

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-live" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ts := fakeProvider(t)
	return New(ts.URL, "anon-key", 5*time.Second)
}

func TestSignUp_Success_CarriesFullName(t *testing.T) {
	c := newTestClient(t)
	s, err := c.SignUp(context.Background(), "new@example.com", "hunter22", "New User")
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	if s.AccessToken != "at-new" || s.User.Email != "new@example.com" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.User.Metadata.FullName != "New User" {
		t.Fatalf("full name metadata lost: %+v", s.User)
	}
}

func TestSignUp_AlreadyRegistered(t *testing.T) {
	c := newTestClient(t)
	if _, err := c.SignUp(context.Background(), "taken@example.com", "hunter22", ""); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestSignUp_OtherProviderError(t *testing.T) {
	c := newTestClient(t)
	_, err := c.SignUp(context.Background(), "new@example.com", "short", "")
	if err == nil || errors.Is(err, ErrUserExists) {
		t.Fatalf("expected generic provider error, got %v", err)
	}
}

func TestSignIn_SuccessAndRejection(t *testing.T) {
	c := newTestClient(t)
	s, err := c.SignIn(context.Background(), "u@example.com", "correct")
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if s.AccessToken != "at-pass" || s.RefreshToken != "rt-pass" {
		t.Fatalf("unexpected session: %+v", s)
	}

	if _, err := c.SignIn(context.Background(), "u@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefresh_RotatesAndRejects(t *testing.T) {
	c := newTestClient(t)
	s, err := c.Refresh(context.Background(), "rt-valid")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if s.AccessToken != "at-rotated" || s.RefreshToken != "rt-rotated" {
		t.Fatalf("unexpected session: %+v", s)
	}

	if _, err := c.Refresh(context.Background(), "rt-stale"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSignOut(t *testing.T) {
	c := newTestClient(t)
	if err := c.SignOut(context.Background(), "at-live"); err != nil {
		t.Fatalf("SignOut error: %v", err)
	}
	if err := c.SignOut(context.Background(), "at-revoked"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestErrMessage_Fallbacks(t *testing.T) {
	if got := errMessage([]byte(`{"msg":"a","error":"b"}`)); got != "a" {
		t.Fatalf("msg should win, got %q", got)
	}
	if got := errMessage([]byte(`{"error_description":"d","error":"b"}`)); got != "d" {
		t.Fatalf("error_description should beat error, got %q", got)
	}
	if got := errMessage([]byte(`not-json`)); got != "not-json" {
		t.Fatalf("raw body fallback failed, got %q", got)
	}
}
