// Auth HTTP handlers.
//
// This file exposes the delegated authentication endpoints. The service never
// stores credentials: every operation proxies the external auth provider and
// translates its outcomes into the standard error envelope. Tokens returned
// here are later validated locally by the auth middleware.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/subtextlabs/go-subtext-backend/internal/authapi"
)

//
// DTOs
//

// SignupRequest is the JSON payload for account creation.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email" example:"ada@example.com"`
	Password string `json:"password" binding:"required,min=8" example:"correct horse battery"`
	FullName string `json:"fullName" example:"Ada Lovelace"`
}

// LoginRequest is the JSON payload for password sign-in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
}

// RefreshRequest is the JSON payload for session refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required" example:"v1.MRjDq8…"`
}

// AuthUser is the client-facing view of a provider account.
type AuthUser struct {
	ID       string `json:"id" example:"7f8d1f1e-9f2a-4c3d-8e9f-0123456789ab"`
	Email    string `json:"email" example:"ada@example.com"`
	FullName string `json:"fullName,omitempty" example:"Ada Lovelace"`
}

// AuthSession is the client-facing view of a provider session.
type AuthSession struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn" example:"3600"`
	TokenType    string `json:"tokenType" example:"bearer"`
}

// AuthResponse is returned by signup, login, and refresh.
// Login and refresh may omit the user object.
type AuthResponse struct {
	User    *AuthUser   `json:"user,omitempty"`
	Session AuthSession `json:"session"`
}

// authResponse converts a provider session into the client-facing shape.
func authResponse(s *authapi.Session) AuthResponse {
	resp := AuthResponse{
		Session: AuthSession{
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			ExpiresIn:    s.ExpiresIn,
			TokenType:    s.TokenType,
		},
	}
	if s.User.ID != "" {
		resp.User = &AuthUser{
			ID:       s.User.ID,
			Email:    s.User.Email,
			FullName: s.User.Metadata.FullName,
		}
	}
	return resp
}

// bearerFrom extracts the raw bearer token from the Authorization header.
// Returns "" when the header is absent or not a bearer scheme.
func bearerFrom(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

//
// Handlers
//

// Signup godoc
// @ID          signup
// @Summary     Create an account
// @Description Registers a new account with the auth provider and returns the first session.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SignupRequest  true  "Account details"
//
// @Success     201  {object}  handlers.AuthResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body"
// @Failure     409  {object}  handlers.ErrorResponse  "Account already exists"
// @Failure     502  {object}  handlers.ErrorResponse  "Auth provider unavailable"
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password (min 8 chars) are required")
		return
	}

	session, err := h.authSvc.SignUp(c.Request.Context(), req.Email, req.Password, strings.TrimSpace(req.FullName))
	if err != nil {
		if errors.Is(err, authapi.ErrUserExists) {
			fail(c, http.StatusConflict, ErrCodeConflict, "an account with this email already exists")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "auth provider error")
		return
	}
	ok(c, http.StatusCreated, authResponse(session))
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Description Exchanges email and password for a session.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
//
// @Success     200  {object}  handlers.AuthResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body"
// @Failure     401  {object}  handlers.ErrorResponse  "Wrong email or password"
// @Failure     502  {object}  handlers.ErrorResponse  "Auth provider unavailable"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}

	session, err := h.authSvc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, authapi.ErrInvalidCredentials) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "wrong email or password")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "auth provider error")
		return
	}
	ok(c, http.StatusOK, authResponse(session))
}

// Refresh godoc
// @ID          refreshSession
// @Summary     Refresh a session
// @Description Rotates a refresh token into a fresh access/refresh token pair.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RefreshRequest  true  "Refresh token"
//
// @Success     200  {object}  handlers.AuthResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid or expired refresh token"
// @Failure     502  {object}  handlers.ErrorResponse  "Auth provider unavailable"
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refreshToken is required")
		return
	}

	session, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, authapi.ErrInvalidToken) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired refresh token")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "auth provider error")
		return
	}
	ok(c, http.StatusOK, authResponse(session))
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Revokes the current session at the auth provider.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
//
// @Success     204  "Signed out"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     502  {object}  handlers.ErrorResponse  "Auth provider unavailable"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	token := bearerFrom(c)
	if token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
		return
	}

	if err := h.authSvc.SignOut(c.Request.Context(), token); err != nil {
		if errors.Is(err, authapi.ErrInvalidToken) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "session is no longer valid")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "auth provider error")
		return
	}
	noContent(c)
}
