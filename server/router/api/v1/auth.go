package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/server/auth"
	"github.com/chatrelay/chatrelay/store"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleSignIn checks credentials and sets the session cookie.
func (s *APIV1Service) handleSignIn(c echo.Context) error {
	request := &signInRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if request.Email == "" || request.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	sid, identity, err := s.Authenticator.SignIn(c.Request().Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to sign in")
	}

	c.SetCookie(s.sessionCookie(sid, identity.ExpiresAt))
	return c.JSON(http.StatusOK, &userResponse{
		Email:     identity.Email,
		Nickname:  identity.Nickname,
		ExpiresAt: identity.ExpiresAt,
	})
}

type signUpRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// handleSignUp creates a user and signs them in.
func (s *APIV1Service) handleSignUp(c echo.Context) error {
	request := &signUpRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if request.Email == "" || len(request.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "email and a password of at least 8 characters are required")
	}

	ctx := c.Request().Context()
	existing, err := s.Store.GetUser(ctx, &store.FindUser{Email: &request.Email})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to check email")
	}
	if existing != nil {
		return echo.NewHTTPError(http.StatusConflict, "email is already registered")
	}

	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to hash password")
	}
	if _, err := s.Store.CreateUser(ctx, &store.User{
		Email:        request.Email,
		Nickname:     request.Nickname,
		PasswordHash: hash,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create user")
	}

	sid, identity, err := s.Authenticator.SignIn(ctx, request.Email, request.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to sign in new user")
	}
	c.SetCookie(s.sessionCookie(sid, identity.ExpiresAt))
	return c.JSON(http.StatusOK, &userResponse{
		Email:     identity.Email,
		Nickname:  identity.Nickname,
		ExpiresAt: identity.ExpiresAt,
	})
}

// handleSignOut clears the session cookie. The resumable chat
// mapping, if any, keeps its own expiry; chat-side logout is the
// logout command in the conversation.
func (s *APIV1Service) handleSignOut(c echo.Context) error {
	cookie := s.sessionCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusOK)
}

// handleMe returns the signed-in user.
func (s *APIV1Service) handleMe(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	return c.JSON(http.StatusOK, &userResponse{
		Email:     identity.Email,
		Nickname:  identity.Nickname,
		ExpiresAt: identity.ExpiresAt,
	})
}

// cookieAuth guards the browser API group.
func (s *APIV1Service) cookieAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, _, ok := s.identityFromCookie(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
		}
		req := c.Request()
		c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), identity)))
		return next(c)
	}
}

func (s *APIV1Service) sessionCookie(sid string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CookieName,
		Value:    sid,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   !s.Profile.IsDev(),
		SameSite: http.SameSiteLaxMode,
	}
}
