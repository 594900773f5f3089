package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/felinebridge/cockpit/internal/config"
	"github.com/felinebridge/cockpit/pkg/apperror"
	"github.com/felinebridge/cockpit/pkg/logger"
)

// AuthUser represents an authenticated operator.
type AuthUser struct {
	// Email identifies the operator and is recorded as the audit actor.
	Email string `json:"email"`

	// Roles granted by the session token. API key auth grants admin.
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the user holds the given role.
func (u *AuthUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey string

const UserContextKey contextKey = "auth_user"

// GetUser retrieves the authenticated user from the Echo context.
func GetUser(c echo.Context) *AuthUser {
	if user, ok := c.Get(string(UserContextKey)).(*AuthUser); ok {
		return user
	}
	return nil
}

// Actor returns the audit actor for the request. Falls back to "anonymous"
// when the route runs without authentication (local development).
func Actor(c echo.Context) string {
	if user := GetUser(c); user != nil && user.Email != "" {
		return user.Email
	}
	return "anonymous"
}

// Middleware handles authentication for routes.
type Middleware struct {
	cfg *config.Config
	log *slog.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(cfg *config.Config, log *slog.Logger) *Middleware {
	return &Middleware{
		cfg: cfg,
		log: log.With(logger.Scope("auth")),
	}
}

// RequireAuth returns middleware that requires authentication. When no auth
// mechanism is configured the request passes through unauthenticated, so a
// fresh local checkout works without secrets.
func (m *Middleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !m.cfg.Auth.IsConfigured() {
				return next(c)
			}

			user, err := m.authenticate(c)
			if err != nil {
				m.log.Warn("authentication failed",
					slog.String("path", c.Request().URL.Path),
					logger.Error(err))
				return err
			}

			c.Set(string(UserContextKey), user)
			return next(c)
		}
	}
}

// RequireRole returns middleware that requires a specific role. Must run
// after RequireAuth. Unauthenticated pass-through (no auth configured) is
// allowed through here too.
func (m *Middleware) RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !m.cfg.Auth.IsConfigured() {
				return next(c)
			}

			user := GetUser(c)
			if user == nil {
				return apperror.ErrUnauthorized
			}
			if !user.HasRole(role) {
				return apperror.ErrForbidden.WithDetails(map[string]any{
					"required_role": role,
				})
			}
			return next(c)
		}
	}
}

func (m *Middleware) authenticate(c echo.Context) (*AuthUser, error) {
	if user := m.checkAPIKey(c.Request()); user != nil {
		return user, nil
	}

	token := extractBearer(c.Request())
	if token == "" {
		return nil, apperror.ErrUnauthorized.WithMessage("Missing credentials")
	}

	return m.verifyJWT(token)
}

// checkAPIKey matches the static admin key from X-API-Key or the bearer
// token. Comparison is constant-time.
func (m *Middleware) checkAPIKey(r *http.Request) *AuthUser {
	if m.cfg.Auth.APIKey == "" {
		return nil
	}

	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = extractBearer(r)
	}
	if key == "" {
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(key), []byte(m.cfg.Auth.APIKey)) != 1 {
		return nil
	}

	return &AuthUser{
		Email: m.cfg.Auth.APIKeyActor,
		Roles: []string{RoleAdmin, RoleReviewer},
	}
}

// sessionClaims are the claims issued by the cockpit login flow.
type sessionClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (m *Middleware) verifyJWT(token string) (*AuthUser, error) {
	if m.cfg.Auth.JWTSecret == "" {
		return nil, apperror.ErrInvalidToken
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.cfg.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, apperror.ErrInvalidToken.WithInternal(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, apperror.ErrInvalidToken
	}

	return &AuthUser{
		Email: claims.Subject,
		Roles: claims.Roles,
	}, nil
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Known roles.
const (
	// RoleAdmin can resolve candidates and trigger destructive merges.
	RoleAdmin = "admin"

	// RoleReviewer can list candidates and preview merges.
	RoleReviewer = "reviewer"
)
