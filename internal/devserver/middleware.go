package devserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/maumcare/companion/internal/auth"
)

const (
	userKey = "user"
	csrfKey = "csrf"

	sessionCookie = "sessionid"
	csrfCookie    = "csrftoken"

	// DevUser owns everything when authentication is off
	DevUser = "dev"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// authenticate resolves the user from a bearer token or the session cookie.
// Without a signer every request runs as DevUser.
func authenticate(signer *auth.Signer, required bool, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if signer == nil {
				c.Set(userKey, DevUser)
				return next(c)
			}

			token, err := requestToken(c)
			if err != nil {
				if !required {
					c.Set(userKey, DevUser)
					return next(c)
				}
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "Authentication credentials were not provided.",
				})
			}

			claims, err := signer.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired token.",
				})
			}

			c.Set(userKey, claims.UserID)
			return next(c)
		}
	}
}

func requestToken(c echo.Context) (string, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		return auth.TokenFromHeader(header)
	}
	if ck, err := c.Cookie(sessionCookie); err == nil && ck.Value != "" {
		return ck.Value, nil
	}
	return "", auth.ErrMissingToken
}

// csrfProtection checks X-CSRFToken or the csrfmiddlewaretoken form field against the csrftoken cookie
func csrfProtection(enabled bool) echo.MiddlewareFunc {
	if !enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Set(csrfKey, "")
				return next(c)
			}
		}
	}
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup: "header:X-CSRFToken,form:csrfmiddlewaretoken",
		ContextKey:  csrfKey,
		CookieName:  csrfCookie,
		CookiePath:  "/",
		ErrorHandler: func(err error, c echo.Context) error {
			message := "CSRF Failed: CSRF token missing or incorrect."
			var he *echo.HTTPError
			if errors.As(err, &he) {
				if m, ok := he.Message.(string); ok {
					message = "CSRF Failed: " + m
				}
			}
			return c.JSON(http.StatusForbidden, map[string]string{"detail": message})
		},
	})
}

func currentUser(c echo.Context) string {
	if user, ok := c.Get(userKey).(string); ok && user != "" {
		return user
	}
	return DevUser
}

func csrfToken(c echo.Context) string {
	token, _ := c.Get(csrfKey).(string)
	return token
}
