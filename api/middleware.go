package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xraph/subvault/auth"
)

// RequireBearer rejects requests without a bearer token and stores the raw
// token in the request context for the vault's Authorizer. Signature and
// subject checks happen there, per principal.
func RequireBearer() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token format")
			}

			ctx := auth.WithToken(c.Request().Context(), token)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
