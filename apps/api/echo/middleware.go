package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core/user"
)

// adminMiddleware checks the roles of the user loaded by activeUserMiddleware, not the
// token claims, so a demoted admin loses access right away.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, ok := ctx.Get(contextUserKey).(user.User)
			if !ok {
				return errors.Wrap(errUnauthorized, "no active user in context")
			}
			if usr.IsAdmin() && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

const (
	cacheHeader = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
)

func setCacheHeader(ctx echo.Context, cached bool) {
	val := cacheMiss
	if cached {
		val = cacheHit
	}
	ctx.Response().Header().Set(cacheHeader, val)
}
