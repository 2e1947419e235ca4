package middleware

import (
	"mfaguard/internal/service"

	"github.com/labstack/echo/v4"
)

const contextIdentityKey = "auth_identity"

func SetIdentity(c echo.Context, identity service.UserIdentity) {
	c.Set(contextIdentityKey, identity)
}

func IdentityFromContext(c echo.Context) (service.UserIdentity, bool) {
	value := c.Get(contextIdentityKey)
	identity, ok := value.(service.UserIdentity)
	return identity, ok
}
