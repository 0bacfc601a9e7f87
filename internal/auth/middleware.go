package auth

import (
	"strings"

	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
)

const userKey = "auth.user"

// UserFrom returns the user stored by RequireRole, nil on public routes.
func UserFrom(ctx *xhttp.RequestCtx) *User {
	u, _ := ctx.UserValue(userKey).(*User)
	return u
}

// RequireRole rejects requests without a valid bearer token (401) or whose
// role is not listed (403). An empty list accepts any signed-in user.
func RequireRole(a Authenticator, roles ...Role) func(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(next xhttp.RequestHandler) xhttp.RequestHandler {
		return func(ctx *xhttp.RequestCtx) {
			user, err := a.CurrentUser(ctx, bearer(ctx))
			if err != nil {
				xhttp.WriteError(ctx, xhttp.StatusUnauthorized, err.Error())
				return
			}
			if !allowed(user.Role, roles) {
				xhttp.WriteError(ctx, xhttp.StatusForbidden, ErrForbidden.Error())
				return
			}
			ctx.SetUserValue(userKey, user)
			next(ctx)
		}
	}
}

func bearer(ctx *xhttp.RequestCtx) string {
	h := string(ctx.Request.Header.Peek("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func allowed(role Role, roles []Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
