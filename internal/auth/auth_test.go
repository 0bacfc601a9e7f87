package auth

import (
	"context"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestJWTAuthenticator_RoundTrip(t *testing.T) {
	a, err := NewJWTAuthenticator("secret", "congregation-messenger")
	require.NoError(t, err)

	token, err := a.GenerateToken("u1", "sec@church.org", []string{"viewer", "secretary"}, time.Hour)
	require.NoError(t, err)

	user, err := a.CurrentUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "sec@church.org", user.Email)
	assert.Equal(t, RoleSecretary, user.Role)
	assert.True(t, user.Role.CanDispatch())
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a, err := NewJWTAuthenticator("secret", "congregation-messenger")
	require.NoError(t, err)

	_, err = a.CurrentUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)

	other, err := NewJWTAuthenticator("another-secret", "congregation-messenger")
	require.NoError(t, err)
	forged, err := other.GenerateToken("u1", "", []string{"admin"}, time.Hour)
	require.NoError(t, err)
	_, err = a.CurrentUser(context.Background(), forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := a.GenerateToken("u1", "", []string{"admin"}, -time.Minute)
	require.NoError(t, err)
	_, err = a.CurrentUser(context.Background(), expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewJWTAuthenticator("secret", "someone-else")
	require.NoError(t, err)
	wrongIssuer, err := foreign.GenerateToken("u1", "", nil, time.Hour)
	require.NoError(t, err)
	_, err = a.CurrentUser(context.Background(), wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTAuthenticator("", "x")
	assert.Error(t, err)
}

func TestRoleOf(t *testing.T) {
	assert.Equal(t, RoleViewer, roleOf(nil))
	assert.Equal(t, RoleViewer, roleOf([]string{"pastor"}))
	assert.Equal(t, RoleSecretary, roleOf([]string{"secretary", "viewer"}))
	assert.Equal(t, RoleAdmin, roleOf([]string{"secretary", "admin"}))
	assert.False(t, RoleViewer.CanDispatch())
}

func TestUserFromFirebase(t *testing.T) {
	u := userFromFirebase(&fbauth.Token{UID: "fb-1", Claims: map[string]interface{}{"email": "a@b.c", "role": "admin"}})
	assert.Equal(t, &User{ID: "fb-1", Email: "a@b.c", Role: RoleAdmin}, u)

	u = userFromFirebase(&fbauth.Token{UID: "fb-2", Claims: map[string]interface{}{"role": "bishop"}})
	assert.Equal(t, RoleViewer, u.Role)
}

func TestRequireRole(t *testing.T) {
	a, err := NewJWTAuthenticator("secret", "")
	require.NoError(t, err)
	viewer, _ := a.GenerateToken("v", "", []string{"viewer"}, time.Hour)
	admin, _ := a.GenerateToken("a", "", []string{"admin"}, time.Hour)

	var seen *User
	handler := RequireRole(a, RoleAdmin, RoleSecretary)(func(ctx *xhttp.RequestCtx) {
		seen = UserFrom(ctx)
		ctx.SetStatusCode(xhttp.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no token", "", xhttp.StatusUnauthorized},
		{"garbage", "Bearer nope", xhttp.StatusUnauthorized},
		{"viewer", "Bearer " + viewer, xhttp.StatusForbidden},
		{"admin", "bearer " + admin, xhttp.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			if tt.header != "" {
				ctx.Request.Header.Set("Authorization", tt.header)
			}
			handler(ctx)
			assert.Equal(t, tt.status, ctx.Response.StatusCode())
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "a", seen.ID)
}
