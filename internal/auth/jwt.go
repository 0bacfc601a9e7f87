package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims are the HS256 token claims issued to dashboard users.
type Claims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewJWTAuthenticator(signingKey, issuer string) (*JWTAuthenticator, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("jwt signing key is empty")
	}
	return &JWTAuthenticator{signingKey: []byte(signingKey), issuer: issuer, now: time.Now}, nil
}

func (a *JWTAuthenticator) GenerateToken(userID, email string, roles []string, expiresIn time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
}

func (a *JWTAuthenticator) CurrentUser(_ context.Context, tokenString string) (*User, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	return &User{ID: claims.UserID, Email: claims.Email, Role: roleOf(claims.Roles)}, nil
}
