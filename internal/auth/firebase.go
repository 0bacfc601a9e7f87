package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// RoleClaim is the custom claim carrying the user's role on Firebase tokens.
const RoleClaim = "role"

type FirebaseAuthenticator struct {
	client *fbauth.Client
}

func NewFirebaseAuthenticator(ctx context.Context, projectID, credentialsFile string) (*FirebaseAuthenticator, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase auth: %w", err)
	}
	return &FirebaseAuthenticator{client: client}, nil
}

func (a *FirebaseAuthenticator) CurrentUser(ctx context.Context, idToken string) (*User, error) {
	if idToken == "" {
		return nil, ErrMissingToken
	}
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return userFromFirebase(token), nil
}

func userFromFirebase(token *fbauth.Token) *User {
	u := &User{ID: token.UID, Role: RoleViewer}
	if email, ok := token.Claims["email"].(string); ok {
		u.Email = email
	}
	if role, ok := token.Claims[RoleClaim].(string); ok && Role(role).Valid() {
		u.Role = Role(role)
	}
	return u
}
