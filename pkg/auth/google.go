package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// IdentityVerifier turns a sign-in credential into a user
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*User, error)
}

// GoogleVerifier validates Google ID tokens issued for one OAuth client
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier creates a verifier for tokens whose audience is clientID
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

// Verify checks the token signature and audience and requires a verified email
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*User, error) {
	if v.clientID == "" {
		return nil, errors.New("GOOGLE_CLIENT_ID is not configured")
	}
	if credential == "" {
		return nil, errors.New("missing credential")
	}

	payload, err := v.validate(ctx, credential, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid Google credential: %w", err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, errors.New("Google credential has no email")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("Google email %s is not verified", email)
	}

	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)
	return &User{ID: payload.Subject, Email: email, Name: name, Picture: picture}, nil
}
