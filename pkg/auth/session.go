package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const sessionIssuer = "tcmclinic"

// User is a signed-in staff member
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"image,omitempty"`
}

// SessionClaims are the claims carried by a session token
type SessionClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// User returns the user the claims describe
func (c *SessionClaims) User() *User {
	return &User{ID: c.Subject, Email: c.Email, Name: c.Name, Picture: c.Picture}
}

// SessionManager issues and verifies HS256 session tokens
type SessionManager struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionManager derives the signing key from secret. maxAge defaults to 24h.
func NewSessionManager(secret string, maxAge time.Duration) (*SessionManager, error) {
	if secret == "" {
		return nil, errors.New("session secret cannot be empty")
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte("tcmclinic-session-v1"))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}

	return &SessionManager{key: key, maxAge: maxAge, now: time.Now}, nil
}

// MaxAge is the lifetime of issued tokens
func (m *SessionManager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue signs a session token for user and returns it with its expiry
func (m *SessionManager) Issue(user *User) (string, time.Time, error) {
	if user == nil || user.Email == "" {
		return "", time.Time{}, errors.New("cannot issue a session without an email")
	}

	now := m.now()
	expires := now.Add(m.maxAge)
	claims := SessionClaims{
		Email:   user.Email,
		Name:    user.Name,
		Picture: user.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, expires, nil
}

// Verify parses tokenString and checks signature, issuer and expiry
func (m *SessionManager) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return m.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("invalid session: missing email")
	}
	return claims, nil
}

// ExtractToken extracts the token from an Authorization header value ("Bearer <token>")
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}
