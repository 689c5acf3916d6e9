package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the capability tag gating portal views and actions
type Role string

const (
	// RoleNGO marks community/NGO submitters
	RoleNGO Role = "ngo"
	// RoleNCCR marks registry administrators
	RoleNCCR Role = "nccr"
)

// IsValid checks membership in the role set
func (r Role) IsValid() bool {
	return r == RoleNGO || r == RoleNCCR
}

// Identity is the authenticated user resolved for a request
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the identity may perform verification decisions
func (i Identity) IsAdmin() bool {
	return i.Role == RoleNCCR
}

// ErrInvalidToken is returned for malformed, expired, or mis-signed tokens
var ErrInvalidToken = errors.New("invalid session token")

type sessionClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and parses role-tagged session tokens
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a token manager with the given signing secret
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// IssueToken creates a signed session token for the identity
func (m *TokenManager) IssueToken(identity Identity) (string, error) {
	if identity.ID == "" {
		return "", fmt.Errorf("identity id is required")
	}
	if !identity.Role.IsValid() {
		return "", fmt.Errorf("unknown role %q", identity.Role)
	}

	now := time.Now()
	claims := sessionClaims{
		Name: identity.Name,
		Role: string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a session token and returns the identity it carries
func (m *TokenManager) ParseToken(tokenString string) (Identity, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		ID:   claims.Subject,
		Name: claims.Name,
		Role: Role(claims.Role),
	}
	if identity.ID == "" || !identity.Role.IsValid() {
		return Identity{}, ErrInvalidToken
	}
	return identity, nil
}
