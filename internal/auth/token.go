package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taskcoin/backend/internal/models"
)

// Principal is the caller identity carried by a verified token.
type Principal struct {
	AccountID uuid.UUID   `json:"account_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name,omitempty"`
	Role      models.Role `json:"role"`
}

type claims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Name  string      `json:"name,omitempty"`
	Role  models.Role `json:"role"`
}

// Verifier checks HS256 tokens minted by the identity provider.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// IssueToken signs a token for p that expires after ttl. The server never
// issues tokens itself; tests and local tooling do.
func (v *Verifier) IssueToken(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.AccountID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// ValidateToken parses token and returns its principal. Every failure wraps
// models.ErrUnauthorized.
func (v *Verifier) ValidateToken(token string) (*Principal, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w: %w", models.ErrUnauthorized, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token: %w", models.ErrUnauthorized)
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("subject %q: %w", c.Subject, models.ErrUnauthorized)
	}
	if !c.Role.Valid() {
		return nil, fmt.Errorf("role %q: %w", c.Role, models.ErrUnauthorized)
	}
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return nil, fmt.Errorf("token carries no email: %w", models.ErrUnauthorized)
	}
	return &Principal{AccountID: id, Email: email, Name: c.Name, Role: c.Role}, nil
}
