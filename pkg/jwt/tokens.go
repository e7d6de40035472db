package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	issuer        = "sitepress"
	editAudience  = "site-edit"
	defaultTTL    = 30 * 24 * time.Hour
	minSecretSize = 8
)

// ErrBusinessMismatch reports a valid token presented for another business.
var ErrBusinessMismatch = errors.New("token does not grant access to this business")

// Claims defines the edit token payload.
type Claims struct {
	BusinessID string `json:"business_id"`
	jwtlib.RegisteredClaims
}

// EditTokens issues and verifies per-business edit tokens.
type EditTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewEditTokens returns a signer using an HMAC secret.
func NewEditTokens(secret string, ttl time.Duration) (*EditTokens, error) {
	if len(secret) < minSecretSize {
		return nil, errors.New("edit token secret must be at least 8 characters")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &EditTokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token that authorizes edits of businessID.
func (e *EditTokens) Issue(businessID string) (string, error) {
	now := e.now()
	claims := Claims{
		BusinessID: businessID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   businessID,
			Audience:  jwtlib.ClaimStrings{editAudience},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(e.ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(e.secret)
}

// Verify checks token and that it was issued for businessID.
func (e *EditTokens) Verify(token, businessID string) error {
	claims, err := Parse(token, e.secret, e.now)
	if err != nil {
		return err
	}
	if claims.BusinessID != businessID {
		return ErrBusinessMismatch
	}
	return nil
}

// Parse validates and extracts claims from token.
func Parse(token string, secret []byte, now func() time.Time) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithAudience(editAudience),
		jwtlib.WithTimeFunc(now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
