package auth

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"datagate/internal/metadata"
)

// Claims represents the JWT claims. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Policies []string `json:"policies,omitempty"`
	Admin    bool     `json:"admin,omitempty"`
}

const AccessTokenTTL = 15 * time.Minute

// Accountability converts the claims into the caller identity used by
// permission checks.
func (c *Claims) Accountability() *metadata.Accountability {
	return &metadata.Accountability{
		User:     c.Subject,
		Role:     c.Role,
		Roles:    c.Roles,
		Policies: c.Policies,
		Admin:    c.Admin,
	}
}

// GenerateAccessToken creates a signed JWT for acc. A zero ttl uses
// AccessTokenTTL.
func GenerateAccessToken(acc *metadata.Accountability, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = AccessTokenTTL
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   acc.User,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     acc.Role,
		Roles:    acc.Roles,
		Policies: acc.Policies,
		Admin:    acc.Admin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign access token")
	}
	return signed, nil
}

// ParseAccessToken validates and parses a JWT, returning the claims.
func ParseAccessToken(tokenStr string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
