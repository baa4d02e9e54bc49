package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/clubpay-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// Keys signs and verifies staff access tokens with the shared HMAC secret.
// Tokens are minted by the club's staff portal; Mint exists for tooling and
// tests.
type Keys struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewKeys(cfg config.JWTConfig) *Keys {
	return &Keys{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
	}
}

func (k *Keys) usable() error {
	switch {
	case len(k.secret) == 0:
		return errors.New("jwt secret is required")
	case k.issuer == "":
		return errors.New("jwt issuer is required")
	}
	return nil
}

func (k *Keys) Mint(now time.Time, payload AccessTokenPayload) (string, error) {
	if err := k.usable(); err != nil {
		return "", err
	}
	if k.ttl <= 0 {
		return "", errors.New("jwt expiration must be positive")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid staff role %q", payload.Role)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Email:  strings.ToLower(strings.TrimSpace(payload.Email)),
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    k.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry, then that the role is one the
// admin API knows.
func (k *Keys) Verify(raw string) (*AccessTokenClaims, error) {
	if err := k.usable(); err != nil {
		return nil, err
	}
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return k.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(k.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("invalid staff role %q", claims.Role)
	}
	return claims, nil
}
