package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/receptionist-billing/internal"
)

// Claims are the bearer token claims issued by the account service.
type Claims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// User converts claims into the caller identity used by the payment endpoints.
func (c *Claims) User() *internal.User {
	return &internal.User{
		ID:          c.UserID,
		Email:       c.Email,
		Permissions: c.Permissions,
	}
}

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// JWTValidator validates HS256 tokens signed with a shared secret. Token
// issuance lives in the account service; GenerateAccessToken exists for local
// tooling and tests.
type JWTValidator struct {
	Secret         []byte
	Issuer         string
	AccessTokenTTL time.Duration
}

func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{
		Secret:         []byte(secret),
		Issuer:         issuer,
		AccessTokenTTL: 15 * time.Minute,
	}
}

// ValidateToken parses tokenString and returns its claims. Expired tokens map
// to internal.ErrTokenExpired, everything else to internal.ErrInvalidToken.
func (j *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return j.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", internal.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

// GenerateAccessToken signs a token for userID.
func (j *JWTValidator) GenerateAccessToken(userID, email string, permissions []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID,
		Email:       email,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.AccessTokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
