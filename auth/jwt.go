package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xraph/folio/id"
)

// TokenAuthenticator issues and verifies HMAC-signed bearer tokens.
type TokenAuthenticator struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// NewTokenAuthenticator creates an authenticator signing with key. A zero ttl
// defaults to 24 hours.
func NewTokenAuthenticator(key []byte, issuer string, ttl time.Duration) *TokenAuthenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenAuthenticator{key: key, issuer: issuer, ttl: ttl}
}

// Issue signs a token carrying the identity's id, name and roles.
func (a *TokenAuthenticator) Issue(identity *Identity) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":   identity.ID.String(),
		"name":  identity.Name,
		"roles": identity.Roles,
		"iss":   a.issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(a.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies a signed token and reconstructs the identity.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, credential string) (*Identity, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	userID, err := id.ParseUserID(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	identity := &Identity{ID: userID}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				identity.Roles = append(identity.Roles, role)
			}
		}
	}
	return identity, nil
}

var _ Authenticator = (*TokenAuthenticator)(nil)
