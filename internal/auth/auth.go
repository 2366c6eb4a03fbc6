package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidClaims = errors.New("invalid token claims")

type Authenticator interface {
	GenerateTokens(userID int64, userType string) (string, string, error)
	ValidateAccessToken(token string) (*jwt.Token, error)
	ValidateRefreshToken(token string) (*jwt.Token, error)
}

// Claims are the identity fields the API reads back from a validated token.
type Claims struct {
	UserID   int64
	UserType string
}

// ClaimsFromToken extracts sub and user_type. Refresh tokens carry no
// user_type, so it is optional.
func ClaimsFromToken(t *jwt.Token) (Claims, error) {
	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidClaims
	}
	// numeric claims decode as float64
	sub, ok := mc["sub"].(float64)
	if !ok || sub <= 0 {
		return Claims{}, ErrInvalidClaims
	}
	userType, _ := mc["user_type"].(string)
	return Claims{UserID: int64(sub), UserType: userType}, nil
}
