package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgrijalva/jwt-go"
)

// PushClaims are carried by the bearer token on sync push requests.
type PushClaims struct {
	CompanyCode string `json:"company_code,omitempty"`
	jwt.StandardClaims
}

// JwtValidate parses an HS256 token signed with secret.
func JwtValidate(token string, secret []byte) (*PushClaims, error) {
	if len(secret) == 0 {
		return nil, errors.New("push secret is empty")
	}
	claims := &PushClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
