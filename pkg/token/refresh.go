package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshAudience audience of refresh tokens, access token parsing never accepts them
const RefreshAudience = "refresh"

var refreshExpiration = 7 * 24 * time.Hour

// SetupRefresh override refresh token lifetime, zero keeps the default
func SetupRefresh(ttl time.Duration) {
	if ttl > 0 {
		refreshExpiration = ttl
	}
}

// RefreshTTL current refresh token lifetime
func RefreshTTL() time.Duration {
	return refreshExpiration
}

// GenerateRefreshToken signed refresh token, subject is the member and jti the session id
func GenerateRefreshToken(memberID, tokenID, issuer string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(refreshExpiration)
	claims := jwt.RegisteredClaims{
		Subject:   memberID,
		ID:        tokenID,
		Audience:  jwt.ClaimStrings{RefreshAudience},
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(JWTSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseRefreshToken verify signature, expiry and audience of a refresh token
func ParseRefreshToken(tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return JWTSecret, nil
	}, jwt.WithAudience(RefreshAudience))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("invalid refresh token")
	}
	return claims, nil
}
