package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleType set member role
type RoleType string

const (
	// RoleAdmin is the admin role
	RoleAdmin RoleType = "admin"
	// RoleMember is the member role
	RoleMember RoleType = "member"
	// RoleGuest is the guest role
	RoleGuest RoleType = "guest"
)

// Claims structure for custom claims in JWT
type Claims struct {
	MemberID string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Secret Key for JWT signing and validation
var (
	JWTSecret       = []byte("secure_secret_key")
	tokenExpiration = 60 * time.Minute
)

// Setup override secret and expiration from config, zero values keep the defaults
func Setup(secret string, ttl time.Duration) {
	if secret != "" {
		JWTSecret = []byte(secret)
	}
	if ttl > 0 {
		tokenExpiration = ttl
	}
}

// GenerateJWT generates a JWT token
func GenerateJWT(memberID, username, role, issuer string) (string, error) {
	now := time.Now()
	claims := Claims{
		MemberID: memberID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ParseJWT parses a JWT and extracts the Claims
func ParseJWT(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Check if the signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.MemberID == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}

// CheckJWTNotExpire check a "Bearer <token>" header is still valid
func CheckJWTNotExpire(t string) (bool, error) {
	if len(t) < 7 || t[:7] != "Bearer " {
		return false, errors.New("invalid or missing token")
	}

	claims, err := ParseJWT(t[7:])
	if err != nil {
		return false, err
	}

	tokenExpire, err := claims.GetExpirationTime()
	if err != nil || tokenExpire == nil {
		return false, nil
	}

	return tokenExpire.After(time.Now()), nil
}
