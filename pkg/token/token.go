package token

import (
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medlink_chat_service/pkg/errs"
)

// RoleType platform role carried in the token
type RoleType string

const (
	// RolePatient is the patient role
	RolePatient RoleType = "patient"
	// RoleDoctor is the doctor role
	RoleDoctor RoleType = "doctor"
	// RoleAdmin is the admin role
	RoleAdmin RoleType = "admin"
)

// Claims structure for custom claims in JWT
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTSecret signing key, overridable via JWT_SECRET.
var (
	JWTSecret       = secretFromEnv()
	tokenExpiration = 60 * time.Minute
)

func secretFromEnv() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("secure_secret_key")
}

// GenerateJWT generates a signed token for a platform user.
func GenerateJWT(userID, role, issuer string) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ParseJWT verifies a token string, with or without the "Bearer " prefix,
// and extracts the Claims.
func ParseJWT(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
	if tokenStr == "" {
		return nil, errs.Unauthenticated("missing token")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.Unauthenticated("unexpected signing method")
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, errs.Unauthenticated("%v", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errs.Unauthenticated("invalid token claims")
	}

	return claims, nil
}
