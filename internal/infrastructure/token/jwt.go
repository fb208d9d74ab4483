package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

// Manager signs and verifies the HS256 session tokens issued at login.
type Manager struct {
	secretKey []byte
	expiry    time.Duration
}

type Claims struct {
	Role     string `json:"role"`
	Approval string `json:"approval"`
	jwt.RegisteredClaims
}

func NewManager(secret string, expiry time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	return &Manager{secretKey: []byte(secret), expiry: expiry}, nil
}

func (m *Manager) Issue(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:     string(user.Role),
		Approval: string(user.Approval),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnauthorized, "verify token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("invalid token"))
	}
	return claims, nil
}
