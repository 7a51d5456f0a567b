// Package auth provides authentication utilities for the dashboard backend.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims carried by staff tokens
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"user_id"`
	Name         string `json:"name,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	Role         string `json:"role,omitempty"`
	Admin        bool   `json:"admin,omitempty"`
}

// JWTManager manages JWT token operations
type JWTManager struct {
	secret        []byte
	issuer        string
	defaultExpiry time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret, issuer string, defaultExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		issuer:        issuer,
		defaultExpiry: defaultExpiry,
	}
}

// GenerateToken generates a JWT token for a staff member
func (m *JWTManager) GenerateToken(userID, name, departmentID, role string, admin bool, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = m.defaultExpiry
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		UserID:       userID,
		Name:         name,
		DepartmentID: departmentID,
		Role:         role,
		Admin:        admin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// RefreshToken refreshes a token with a new expiry
func (m *JWTManager) RefreshToken(tokenString string, expiry time.Duration) (string, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	if expiry == 0 {
		expiry = m.defaultExpiry
	}

	now := time.Now()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	claims.IssuedAt = jwt.NewNumericDate(now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}
