package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service issues and validates the bearer tokens SMS forwarders send.
type Service struct {
	tokenGenerator TokenGenerator
	defaultTTL     time.Duration
}

func NewService(tokenGen TokenGenerator, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Service{
		tokenGenerator: tokenGen,
		defaultTTL:     defaultTTL,
	}
}

// NewJWTTokenGenerator creates a new HS256 token generator
func NewJWTTokenGenerator(secret string, accessTTL time.Duration) *JWTTokenGenerator {
	return &JWTTokenGenerator{
		Secret:         []byte(secret),
		AccessTokenTTL: accessTTL,
	}
}

// IssueDeviceToken mints a token for one user. A zero ttl uses the configured
// access token duration.
func (s *Service) IssueDeviceToken(userID, email string, ttl time.Duration) (DeviceToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return DeviceToken{}, ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	token, err := s.tokenGenerator.GenerateAccessToken(userID, email, ttl)
	if err != nil {
		return DeviceToken{}, err
	}

	return DeviceToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
	}, nil
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.tokenGenerator.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Identity() == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(userID, email string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = j.AccessTokenTTL
	}
	now := time.Now()

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Check signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
