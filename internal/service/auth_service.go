package service

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/pkg/config"
)

// AuthService guards the command surface with a single admin login. The
// admin password comes from configuration, either as a bcrypt hash or,
// for local setups, in the clear.
type AuthService struct {
	cfg *config.Config
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// Claims represents JWT claims
type Claims struct {
	Subject string `json:"sub_name"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Login checks the admin password and returns a signed token.
func (s *AuthService) Login(password string) (string, error) {
	if s.cfg.AdminPassword == "" {
		return "", apperr.New(apperr.KindInternal, "no admin password configured")
	}

	if !s.checkPassword(password) {
		return "", apperr.New(apperr.KindValidation, "invalid credentials")
	}

	return s.GenerateToken("admin")
}

func (s *AuthService) checkPassword(password string) bool {
	stored := s.cfg.AdminPassword
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// GenerateToken generates a JWT token for the admin session
func (s *AuthService) GenerateToken(subject string) (string, error) {
	expirationTime := time.Now().Add(24 * time.Hour)

	claims := &Claims{
		Subject: subject,
		IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "craftd",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
