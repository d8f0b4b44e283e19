package service

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/pkg/config"
)

func authService(adminPassword string) *AuthService {
	return NewAuthService(&config.Config{
		AdminPassword: adminPassword,
		JWTSecret:     "test-secret",
	})
}

func TestLoginWithPlainPassword(t *testing.T) {
	svc := authService("hunter2")

	token, err := svc.Login("hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "admin" || !claims.IsAdmin {
		t.Errorf("claims = %+v, want admin subject", claims)
	}
}

func TestLoginWithBcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	svc := authService(string(hash))

	if _, err := svc.Login("hunter2"); err != nil {
		t.Errorf("Login with correct password failed: %v", err)
	}
	if _, err := svc.Login("wrong"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Login with wrong password = %v, want Validation", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := authService("hunter2")

	_, err := svc.Login("hunter3")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("error = %v, want Validation", err)
	}
}

func TestLoginWithoutConfiguredPassword(t *testing.T) {
	svc := authService("")

	_, err := svc.Login("anything")
	if !apperr.Is(err, apperr.KindInternal) {
		t.Errorf("error = %v, want Internal", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := authService("x").GenerateToken("admin")
	if err != nil {
		t.Fatal(err)
	}

	other := NewAuthService(&config.Config{AdminPassword: "x", JWTSecret: "different"})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret was accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	if _, err := authService("x").ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token was accepted")
	}
}
