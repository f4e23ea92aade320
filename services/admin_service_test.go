package services

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("league-master-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	svc := NewAdminService(string(hash), "jwt-secret")

	if _, err := svc.Login(context.Background(), "wrong-key"); !errors.Is(err, ErrAdminInvalidKey) {
		t.Fatalf("expected ErrAdminInvalidKey, got %v", err)
	}

	signed, err := svc.Login(context.Background(), "league-master-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) {
		return []byte("jwt-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token must verify with the configured secret: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["role"] != "admin" {
		t.Fatalf("expected admin role claim, got %v", claims["role"])
	}
}
