package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenTTL = 12 * time.Hour

// AdminService выдаёт JWT операторам по общему админ-ключу. В базе ключ не
// хранится — только bcrypt-хеш из конфигурации.
type AdminService struct {
	keyHash   string
	jwtSecret string
}

func NewAdminService(keyHash, jwtSecret string) *AdminService {
	return &AdminService{keyHash: keyHash, jwtSecret: jwtSecret}
}

// Login сверяет ключ с хешем и возвращает подписанный токен с ролью admin.
func (s *AdminService) Login(_ context.Context, key string) (string, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(s.keyHash), []byte(key)); err != nil {
		return "", ErrAdminInvalidKey
	}

	claims := jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(adminTokenTTL).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}
