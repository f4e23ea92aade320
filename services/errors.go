package services

import "errors"

// Общие ошибки бизнес-слоя, используемые в маппинге HTTP.
var (
	// Ошибки валидации входных данных
	ErrValidationFailed = errors.New("validation failed")
	ErrEmailRequired    = errors.New("payer email is required for a paid entry")

	// Исчерпанная ёмкость — нормальный исход, не сбой.
	ErrCapacityExhausted = errors.New("tournament capacity is exhausted")

	// Ошибки аутентификации административных операций
	ErrAdminInvalidKey = errors.New("invalid admin key")

	// Платёжные ошибки
	ErrNoBillingAccount = errors.New("user has no billing account at the gateway")
)
