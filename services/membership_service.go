package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/league-reservations/models"
	"github.com/Dosada05/league-reservations/payments"
	"github.com/Dosada05/league-reservations/repositories"
)

// MembershipService отвечает за чтение статуса членства и сессии шлюза для
// оформления подписки. Само состояние подписки меняется только событиями
// шлюза через ReconciliationService — здесь записей нет.
type MembershipService struct {
	membershipRepo repositories.MembershipRepository
	gateway        payments.Gateway
	logger         *slog.Logger
}

func NewMembershipService(membershipRepo repositories.MembershipRepository, gateway payments.Gateway, logger *slog.Logger) *MembershipService {
	return &MembershipService{
		membershipRepo: membershipRepo,
		gateway:        gateway,
		logger:         logger,
	}
}

// Status возвращает членство пользователя. Отсутствие записи — не ошибка:
// пользователь просто не-член.
func (s *MembershipService) Status(ctx context.Context, userID int) (*models.MembershipStatus, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrValidationFailed)
	}

	m, err := s.membershipRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMembershipNotFound) {
			return &models.MembershipStatus{UserID: userID, Status: models.MembershipCanceled}, nil
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return m, nil
}

type SubscribeInput struct {
	UserID     int    `json:"user_id"`
	Email      string `json:"email"`
	PriceRef   string `json:"price_ref"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// SubscribeCheckout создаёт сессию оформления подписки. Членство появится
// в базе после события subscription.created.
func (s *MembershipService) SubscribeCheckout(ctx context.Context, input SubscribeInput) (*payments.CheckoutSession, error) {
	if input.UserID <= 0 || input.PriceRef == "" {
		return nil, fmt.Errorf("%w: user id and price ref are required", ErrValidationFailed)
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	session, err := s.gateway.CreateSubscriptionCheckout(ctx, payments.SubscriptionParams{
		PriceRef:   input.PriceRef,
		PayerEmail: email,
		UserID:     input.UserID,
		SuccessURL: input.SuccessURL,
		CancelURL:  input.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription checkout: %w", err)
	}

	s.logger.Info("subscription checkout created",
		slog.Int("user_id", input.UserID),
		slog.String("session_id", session.SessionID),
	)
	return session, nil
}

// BillingPortal возвращает URL портала самообслуживания шлюза. Работает
// только для пользователей, у которых уже есть customer-ссылка.
func (s *MembershipService) BillingPortal(ctx context.Context, userID int) (string, error) {
	m, err := s.membershipRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMembershipNotFound) {
			return "", ErrNoBillingAccount
		}
		return "", fmt.Errorf("failed to load membership: %w", err)
	}
	if m.GatewayCustomerRef == nil || *m.GatewayCustomerRef == "" {
		return "", ErrNoBillingAccount
	}

	url, err := s.gateway.CreateBillingPortalSession(ctx, *m.GatewayCustomerRef)
	if err != nil {
		return "", fmt.Errorf("failed to create billing portal session: %w", err)
	}
	return url, nil
}
