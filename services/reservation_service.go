package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/league-reservations/live"
	"github.com/Dosada05/league-reservations/metrics"
	"github.com/Dosada05/league-reservations/models"
	"github.com/Dosada05/league-reservations/payments"
	"github.com/Dosada05/league-reservations/repositories"
)

// Исходы попытки резервирования.
const (
	ReservationAlreadyRegistered = "already_registered"
	ReservationComped            = "comped"
	ReservationCheckout          = "checkout"
	ReservationWaitlisted        = "waitlisted"
)

type ReserveInput struct {
	TournamentID       int    `json:"tournament_id"`
	UserID             int    `json:"user_id"`
	PayerEmail         string `json:"payer_email"`
	JoinWaitlistIfFull bool   `json:"join_waitlist_if_full"`
}

type ReservationResult struct {
	Status      string        `json:"status"`
	Entry       *models.Entry `json:"entry,omitempty"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

type ReservationConfig struct {
	DefaultMaxSlots int
	Pricing         FeePricing
	SuccessURL      string
	CancelURL       string
}

// ReservationService реализует проверку и занятие слотов: ёмкость, взнос,
// checkout-сессия шлюза для платного входа, постановка в лист ожидания.
type ReservationService struct {
	entryRepo      repositories.EntryRepository
	tournamentRepo repositories.TournamentRepository
	waitlistRepo   repositories.WaitlistRepository
	membershipRepo repositories.MembershipRepository
	hallRepo       repositories.HallRepository
	gateway        payments.Gateway
	locks          *TournamentLocks
	hub            *live.Hub
	logger         *slog.Logger
	cfg            ReservationConfig
}

func NewReservationService(
	entryRepo repositories.EntryRepository,
	tournamentRepo repositories.TournamentRepository,
	waitlistRepo repositories.WaitlistRepository,
	membershipRepo repositories.MembershipRepository,
	hallRepo repositories.HallRepository,
	gateway payments.Gateway,
	locks *TournamentLocks,
	hub *live.Hub,
	logger *slog.Logger,
	cfg ReservationConfig,
) *ReservationService {
	return &ReservationService{
		entryRepo:      entryRepo,
		tournamentRepo: tournamentRepo,
		waitlistRepo:   waitlistRepo,
		membershipRepo: membershipRepo,
		hallRepo:       hallRepo,
		gateway:        gateway,
		locks:          locks,
		hub:            hub,
		logger:         logger,
		cfg:            cfg,
	}
}

// AttemptReserve — единая точка входа для заявки на участие.
//
// Последовательность подобрана так, чтобы замок турнира никогда не держался
// поверх вызова шлюза: для платного входа сессия создаётся между проверкой
// ёмкости и условной вставкой записи. Если слот ушёл за это время, сессия
// просто истечёт на стороне шлюза — запись для неё не создаётся.
func (s *ReservationService) AttemptReserve(ctx context.Context, input ReserveInput) (*ReservationResult, error) {
	if input.TournamentID <= 0 || input.UserID <= 0 {
		return nil, fmt.Errorf("%w: tournament_id and user_id are required", ErrValidationFailed)
	}

	tournament, err := s.tournamentRepo.GetOrCreate(ctx, input.TournamentID, s.cfg.DefaultMaxSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to load tournament %d: %w", input.TournamentID, err)
	}

	// Повторная заявка возвращает существующую запись без дублирования.
	existing, err := s.entryRepo.FindByTournamentAndUser(ctx, input.TournamentID, input.UserID)
	if err != nil && !errors.Is(err, repositories.ErrEntryNotFound) {
		return nil, fmt.Errorf("failed to check existing entry: %w", err)
	}
	if existing != nil && existing.HoldsSlot() {
		metrics.ReservationsTotal.WithLabelValues(ReservationAlreadyRegistered).Inc()
		return &ReservationResult{Status: ReservationAlreadyRegistered, Entry: existing}, nil
	}

	fee, membership, err := resolveFee(ctx, s.membershipRepo, s.hallRepo, s.cfg.Pricing, tournament, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fee: %w", err)
	}

	if fee == 0 {
		return s.reserveComped(ctx, tournament, input)
	}
	return s.reservePaid(ctx, tournament, input, membership, fee)
}

func (s *ReservationService) reserveComped(ctx context.Context, t *models.Tournament, input ReserveInput) (*ReservationResult, error) {
	entry := &models.Entry{
		TournamentID: t.ID,
		UserID:       input.UserID,
		AmountCents:  0,
		Status:       models.EntryStatusComped,
	}

	unlock := s.locks.Lock(t.ID)
	res, err := s.entryRepo.ReserveSlot(ctx, entry)
	unlock()
	if err != nil {
		if errors.Is(err, repositories.ErrEntryConflict) {
			// Конкурентная заявка того же пользователя успела раньше.
			return s.returnExisting(ctx, t.ID, input.UserID)
		}
		return nil, fmt.Errorf("failed to reserve comped slot: %w", err)
	}
	if !res.Created {
		return s.handleFull(ctx, t.ID, input)
	}

	s.hub.Publish(t.ID, live.EventEntryCreated, entry)
	if res.NowFull {
		s.hub.Publish(t.ID, live.EventTournamentClosed, nil)
	}
	metrics.ReservationsTotal.WithLabelValues(ReservationComped).Inc()
	return &ReservationResult{Status: ReservationComped, Entry: entry}, nil
}

func (s *ReservationService) reservePaid(
	ctx context.Context,
	t *models.Tournament,
	input ReserveInput,
	membership *models.MembershipStatus,
	fee int,
) (*ReservationResult, error) {
	// Предварительная проверка без замка: не создаём платёжных сессий для
	// заведомо заполненного турнира.
	active, err := s.entryRepo.CountActive(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active entries: %w", err)
	}
	if active >= t.MaxSlots {
		return s.handleFull(ctx, t.ID, input)
	}

	email := input.PayerEmail
	if email == "" && membership != nil {
		email = membership.Email
	}
	if email == "" {
		return nil, ErrEmailRequired
	}

	start := time.Now()
	session, err := s.gateway.CreateOneOffCheckout(ctx, payments.CheckoutParams{
		AmountCents:  fee,
		PayerEmail:   email,
		SuccessURL:   s.cfg.SuccessURL,
		CancelURL:    s.cfg.CancelURL,
		Purpose:      payments.PurposeEntry,
		TournamentID: t.ID,
		UserID:       input.UserID,
	})
	metrics.GatewayCallDuration.WithLabelValues("create_checkout").Observe(time.Since(start).Seconds())
	if err != nil {
		// Запись не создаётся, пока шлюз не подтвердил сессию: недодать
		// слот безопаснее, чем продать его дважды.
		return nil, err
	}

	entry := &models.Entry{
		TournamentID:     t.ID,
		UserID:           input.UserID,
		AmountCents:      fee,
		Status:           models.EntryStatusPending,
		PaymentReference: strPtr(session.SessionID),
	}

	unlock := s.locks.Lock(t.ID)
	res, err := s.entryRepo.ReserveSlot(ctx, entry)
	unlock()
	if err != nil {
		if errors.Is(err, repositories.ErrEntryConflict) {
			return s.returnExisting(ctx, t.ID, input.UserID)
		}
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}
	if !res.Created {
		// Слот заняли между созданием сессии и вставкой; сессия останется
		// бесхозной и истечёт на стороне шлюза.
		s.logger.Info("checkout session orphaned by capacity race",
			slog.Int("tournament_id", t.ID),
			slog.Int("user_id", input.UserID),
			slog.String("session_id", session.SessionID),
		)
		return s.handleFull(ctx, t.ID, input)
	}

	s.hub.Publish(t.ID, live.EventEntryCreated, entry)
	if res.NowFull {
		s.hub.Publish(t.ID, live.EventTournamentClosed, nil)
	}
	metrics.ReservationsTotal.WithLabelValues(ReservationCheckout).Inc()
	return &ReservationResult{Status: ReservationCheckout, Entry: entry, CheckoutURL: session.RedirectURL}, nil
}

func (s *ReservationService) handleFull(ctx context.Context, tournamentID int, input ReserveInput) (*ReservationResult, error) {
	if !input.JoinWaitlistIfFull {
		metrics.ReservationsTotal.WithLabelValues("capacity_full").Inc()
		return nil, ErrCapacityExhausted
	}

	row := &models.WaitlistRow{
		TournamentID: tournamentID,
		UserID:       input.UserID,
		Email:        input.PayerEmail,
	}
	created, err := s.waitlistRepo.Enqueue(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue waitlist row: %w", err)
	}
	if !created {
		s.logger.Info("user already waitlisted",
			slog.Int("tournament_id", tournamentID),
			slog.Int("user_id", input.UserID),
		)
	}
	metrics.ReservationsTotal.WithLabelValues(ReservationWaitlisted).Inc()
	return &ReservationResult{Status: ReservationWaitlisted}, nil
}

func (s *ReservationService) returnExisting(ctx context.Context, tournamentID, userID int) (*ReservationResult, error) {
	entry, err := s.entryRepo.FindByTournamentAndUser(ctx, tournamentID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflicting entry: %w", err)
	}
	metrics.ReservationsTotal.WithLabelValues(ReservationAlreadyRegistered).Inc()
	return &ReservationResult{Status: ReservationAlreadyRegistered, Entry: entry}, nil
}
