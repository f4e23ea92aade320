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
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Исходы цикла продвижения.
const (
	PromotionStillFull = "still_full"
	PromotionEmpty     = "empty"
	PromotionComped    = "comped"
	PromotionOffered   = "offered"
)

const sweepConcurrency = 4

type PromotionResult struct {
	Outcome  string              `json:"outcome"`
	Row      *models.WaitlistRow `json:"row,omitempty"`
	OfferURL string              `json:"offer_url,omitempty"`
}

type PromotionConfig struct {
	OfferTTL   time.Duration
	Pricing    FeePricing
	SuccessURL string
	CancelURL  string
}

// PromotionService продвигает лист ожидания: освободившийся слот либо сразу
// отдаётся бесплатному тиру, либо превращается в оффер с ограниченным сроком.
// Истечение офферов проверяется лениво при очередном цикле — фонового таймера
// на каждый оффер нет; просроченный неконвертированный оффер переизбирается
// следующим циклом и никогда не теряется молча.
type PromotionService struct {
	waitlistRepo   repositories.WaitlistRepository
	entryRepo      repositories.EntryRepository
	tournamentRepo repositories.TournamentRepository
	membershipRepo repositories.MembershipRepository
	hallRepo       repositories.HallRepository
	gateway        payments.Gateway
	locks          *TournamentLocks
	hub            *live.Hub
	logger         *slog.Logger
	cfg            PromotionConfig

	now func() time.Time
}

func NewPromotionService(
	waitlistRepo repositories.WaitlistRepository,
	entryRepo repositories.EntryRepository,
	tournamentRepo repositories.TournamentRepository,
	membershipRepo repositories.MembershipRepository,
	hallRepo repositories.HallRepository,
	gateway payments.Gateway,
	locks *TournamentLocks,
	hub *live.Hub,
	logger *slog.Logger,
	cfg PromotionConfig,
) *PromotionService {
	return &PromotionService{
		waitlistRepo:   waitlistRepo,
		entryRepo:      entryRepo,
		tournamentRepo: tournamentRepo,
		membershipRepo: membershipRepo,
		hallRepo:       hallRepo,
		gateway:        gateway,
		locks:          locks,
		hub:            hub,
		logger:         logger,
		cfg:            cfg,
		now:            time.Now,
	}
}

// Enqueue ставит пользователя в конец очереди. Повторная постановка при живой
// строке — no-op.
func (s *PromotionService) Enqueue(ctx context.Context, tournamentID, userID int, email string) (bool, error) {
	if tournamentID <= 0 || userID <= 0 {
		return false, fmt.Errorf("%w: tournament_id and user_id are required", ErrValidationFailed)
	}
	row := &models.WaitlistRow{TournamentID: tournamentID, UserID: userID, Email: email}
	return s.waitlistRepo.Enqueue(ctx, row)
}

// PromoteNext выполняет один цикл продвижения для турнира. Вызывается при
// освобождении слота (отмена, возврат, истёкшая сессия) и из периодической
// развёртки.
func (s *PromotionService) PromoteNext(ctx context.Context, tournamentID int) (*PromotionResult, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	for {
		result, done, err := s.promoteOnce(ctx, tournament)
		if err != nil {
			return nil, err
		}
		if done {
			metrics.PromotionsTotal.WithLabelValues(result.Outcome).Inc()
			return result, nil
		}
		// Кандидат был пропущен (например, уже записан напрямую) — берём
		// следующего по FIFO.
	}
}

func (s *PromotionService) promoteOnce(ctx context.Context, t *models.Tournament) (*PromotionResult, bool, error) {
	now := s.now()

	unlock := s.locks.Lock(t.ID)
	held, err := s.heldCapacity(ctx, t.ID, now)
	if err != nil {
		unlock()
		return nil, false, err
	}
	if held >= t.MaxSlots {
		unlock()
		return &PromotionResult{Outcome: PromotionStillFull}, true, nil
	}

	candidate, err := s.waitlistRepo.NextCandidate(ctx, t.ID, now)
	if err != nil {
		unlock()
		if errors.Is(err, repositories.ErrWaitlistEmpty) {
			return &PromotionResult{Outcome: PromotionEmpty}, true, nil
		}
		return nil, false, fmt.Errorf("failed to pick waitlist candidate: %w", err)
	}

	fee, membership, err := resolveFee(ctx, s.membershipRepo, s.hallRepo, s.cfg.Pricing, t, candidate.UserID)
	if err != nil {
		unlock()
		return nil, false, err
	}

	if fee == 0 {
		result, done, err := s.convertComped(ctx, t, candidate)
		unlock()
		return result, done, err
	}

	// Платный оффер: сессия создаётся вне замка.
	unlock()
	return s.makeOffer(ctx, t, candidate, membership, fee, now)
}

// heldCapacity считает занятую ёмкость турнира: активные записи плюс живые
// офферы. Неистёкший оффер удерживает свой слот, иначе два цикла продвижения
// подряд выставили бы два оффера на один слот и при оплате обоих второй
// платёж пришлось бы возвращать вручную.
func (s *PromotionService) heldCapacity(ctx context.Context, tournamentID int, now time.Time) (int, error) {
	active, err := s.entryRepo.CountActive(ctx, tournamentID)
	if err != nil {
		return 0, fmt.Errorf("failed to count active entries: %w", err)
	}
	liveOffers, err := s.waitlistRepo.CountLiveOffers(ctx, tournamentID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to count live offers: %w", err)
	}
	return active + liveOffers, nil
}

// convertComped занимает слот бесплатного тира прямо под замком. Второй
// результат — done: false означает «кандидат пропущен, взять следующего».
func (s *PromotionService) convertComped(ctx context.Context, t *models.Tournament, candidate *models.WaitlistRow) (*PromotionResult, bool, error) {
	entry := &models.Entry{
		TournamentID: t.ID,
		UserID:       candidate.UserID,
		AmountCents:  0,
		Status:       models.EntryStatusComped,
	}
	res, err := s.entryRepo.ReserveSlot(ctx, entry)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryConflict) {
			// Пользователь уже записался напрямую; строка закрывается,
			// очередь двигается дальше.
			if cancelErr := s.waitlistRepo.MarkConverted(ctx, candidate.ID); cancelErr != nil {
				return nil, false, fmt.Errorf("failed to close superseded waitlist row: %w", cancelErr)
			}
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to reserve comped slot for waitlist row %d: %w", candidate.ID, err)
	}
	if !res.Created {
		return &PromotionResult{Outcome: PromotionStillFull}, true, nil
	}

	if err := s.waitlistRepo.MarkConverted(ctx, candidate.ID); err != nil {
		return nil, false, fmt.Errorf("failed to mark waitlist row %d converted: %w", candidate.ID, err)
	}
	candidate.Status = models.WaitlistStatusConverted

	s.hub.Publish(t.ID, live.EventOfferConverted, candidate)
	if res.NowFull {
		s.hub.Publish(t.ID, live.EventTournamentClosed, nil)
	}
	return &PromotionResult{Outcome: PromotionComped, Row: candidate}, true, nil
}

func (s *PromotionService) makeOffer(
	ctx context.Context,
	t *models.Tournament,
	candidate *models.WaitlistRow,
	membership *models.MembershipStatus,
	fee int,
	now time.Time,
) (*PromotionResult, bool, error) {
	email := candidate.Email
	if email == "" && membership != nil {
		email = membership.Email
	}
	if email == "" {
		// Без контакта оффер не выставить; строка закрывается, чтобы не
		// блокировать очередь, и это логируется.
		s.logger.Warn("waitlist row has no contact email, canceling",
			slog.Int("tournament_id", t.ID),
			slog.Int("user_id", candidate.UserID),
		)
		if _, err := s.waitlistRepo.Cancel(ctx, t.ID, candidate.UserID); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	offerRef := uuid.NewString()
	start := time.Now()
	session, err := s.gateway.CreateOneOffCheckout(ctx, payments.CheckoutParams{
		AmountCents:  fee,
		PayerEmail:   email,
		SuccessURL:   s.cfg.SuccessURL,
		CancelURL:    s.cfg.CancelURL,
		Purpose:      payments.PurposeWaitlistOffer,
		TournamentID: t.ID,
		UserID:       candidate.UserID,
		OfferRef:     offerRef,
	})
	metrics.GatewayCallDuration.WithLabelValues("create_offer").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, false, err
	}

	expiresAt := now.Add(s.cfg.OfferTTL)

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	// Слот мог уйти, пока создавалась сессия: оффер тогда не выставляется,
	// строка остаётся в очереди, сессия истечёт сама.
	held, err := s.heldCapacity(ctx, t.ID, now)
	if err != nil {
		return nil, false, err
	}
	if held >= t.MaxSlots {
		return &PromotionResult{Outcome: PromotionStillFull}, true, nil
	}

	if err := s.waitlistRepo.MarkOffered(ctx, candidate.ID, offerRef, session.RedirectURL, expiresAt); err != nil {
		return nil, false, fmt.Errorf("failed to mark waitlist row %d offered: %w", candidate.ID, err)
	}
	// Турнир открывается, чтобы оффер был исполним.
	if err := s.tournamentRepo.SetOpen(ctx, nil, t.ID, true); err != nil {
		return nil, false, fmt.Errorf("failed to reopen tournament %d: %w", t.ID, err)
	}

	candidate.Status = models.WaitlistStatusOffered
	candidate.OfferURL = strPtr(session.RedirectURL)
	candidate.OfferReference = strPtr(offerRef)
	candidate.OfferExpiresAt = &expiresAt

	s.hub.Publish(t.ID, live.EventOfferCreated, candidate)
	s.hub.Publish(t.ID, live.EventTournamentReopened, nil)
	return &PromotionResult{Outcome: PromotionOffered, Row: candidate, OfferURL: session.RedirectURL}, true, nil
}

// SweepOnce — одна итерация периодической развёртки: для каждого турнира с
// ожидающими строками или просроченными офферами выполняются циклы
// продвижения, пока освобождённая ёмкость не будет раздана. Турниры
// обрабатываются параллельно: между собой они независимы.
func (s *PromotionService) SweepOnce(ctx context.Context) error {
	ids, err := s.tournamentRepo.ListNeedingPromotion(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list tournaments for promotion sweep: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			for {
				result, err := s.PromoteNext(gctx, id)
				if err != nil {
					s.logger.Error("promotion sweep failed for tournament",
						slog.Int("tournament_id", id),
						slog.Any("error", err),
					)
					return nil // одна ошибка не останавливает развёртку
				}
				// Comped-конверсия могла оставить свободную ёмкость — цикл
				// продолжается, пока очередь и слоты не исчерпаны.
				if result.Outcome != PromotionComped {
					return nil
				}
			}
		})
	}
	return g.Wait()
}
