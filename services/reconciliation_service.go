package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/league-reservations/live"
	"github.com/Dosada05/league-reservations/metrics"
	"github.com/Dosada05/league-reservations/models"
	"github.com/Dosada05/league-reservations/payments"
	"github.com/Dosada05/league-reservations/repositories"
)

// ReconciliationService применяет события платёжного шлюза к локальному
// состоянию. Доставка at-least-once: события могут дублироваться и приходить
// не по порядку, но эффекты применяются ровно один раз — дедупликация по
// идентификатору события плюс монотонные переходы статусов.
//
// Событие, ссылающееся на отсутствующую или уже терминальную запись, — это
// логируемый no-op с подтверждением, чтобы «ядовитое» событие не зациклило
// ретраи шлюза. Ошибка хранилища, напротив, возвращается наверх: обработчик
// ответит 5xx, и шлюз повторит доставку позже.
type ReconciliationService struct {
	entryRepo      repositories.EntryRepository
	waitlistRepo   repositories.WaitlistRepository
	tournamentRepo repositories.TournamentRepository
	membershipRepo repositories.MembershipRepository
	eventRepo      repositories.WebhookEventRepository
	promotion      *PromotionService
	locks          *TournamentLocks
	hub            *live.Hub
	logger         *slog.Logger
}

func NewReconciliationService(
	entryRepo repositories.EntryRepository,
	waitlistRepo repositories.WaitlistRepository,
	tournamentRepo repositories.TournamentRepository,
	membershipRepo repositories.MembershipRepository,
	eventRepo repositories.WebhookEventRepository,
	promotion *PromotionService,
	locks *TournamentLocks,
	hub *live.Hub,
	logger *slog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		entryRepo:      entryRepo,
		waitlistRepo:   waitlistRepo,
		tournamentRepo: tournamentRepo,
		membershipRepo: membershipRepo,
		eventRepo:      eventRepo,
		promotion:      promotion,
		locks:          locks,
		hub:            hub,
		logger:         logger,
	}
}

// HandleEvent применяет одно проверенное (подпись уже сверена) событие.
func (s *ReconciliationService) HandleEvent(ctx context.Context, evt *payments.Event) error {
	seen, err := s.eventRepo.Seen(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("failed to check event dedup state: %w", err)
	}
	if seen {
		s.logger.Info("duplicate gateway event ignored", slog.String("event_id", evt.ID), slog.String("kind", string(evt.Kind)))
		metrics.WebhookEventsTotal.WithLabelValues(string(evt.Kind), "duplicate").Inc()
		return nil
	}

	switch evt.Kind {
	case payments.EventCheckoutCompleted:
		err = s.applyCheckoutCompleted(ctx, evt.ID, evt.CheckoutCompleted)
	case payments.EventCheckoutExpired:
		err = s.applyCheckoutExpired(ctx, evt.ID, evt.CheckoutExpired)
	case payments.EventSubscriptionCreated, payments.EventSubscriptionUpdated:
		err = s.applySubscriptionSync(ctx, evt.ID, evt.Subscription)
	case payments.EventSubscriptionDeleted:
		err = s.applySubscriptionDeleted(ctx, evt.ID, evt.Subscription)
	case payments.EventInvoicePaymentFailed:
		err = s.applyInvoiceFailed(ctx, evt.ID, evt.InvoiceFailed)
	case payments.EventChargeRefunded:
		err = s.applyChargeRefunded(ctx, evt.ID, evt.ChargeRefunded)
	default:
		// Неизвестный вид не должен сюда попасть (парсер отклоняет), но если
		// попал — подтверждаем без эффектов.
		s.logger.Warn("unhandled gateway event kind acknowledged", slog.String("event_id", evt.ID), slog.String("kind", string(evt.Kind)))
		metrics.WebhookEventsTotal.WithLabelValues(string(evt.Kind), "ignored").Inc()
		return nil
	}
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(evt.Kind), "failed").Inc()
		return err
	}

	// Дедуп-строка пишется только после полного применения эффектов:
	// частично применённое событие обязано прийти повторно.
	if err := s.eventRepo.MarkProcessed(ctx, evt.ID, string(evt.Kind)); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(evt.Kind), "failed").Inc()
		return fmt.Errorf("failed to mark event %s processed: %w", evt.ID, err)
	}
	metrics.WebhookEventsTotal.WithLabelValues(string(evt.Kind), "applied").Inc()
	return nil
}

func (s *ReconciliationService) applyCheckoutCompleted(ctx context.Context, eventID string, data *payments.CheckoutCompletedData) error {
	switch data.Purpose {
	case payments.PurposeEntry:
		return s.applyEntryPaid(ctx, eventID, data)
	case payments.PurposeWaitlistOffer:
		return s.applyOfferConverted(ctx, eventID, data)
	case payments.PurposeMembership:
		return s.applyMembershipCheckout(ctx, data)
	default:
		s.logConflict(eventID, "checkout.completed with unknown purpose", slog.String("purpose", string(data.Purpose)))
		return nil
	}
}

func (s *ReconciliationService) applyEntryPaid(ctx context.Context, eventID string, data *payments.CheckoutCompletedData) error {
	entry, err := s.entryRepo.MarkPaid(ctx, data.SessionID)
	if err == nil {
		s.hub.Publish(entry.TournamentID, live.EventEntryPaid, entry)
		return nil
	}
	if !errors.Is(err, repositories.ErrEntryNotFound) {
		return fmt.Errorf("failed to mark entry paid: %w", err)
	}

	// Нет pending-записи: либо событие пришло повторно после применения
	// (запись уже paid — тихий no-op), либо ссылается в никуда (конфликт).
	existing, findErr := s.entryRepo.FindByPaymentReference(ctx, data.SessionID)
	if findErr != nil {
		if errors.Is(findErr, repositories.ErrEntryNotFound) {
			s.logConflict(eventID, "checkout.completed references unknown entry", slog.String("session_id", data.SessionID))
			return nil
		}
		return fmt.Errorf("failed to look up entry by payment reference: %w", findErr)
	}
	if existing.Status != models.EntryStatusPaid {
		s.logConflict(eventID, "checkout.completed for terminal entry",
			slog.String("session_id", data.SessionID),
			slog.String("status", string(existing.Status)),
		)
	}
	return nil
}

func (s *ReconciliationService) applyOfferConverted(ctx context.Context, eventID string, data *payments.CheckoutCompletedData) error {
	row, err := s.waitlistRepo.FindByOfferReference(ctx, data.OfferRef)
	if err != nil {
		if errors.Is(err, repositories.ErrWaitlistRowNotFound) {
			s.logConflict(eventID, "offer conversion references unknown waitlist row", slog.String("offer_ref", data.OfferRef))
			return nil
		}
		return fmt.Errorf("failed to find waitlist row by offer ref: %w", err)
	}
	if row.Status == models.WaitlistStatusConverted || row.Status == models.WaitlistStatusCanceled {
		// Повтор или оффер, закрытый более поздним циклом.
		s.logConflict(eventID, "offer conversion for terminal waitlist row", slog.Int("row_id", row.ID))
		return nil
	}

	entry := &models.Entry{
		TournamentID:     row.TournamentID,
		UserID:           row.UserID,
		AmountCents:      data.AmountCents,
		Status:           models.EntryStatusPaid,
		PaymentReference: strPtr(data.SessionID),
	}

	unlock := s.locks.Lock(row.TournamentID)
	res, err := s.entryRepo.ReserveSlot(ctx, entry)
	unlock()
	if err != nil {
		if errors.Is(err, repositories.ErrEntryConflict) {
			// Пользователь уже держит слот; оффер закрывается.
			if convErr := s.waitlistRepo.MarkConverted(ctx, row.ID); convErr != nil {
				return fmt.Errorf("failed to close waitlist row %d: %w", row.ID, convErr)
			}
			return nil
		}
		return fmt.Errorf("failed to reserve slot for converted offer: %w", err)
	}
	if !res.Created {
		// Переоткрытый слот перехватила прямая заявка. Недодаём, а не
		// продаём дважды: деньги возвращаются вручную, строка остаётся
		// offered и всплывёт в следующем цикле.
		s.logger.Error("offer conversion lost reopened slot, manual refund required",
			slog.String("event_id", eventID),
			slog.Int("tournament_id", row.TournamentID),
			slog.Int("user_id", row.UserID),
			slog.String("session_id", data.SessionID),
		)
		return nil
	}

	if err := s.waitlistRepo.MarkConverted(ctx, row.ID); err != nil {
		return fmt.Errorf("failed to mark waitlist row %d converted: %w", row.ID, err)
	}

	s.hub.Publish(row.TournamentID, live.EventOfferConverted, row)
	s.hub.Publish(row.TournamentID, live.EventEntryPaid, entry)
	if res.NowFull {
		s.hub.Publish(row.TournamentID, live.EventTournamentClosed, nil)
	}
	return nil
}

func (s *ReconciliationService) applyMembershipCheckout(ctx context.Context, data *payments.CheckoutCompletedData) error {
	m := &models.MembershipStatus{
		UserID:                 data.UserID,
		Email:                  data.CustomerEmail,
		Role:                   data.Role,
		GatewayCustomerRef:     strPtr(data.CustomerRef),
		GatewaySubscriptionRef: strPtr(data.SubscriptionRef),
		Status:                 models.MembershipActive,
	}
	if err := s.membershipRepo.Upsert(ctx, m); err != nil {
		return fmt.Errorf("failed to upsert membership for user %d: %w", data.UserID, err)
	}
	return nil
}

func (s *ReconciliationService) applyCheckoutExpired(ctx context.Context, eventID string, data *payments.CheckoutExpiredData) error {
	entry, err := s.entryRepo.MarkFailed(ctx, data.SessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			// Сессия без pending-записи: оффер или уже применённый исход.
			s.logger.Info("checkout expiry without pending entry", slog.String("event_id", eventID), slog.String("session_id", data.SessionID))
			return nil
		}
		return fmt.Errorf("failed to mark entry failed: %w", err)
	}

	// Истёкшая сессия освобождает удержанный слот.
	return s.releaseSlot(ctx, entry, live.EventEntryFailed)
}

func (s *ReconciliationService) applyChargeRefunded(ctx context.Context, eventID string, data *payments.ChargeRefundedData) error {
	entry, err := s.entryRepo.MarkRefunded(ctx, data.SessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			s.logConflict(eventID, "refund references unknown or terminal entry", slog.String("session_id", data.SessionID))
			return nil
		}
		return fmt.Errorf("failed to mark entry refunded: %w", err)
	}

	return s.releaseSlot(ctx, entry, live.EventEntryRefunded)
}

// releaseSlot переоткрывает турнир после освобождения слота и немедленно
// запускает цикл продвижения.
func (s *ReconciliationService) releaseSlot(ctx context.Context, entry *models.Entry, eventType string) error {
	if err := s.tournamentRepo.SetOpen(ctx, nil, entry.TournamentID, true); err != nil &&
		!errors.Is(err, repositories.ErrTournamentNotFound) {
		return fmt.Errorf("failed to reopen tournament %d: %w", entry.TournamentID, err)
	}

	s.hub.Publish(entry.TournamentID, live.EventTournamentReopened, nil)
	s.hub.Publish(entry.TournamentID, eventType, entry)

	if _, err := s.promotion.PromoteNext(ctx, entry.TournamentID); err != nil {
		return fmt.Errorf("promotion after freed slot failed: %w", err)
	}
	return nil
}

func (s *ReconciliationService) applySubscriptionSync(ctx context.Context, eventID string, data *payments.SubscriptionData) error {
	m, err := s.membershipRepo.FindBySubscriptionRef(ctx, data.SubscriptionRef)
	if err != nil {
		if !errors.Is(err, repositories.ErrMembershipNotFound) {
			return fmt.Errorf("failed to find membership by subscription ref: %w", err)
		}
		if data.UserID <= 0 {
			s.logConflict(eventID, "subscription event for unknown membership without user_id", slog.String("subscription_ref", data.SubscriptionRef))
			return nil
		}
		m = &models.MembershipStatus{UserID: data.UserID}
	}

	if data.CustomerEmail != "" {
		m.Email = data.CustomerEmail
	}
	if data.Role != "" {
		m.Role = data.Role
	}
	if data.CustomerRef != "" {
		m.GatewayCustomerRef = strPtr(data.CustomerRef)
	}
	m.GatewaySubscriptionRef = strPtr(data.SubscriptionRef)
	if data.Status != "" {
		m.Status = models.MembershipState(data.Status)
	} else if m.Status == "" {
		m.Status = models.MembershipActive
	}
	if pe := data.PeriodEnd(); pe != nil {
		m.PeriodEnd = pe
	}

	if err := s.membershipRepo.Upsert(ctx, m); err != nil {
		return fmt.Errorf("failed to sync membership: %w", err)
	}
	return nil
}

func (s *ReconciliationService) applySubscriptionDeleted(ctx context.Context, eventID string, data *payments.SubscriptionData) error {
	m, err := s.membershipRepo.FindBySubscriptionRef(ctx, data.SubscriptionRef)
	if err != nil {
		if errors.Is(err, repositories.ErrMembershipNotFound) {
			s.logConflict(eventID, "subscription deletion for unknown membership", slog.String("subscription_ref", data.SubscriptionRef))
			return nil
		}
		return fmt.Errorf("failed to find membership by subscription ref: %w", err)
	}

	m.Role = ""
	m.Status = models.MembershipCanceled
	m.GatewaySubscriptionRef = nil
	if err := s.membershipRepo.Upsert(ctx, m); err != nil {
		return fmt.Errorf("failed to downgrade membership: %w", err)
	}
	return nil
}

func (s *ReconciliationService) applyInvoiceFailed(ctx context.Context, eventID string, data *payments.InvoiceFailedData) error {
	m, err := s.membershipRepo.FindBySubscriptionRef(ctx, data.SubscriptionRef)
	if err != nil {
		if errors.Is(err, repositories.ErrMembershipNotFound) {
			s.logConflict(eventID, "failed invoice for unknown membership", slog.String("subscription_ref", data.SubscriptionRef))
			return nil
		}
		return fmt.Errorf("failed to find membership by subscription ref: %w", err)
	}

	m.Status = models.MembershipPastDue
	if err := s.membershipRepo.Upsert(ctx, m); err != nil {
		return fmt.Errorf("failed to mark membership past_due: %w", err)
	}
	return nil
}

func (s *ReconciliationService) logConflict(eventID, msg string, attrs ...interface{}) {
	args := append([]interface{}{slog.String("event_id", eventID)}, attrs...)
	s.logger.Warn("reconciliation conflict: "+msg, args...)
}
