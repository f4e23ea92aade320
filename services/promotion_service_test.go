package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/league-reservations/models"
)

func newPromotionFixture(maxSlots int) (*PromotionService, *fakeStore, *fakeGateway) {
	store := newFakeStore()
	gateway := &fakeGateway{}
	store.tournaments[1] = &models.Tournament{ID: 1, MaxSlots: maxSlots, IsOpen: true, CreatedAt: time.Now()}

	svc := NewPromotionService(
		store, store, store, store, store,
		gateway,
		NewTournamentLocks(),
		nil,
		testLogger(),
		PromotionConfig{
			OfferTTL:   30 * time.Minute,
			Pricing:    FeePricing{BaseFeeCents: 2500, NonmemberFeeCents: 4000},
			SuccessURL: "https://league.example/ok",
			CancelURL:  "https://league.example/cancel",
		},
	)
	return svc, store, gateway
}

func enqueue(t *testing.T, svc *PromotionService, tournamentID, userID int, email string) {
	t.Helper()
	created, err := svc.Enqueue(context.Background(), tournamentID, userID, email)
	if err != nil {
		t.Fatalf("enqueue user %d: %v", userID, err)
	}
	if !created {
		t.Fatalf("enqueue user %d: expected a new row", userID)
	}
}

func TestPromoteNextEmptyWaitlist(t *testing.T) {
	svc, _, _ := newPromotionFixture(4)

	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionEmpty {
		t.Fatalf("expected %s, got %s", PromotionEmpty, result.Outcome)
	}
}

func TestPromoteNextStillFull(t *testing.T) {
	svc, store, _ := newPromotionFixture(1)
	store.entries = append(store.entries, &models.Entry{
		ID: 1, TournamentID: 1, UserID: 50, Status: models.EntryStatusPaid,
	})
	enqueue(t, svc, 1, 2, "user2@league.example")

	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionStillFull {
		t.Fatalf("expected %s, got %s", PromotionStillFull, result.Outcome)
	}
	if row := store.waitlistRow(1); row.Status != models.WaitlistStatusWaiting {
		t.Fatalf("row must stay waiting while the tournament is full, got %s", row.Status)
	}
}

func TestPromoteNextCompedConversion(t *testing.T) {
	svc, store, gateway := newPromotionFixture(4)
	store.memberships[7] = activeMember(7, models.RoleMega)
	enqueue(t, svc, 1, 7, "")

	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionComped {
		t.Fatalf("expected %s, got %s", PromotionComped, result.Outcome)
	}
	if gateway.callCount() != 0 {
		t.Fatal("comped conversion must not create checkout sessions")
	}
	if row := store.waitlistRow(1); row.Status != models.WaitlistStatusConverted {
		t.Fatalf("expected converted row, got %s", row.Status)
	}
	entry, err := store.FindByTournamentAndUser(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("expected an entry for the promoted user: %v", err)
	}
	if entry.Status != models.EntryStatusComped {
		t.Fatalf("expected comped entry, got %s", entry.Status)
	}
}

func TestPromoteNextCreatesTimedOffer(t *testing.T) {
	svc, store, gateway := newPromotionFixture(4)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	enqueue(t, svc, 1, 9, "guest@league.example")

	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionOffered {
		t.Fatalf("expected %s, got %s", PromotionOffered, result.Outcome)
	}
	if result.OfferURL == "" {
		t.Fatal("offer must carry a checkout url")
	}
	if gateway.callCount() != 1 {
		t.Fatalf("expected one gateway call, got %d", gateway.callCount())
	}

	row := store.waitlistRow(1)
	if row.Status != models.WaitlistStatusOffered {
		t.Fatalf("expected offered row, got %s", row.Status)
	}
	if row.OfferExpiresAt == nil || !row.OfferExpiresAt.Equal(base.Add(30*time.Minute)) {
		t.Fatalf("offer must expire after the configured TTL, got %v", row.OfferExpiresAt)
	}
	if row.OfferReference == nil || *row.OfferReference == "" {
		t.Fatal("offer must carry its reference")
	}
}

func TestPromoteNextReissuesExpiredOffer(t *testing.T) {
	svc, store, gateway := newPromotionFixture(4)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	enqueue(t, svc, 1, 9, "first@league.example")
	enqueue(t, svc, 1, 10, "second@league.example")

	if _, err := svc.PromoteNext(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstRef := *store.waitlistRow(1).OfferReference

	// Оффер не конвертирован, срок вышел: следующий цикл переизбирает того же
	// кандидата — он всё ещё первый в FIFO.
	svc.now = func() time.Time { return base.Add(time.Hour) }
	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionOffered {
		t.Fatalf("expected %s, got %s", PromotionOffered, result.Outcome)
	}
	if result.Row.ID != 1 {
		t.Fatalf("expired offer must be re-picked before younger rows, got row %d", result.Row.ID)
	}
	if got := *store.waitlistRow(1).OfferReference; got == firstRef {
		t.Fatal("re-issued offer must carry a fresh reference")
	}
	if gateway.callCount() != 2 {
		t.Fatalf("expected two gateway calls, got %d", gateway.callCount())
	}
}

func TestPromoteNextHoldsSlotForLiveOffer(t *testing.T) {
	svc, store, gateway := newPromotionFixture(1)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	enqueue(t, svc, 1, 9, "first@league.example")
	enqueue(t, svc, 1, 10, "second@league.example")

	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionOffered {
		t.Fatalf("expected %s, got %s", PromotionOffered, result.Outcome)
	}

	// Единственный слот удерживается живым оффером: повторный цикл до
	// истечения срока не должен выставить второй оффер на тот же слот.
	svc.now = func() time.Time { return base.Add(time.Minute) }
	result, err = svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionStillFull {
		t.Fatalf("expected %s while the offer is live, got %s", PromotionStillFull, result.Outcome)
	}
	if row := store.waitlistRow(2); row.Status != models.WaitlistStatusWaiting {
		t.Fatalf("second candidate must keep waiting, got %s", row.Status)
	}
	if gateway.callCount() != 1 {
		t.Fatalf("expected a single checkout session, got %d", gateway.callCount())
	}

	// Развёртка тоже не трогает турнир, пока оффер жив.
	if err := svc.SweepOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.callCount() != 1 {
		t.Fatalf("sweep must not issue a second offer, got %d gateway calls", gateway.callCount())
	}

	ids, err := store.ListNeedingPromotion(context.Background(), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("tournament with its free slot covered by a live offer must not list, got %v", ids)
	}

	// После истечения срока слот снова свободен и переизбирается.
	svc.now = func() time.Time { return base.Add(time.Hour) }
	result, err = svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionOffered {
		t.Fatalf("expected %s after expiry, got %s", PromotionOffered, result.Outcome)
	}
	if result.Row.UserID != 9 {
		t.Fatalf("expired offer must be re-picked first, got user %d", result.Row.UserID)
	}
}

func TestPromoteNextSkipsDirectlyRegisteredCandidate(t *testing.T) {
	svc, store, _ := newPromotionFixture(4)
	store.memberships[7] = activeMember(7, models.RoleMega)
	store.memberships[8] = activeMember(8, models.RoleMega)
	enqueue(t, svc, 1, 7, "")
	enqueue(t, svc, 1, 8, "")

	// Первый кандидат успел записаться напрямую, минуя очередь.
	store.entries = append(store.entries, &models.Entry{
		ID: 99, TournamentID: 1, UserID: 7, Status: models.EntryStatusPaid,
	})

	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionComped {
		t.Fatalf("expected %s, got %s", PromotionComped, result.Outcome)
	}
	if result.Row.UserID != 8 {
		t.Fatalf("expected the second candidate to be promoted, got user %d", result.Row.UserID)
	}
	if row := store.waitlistRow(1); row.Status != models.WaitlistStatusConverted {
		t.Fatalf("superseded row must be closed, got %s", row.Status)
	}
}

func TestPromoteNextCancelsRowWithoutContact(t *testing.T) {
	svc, store, gateway := newPromotionFixture(4)
	enqueue(t, svc, 1, 9, "") // платный тир без email

	result, err := svc.PromoteNext(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != PromotionEmpty {
		t.Fatalf("expected %s after the only row is canceled, got %s", PromotionEmpty, result.Outcome)
	}
	if row := store.waitlistRow(1); row.Status != models.WaitlistStatusCanceled {
		t.Fatalf("row without contact must be canceled, got %s", row.Status)
	}
	if gateway.callCount() != 0 {
		t.Fatal("no checkout session may be created without a contact email")
	}
}

func TestSweepOnceDrainsFreedCapacity(t *testing.T) {
	svc, store, _ := newPromotionFixture(3)
	for userID := 11; userID <= 13; userID++ {
		store.memberships[userID] = activeMember(userID, models.RoleMega)
		enqueue(t, svc, 1, userID, "")
	}

	if err := svc.SweepOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.countActiveLocked(1); got != 3 {
		t.Fatalf("sweep must drain the whole queue into free slots, got %d active", got)
	}
	for id := 1; id <= 3; id++ {
		if row := store.waitlistRow(id); row.Status != models.WaitlistStatusConverted {
			t.Fatalf("row %d must be converted, got %s", id, row.Status)
		}
	}
}
