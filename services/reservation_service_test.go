package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/league-reservations/models"
	"github.com/Dosada05/league-reservations/payments"
)

func newReservationFixture(maxSlots int) (*ReservationService, *fakeStore, *fakeGateway) {
	store := newFakeStore()
	gateway := &fakeGateway{}
	store.tournaments[1] = &models.Tournament{ID: 1, MaxSlots: maxSlots, IsOpen: true, CreatedAt: time.Now()}

	svc := NewReservationService(
		store, store, store, store, store,
		gateway,
		NewTournamentLocks(),
		nil,
		testLogger(),
		ReservationConfig{
			DefaultMaxSlots: maxSlots,
			Pricing:         FeePricing{BaseFeeCents: 2500, NonmemberFeeCents: 4000},
			SuccessURL:      "https://league.example/ok",
			CancelURL:       "https://league.example/cancel",
		},
	)
	return svc, store, gateway
}

func activeMember(userID int, role string) *models.MembershipStatus {
	return &models.MembershipStatus{
		UserID: userID,
		Email:  fmt.Sprintf("user%d@league.example", userID),
		Role:   role,
		Status: models.MembershipActive,
	}
}

func TestAttemptReserveCompedLargeTier(t *testing.T) {
	svc, store, gateway := newReservationFixture(4)
	store.memberships[7] = activeMember(7, models.RoleLarge)

	result, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != ReservationComped {
		t.Fatalf("expected %s, got %s", ReservationComped, result.Status)
	}
	if result.Entry == nil || result.Entry.Status != models.EntryStatusComped {
		t.Fatalf("expected comped entry, got %+v", result.Entry)
	}
	if result.Entry.AmountCents != 0 {
		t.Fatalf("comped entry must be free, got %d", result.Entry.AmountCents)
	}
	if gateway.callCount() != 0 {
		t.Fatal("comped reservation must not touch the payment gateway")
	}
}

func TestAttemptReservePaidCreatesPendingEntry(t *testing.T) {
	svc, store, gateway := newReservationFixture(4)
	store.memberships[3] = activeMember(3, models.RoleSmall)

	result, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != ReservationCheckout {
		t.Fatalf("expected %s, got %s", ReservationCheckout, result.Status)
	}
	if result.CheckoutURL == "" {
		t.Fatal("expected a checkout url")
	}
	if result.Entry.Status != models.EntryStatusPending {
		t.Fatalf("expected pending entry, got %s", result.Entry.Status)
	}
	if result.Entry.AmountCents != 2500 {
		t.Fatalf("small tier pays the base fee, got %d", result.Entry.AmountCents)
	}
	if result.Entry.PaymentReference == nil {
		t.Fatal("pending entry must carry the session reference")
	}
	if gateway.callCount() != 1 {
		t.Fatalf("expected one gateway call, got %d", gateway.callCount())
	}
}

func TestAttemptReserveNonmemberFee(t *testing.T) {
	svc, _, gateway := newReservationFixture(4)

	result, err := svc.AttemptReserve(context.Background(), ReserveInput{
		TournamentID: 1, UserID: 9, PayerEmail: "guest@league.example",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Entry.AmountCents != 4000 {
		t.Fatalf("nonmember pays the elevated fee, got %d", result.Entry.AmountCents)
	}
	if gateway.calls[0].PayerEmail != "guest@league.example" {
		t.Fatalf("checkout must use the payer email, got %q", gateway.calls[0].PayerEmail)
	}
}

func TestAttemptReserveRequiresEmailForPaidPath(t *testing.T) {
	svc, _, _ := newReservationFixture(4)

	_, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 9})
	if !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
}

func TestAttemptReserveIdempotentWhileActive(t *testing.T) {
	svc, store, gateway := newReservationFixture(4)
	store.memberships[7] = activeMember(7, models.RoleMega)

	first, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != ReservationAlreadyRegistered {
		t.Fatalf("expected %s, got %s", ReservationAlreadyRegistered, second.Status)
	}
	if second.Entry.ID != first.Entry.ID {
		t.Fatal("repeat attempt must return the same entry")
	}
	if got := store.countActiveLocked(1); got != 1 {
		t.Fatalf("expected a single active entry, got %d", got)
	}
	if gateway.callCount() != 0 {
		t.Fatal("repeat attempt must not create checkout sessions")
	}
}

func TestAttemptReserveFullWithoutWaitlistOptIn(t *testing.T) {
	svc, store, _ := newReservationFixture(1)
	store.memberships[1] = activeMember(1, models.RoleLarge)
	store.memberships[2] = activeMember(2, models.RoleLarge)

	if _, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 2})
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
}

func TestAttemptReserveFullJoinsWaitlist(t *testing.T) {
	svc, store, gateway := newReservationFixture(1)
	store.memberships[1] = activeMember(1, models.RoleLarge)

	if _, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.AttemptReserve(context.Background(), ReserveInput{
		TournamentID: 1, UserID: 2, PayerEmail: "late@league.example", JoinWaitlistIfFull: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != ReservationWaitlisted {
		t.Fatalf("expected %s, got %s", ReservationWaitlisted, result.Status)
	}
	if gateway.callCount() != 0 {
		t.Fatal("full tournament must not produce checkout sessions")
	}

	row := store.waitlistRow(1)
	if row == nil || row.Status != models.WaitlistStatusWaiting {
		t.Fatalf("expected waiting waitlist row, got %+v", row)
	}
	if row.Email != "late@league.example" {
		t.Fatalf("waitlist row must keep the contact email, got %q", row.Email)
	}
}

func TestAttemptReserveLastSlotClosesTournament(t *testing.T) {
	svc, store, _ := newReservationFixture(2)
	store.memberships[1] = activeMember(1, models.RoleLarge)
	store.memberships[2] = activeMember(2, models.RoleLarge)

	for _, userID := range []int{1, 2} {
		if _, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: userID}); err != nil {
			t.Fatalf("unexpected error for user %d: %v", userID, err)
		}
	}

	tournament, err := store.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tournament.IsOpen {
		t.Fatal("tournament must be closed once the last slot is taken")
	}
}

func TestAttemptReserveGatewayFailureLeavesNoEntry(t *testing.T) {
	svc, store, gateway := newReservationFixture(4)
	gateway.fail = true

	_, err := svc.AttemptReserve(context.Background(), ReserveInput{
		TournamentID: 1, UserID: 9, PayerEmail: "guest@league.example",
	})
	if !errors.Is(err, payments.ErrGatewayCallFailed) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
	if got := store.countActiveLocked(1); got != 0 {
		t.Fatalf("no entry may be committed when the gateway call fails, got %d", got)
	}
}

func TestAttemptReserveRevivesTerminalEntry(t *testing.T) {
	svc, store, _ := newReservationFixture(4)
	store.memberships[7] = activeMember(7, models.RoleLarge)

	if _, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.entries[0].Status = models.EntryStatusRefunded

	result, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: 7})
	if err != nil {
		t.Fatalf("refunded user must be able to re-enter: %v", err)
	}
	if result.Status != ReservationComped {
		t.Fatalf("expected %s, got %s", ReservationComped, result.Status)
	}
	if got := store.countActiveLocked(1); got != 1 {
		t.Fatalf("revival must not duplicate entries, got %d active", got)
	}
}

func TestAttemptReserveConcurrentBurstRespectsCapacity(t *testing.T) {
	const slots = 3
	const contenders = 20

	svc, store, _ := newReservationFixture(slots)
	for i := 1; i <= contenders; i++ {
		store.memberships[i] = activeMember(i, models.RoleLarge)
	}

	var wg sync.WaitGroup
	results := make([]string, contenders)
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.AttemptReserve(context.Background(), ReserveInput{TournamentID: 1, UserID: i + 1})
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = res.Status
		}(i)
	}
	wg.Wait()

	won := 0
	for i := range results {
		switch {
		case results[i] == ReservationComped:
			won++
		case errors.Is(errs[i], ErrCapacityExhausted):
		default:
			t.Fatalf("contender %d: unexpected outcome %q / %v", i+1, results[i], errs[i])
		}
	}
	if won != slots {
		t.Fatalf("exactly %d contenders may win, got %d", slots, won)
	}
	if got := store.countActiveLocked(1); got != slots {
		t.Fatalf("active entries must equal capacity, got %d", got)
	}
}
