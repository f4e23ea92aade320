package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/league-reservations/models"
	"github.com/Dosada05/league-reservations/payments"
	"github.com/Dosada05/league-reservations/repositories"
)

// fakeStore — потокобезопасная in-memory реализация всех репозиториев с той
// же семантикой условной вставки и переходов статусов, что и у Postgres-слоя.
type fakeStore struct {
	mu sync.Mutex

	tournaments map[int]*models.Tournament
	entries     []*models.Entry
	waitlist    []*models.WaitlistRow
	memberships map[int]*models.MembershipStatus
	halls       map[int]*models.HallSettings
	processed   map[string]string

	nextEntryID    int
	nextWaitlistID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tournaments:    make(map[int]*models.Tournament),
		memberships:    make(map[int]*models.MembershipStatus),
		halls:          make(map[int]*models.HallSettings),
		processed:      make(map[string]string),
		nextEntryID:    1,
		nextWaitlistID: 1,
	}
}

// --- TournamentRepository ---

func (f *fakeStore) GetOrCreate(_ context.Context, id int, defaultSlots int) (*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tournaments[id]; ok {
		cp := *t
		return &cp, nil
	}
	t := &models.Tournament{ID: id, MaxSlots: defaultSlots, IsOpen: true, CreatedAt: time.Now()}
	f.tournaments[id] = t
	cp := *t
	return &cp, nil
}

func (f *fakeStore) GetByID(_ context.Context, id int) (*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) SetOpen(_ context.Context, _ repositories.SQLExecutor, id int, open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.IsOpen = open
	return nil
}

func (f *fakeStore) ListNeedingPromotion(_ context.Context, now time.Time) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[int]bool{}
	var ids []int
	for _, row := range f.waitlist {
		promotable := row.Status == models.WaitlistStatusWaiting || row.OfferExpired(now)
		if !promotable || seen[row.TournamentID] {
			continue
		}
		t, ok := f.tournaments[row.TournamentID]
		if !ok {
			continue
		}
		held := f.countActiveLocked(row.TournamentID) + f.countLiveOffersLocked(row.TournamentID, now)
		if held >= t.MaxSlots {
			continue
		}
		seen[row.TournamentID] = true
		ids = append(ids, row.TournamentID)
	}
	return ids, nil
}

// --- EntryRepository ---

func (f *fakeStore) FindByTournamentAndUser(_ context.Context, tournamentID, userID int) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.TournamentID == tournamentID && e.UserID == userID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repositories.ErrEntryNotFound
}

func (f *fakeStore) FindByPaymentReference(_ context.Context, reference string) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.PaymentReference != nil && *e.PaymentReference == reference {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repositories.ErrEntryNotFound
}

func (f *fakeStore) CountActive(_ context.Context, tournamentID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countActiveLocked(tournamentID), nil
}

func (f *fakeStore) countActiveLocked(tournamentID int) int {
	n := 0
	for _, e := range f.entries {
		if e.TournamentID == tournamentID && e.HoldsSlot() {
			n++
		}
	}
	return n
}

func (f *fakeStore) ReserveSlot(_ context.Context, entry *models.Entry) (*repositories.SlotReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tournaments[entry.TournamentID]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}

	var existing *models.Entry
	for _, e := range f.entries {
		if e.TournamentID == entry.TournamentID && e.UserID == entry.UserID {
			existing = e
			break
		}
	}
	if existing != nil && existing.HoldsSlot() {
		return nil, repositories.ErrEntryConflict
	}

	active := f.countActiveLocked(entry.TournamentID)
	if active >= t.MaxSlots {
		return &repositories.SlotReservation{Created: false}, nil
	}

	if existing != nil {
		// Терминальная запись оживает вместо вставки новой.
		existing.AmountCents = entry.AmountCents
		existing.Status = entry.Status
		existing.PaymentReference = entry.PaymentReference
		existing.CreatedAt = time.Now()
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.ID = f.nextEntryID
		f.nextEntryID++
		entry.CreatedAt = time.Now()
		cp := *entry
		f.entries = append(f.entries, &cp)
	}

	res := &repositories.SlotReservation{Created: true, NowFull: active+1 >= t.MaxSlots}
	if res.NowFull {
		t.IsOpen = false
	}
	return res, nil
}

func (f *fakeStore) transition(reference string, from []models.EntryStatus, to models.EntryStatus) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.PaymentReference == nil || *e.PaymentReference != reference {
			continue
		}
		for _, s := range from {
			if e.Status == s {
				e.Status = to
				cp := *e
				return &cp, nil
			}
		}
	}
	return nil, repositories.ErrEntryNotFound
}

func (f *fakeStore) MarkPaid(_ context.Context, reference string) (*models.Entry, error) {
	return f.transition(reference, []models.EntryStatus{models.EntryStatusPending}, models.EntryStatusPaid)
}

func (f *fakeStore) MarkFailed(_ context.Context, reference string) (*models.Entry, error) {
	return f.transition(reference, []models.EntryStatus{models.EntryStatusPending}, models.EntryStatusFailed)
}

func (f *fakeStore) MarkRefunded(_ context.Context, reference string) (*models.Entry, error) {
	return f.transition(reference,
		[]models.EntryStatus{models.EntryStatusPaid, models.EntryStatusComped},
		models.EntryStatusRefunded)
}

func (f *fakeStore) SumPaidByHall(_ context.Context, hallID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries {
		if e.Status != models.EntryStatusPaid {
			continue
		}
		t, ok := f.tournaments[e.TournamentID]
		if ok && t.HallID != nil && *t.HallID == hallID {
			sum += int64(e.AmountCents)
		}
	}
	return sum, nil
}

// --- WaitlistRepository ---

func (f *fakeStore) Enqueue(_ context.Context, row *models.WaitlistRow) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.waitlist {
		live := r.Status == models.WaitlistStatusWaiting || r.Status == models.WaitlistStatusOffered
		if r.TournamentID == row.TournamentID && r.UserID == row.UserID && live {
			return false, nil
		}
	}
	row.ID = f.nextWaitlistID
	f.nextWaitlistID++
	row.Status = models.WaitlistStatusWaiting
	row.CreatedAt = time.Now()
	cp := *row
	f.waitlist = append(f.waitlist, &cp)
	return true, nil
}

func (f *fakeStore) NextCandidate(_ context.Context, tournamentID int, now time.Time) (*models.WaitlistRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.waitlist {
		if r.TournamentID != tournamentID {
			continue
		}
		if r.Status == models.WaitlistStatusWaiting || r.OfferExpired(now) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repositories.ErrWaitlistEmpty
}

func (f *fakeStore) CountLiveOffers(_ context.Context, tournamentID int, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countLiveOffersLocked(tournamentID, now), nil
}

func (f *fakeStore) countLiveOffersLocked(tournamentID int, now time.Time) int {
	n := 0
	for _, r := range f.waitlist {
		if r.TournamentID == tournamentID && r.Status == models.WaitlistStatusOffered && !r.OfferExpired(now) {
			n++
		}
	}
	return n
}

func (f *fakeStore) MarkOffered(_ context.Context, id int, offerRef, offerURL string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.waitlist {
		if r.ID == id {
			r.Status = models.WaitlistStatusOffered
			r.OfferReference = &offerRef
			r.OfferURL = &offerURL
			r.OfferExpiresAt = &expiresAt
			return nil
		}
	}
	return repositories.ErrWaitlistRowNotFound
}

func (f *fakeStore) MarkConverted(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.waitlist {
		if r.ID == id {
			r.Status = models.WaitlistStatusConverted
			return nil
		}
	}
	return repositories.ErrWaitlistRowNotFound
}

func (f *fakeStore) Cancel(_ context.Context, tournamentID, userID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.waitlist {
		live := r.Status == models.WaitlistStatusWaiting || r.Status == models.WaitlistStatusOffered
		if r.TournamentID == tournamentID && r.UserID == userID && live {
			r.Status = models.WaitlistStatusCanceled
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FindByOfferReference(_ context.Context, offerRef string) (*models.WaitlistRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.waitlist {
		if r.OfferReference != nil && *r.OfferReference == offerRef {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repositories.ErrWaitlistRowNotFound
}

func (f *fakeStore) waitlistRow(id int) *models.WaitlistRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.waitlist {
		if r.ID == id {
			cp := *r
			return &cp
		}
	}
	return nil
}

// --- MembershipRepository ---

func (f *fakeStore) GetByUserID(_ context.Context, userID int) (*models.MembershipStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[userID]
	if !ok {
		return nil, repositories.ErrMembershipNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) FindBySubscriptionRef(_ context.Context, subscriptionRef string) (*models.MembershipStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memberships {
		if m.GatewaySubscriptionRef != nil && *m.GatewaySubscriptionRef == subscriptionRef {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repositories.ErrMembershipNotFound
}

func (f *fakeStore) Upsert(_ context.Context, m *models.MembershipStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.memberships[m.UserID] = &cp
	return nil
}

// --- HallRepository ---

func (f *fakeStore) GetSettings(_ context.Context, hallID int) (*models.HallSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hs, ok := f.halls[hallID]
	if !ok {
		return nil, repositories.ErrHallSettingsNotFound
	}
	cp := *hs
	return &cp, nil
}

// --- WebhookEventRepository ---

func (f *fakeStore) Seen(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processed[eventID]
	return ok, nil
}

func (f *fakeStore) MarkProcessed(_ context.Context, eventID, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = kind
	return nil
}

// fakeGateway записывает вызовы и выдаёт сессии с нарастающими номерами.
type fakeGateway struct {
	mu       sync.Mutex
	fail     bool
	calls    []payments.CheckoutParams
	nextSess int
}

func (g *fakeGateway) CreateOneOffCheckout(_ context.Context, params payments.CheckoutParams) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, fmt.Errorf("%w: boom", payments.ErrGatewayCallFailed)
	}
	g.calls = append(g.calls, params)
	g.nextSess++
	id := fmt.Sprintf("cs_%03d", g.nextSess)
	return &payments.CheckoutSession{SessionID: id, RedirectURL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) CreateSubscriptionCheckout(_ context.Context, params payments.SubscriptionParams) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, fmt.Errorf("%w: boom", payments.ErrGatewayCallFailed)
	}
	g.nextSess++
	id := fmt.Sprintf("sub_cs_%03d", g.nextSess)
	return &payments.CheckoutSession{SessionID: id, RedirectURL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) CreateBillingPortalSession(_ context.Context, customerRef string) (string, error) {
	if g.fail {
		return "", fmt.Errorf("%w: boom", payments.ErrGatewayCallFailed)
	}
	return "https://pay.example/portal/" + customerRef, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
