package services

import (
	"context"
	"errors"
	"sync"

	"github.com/Dosada05/league-reservations/fees"
	"github.com/Dosada05/league-reservations/models"
	"github.com/Dosada05/league-reservations/repositories"
)

// TournamentLocks сериализует последовательности read-count/decide/reserve по
// конкретному турниру. Через один и тот же набор замков проходят и прямое
// резервирование, и продвижение листа ожидания; разные турниры независимы.
// Замок держится только на локальном read-modify-write, никогда — на вызове
// шлюза или другом удалённом обращении.
type TournamentLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewTournamentLocks() *TournamentLocks {
	return &TournamentLocks{locks: make(map[int]*sync.Mutex)}
}

// Lock блокирует турнир и возвращает функцию разблокировки.
func (l *TournamentLocks) Lock(tournamentID int) func() {
	l.mu.Lock()
	m, ok := l.locks[tournamentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tournamentID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// FeePricing — сконфигурированные лиговые взносы по умолчанию.
type FeePricing struct {
	BaseFeeCents      int
	NonmemberFeeCents int
}

// resolveFee вычисляет взнос пользователя: тир членства плюс переопределения
// зала турнира. Отсутствующее членство — это не-участник, а не ошибка.
func resolveFee(
	ctx context.Context,
	membershipRepo repositories.MembershipRepository,
	hallRepo repositories.HallRepository,
	pricing FeePricing,
	t *models.Tournament,
	userID int,
) (int, *models.MembershipStatus, error) {
	var role string
	membership, err := membershipRepo.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		if membership.Status == models.MembershipActive {
			role = membership.Role
		}
	case errors.Is(err, repositories.ErrMembershipNotFound):
		// не-участник
	default:
		return 0, nil, err
	}

	var hs *models.HallSettings
	if t.HallID != nil {
		hs, err = hallRepo.GetSettings(ctx, *t.HallID)
		if err != nil && !errors.Is(err, repositories.ErrHallSettingsNotFound) {
			return 0, nil, err
		}
	}

	fee := fees.Compute(role, fees.FromHallSettings(hs, pricing.BaseFeeCents, pricing.NonmemberFeeCents))
	return fee, membership, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
