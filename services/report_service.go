package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Dosada05/league-reservations/repositories"
)

// RevenueReport — разбивка оплаченных взносов зала между залом и лигой.
// Деление в decimal, чтобы копейки не терялись на плавающей точке.
type RevenueReport struct {
	HallID           int    `json:"hall_id"`
	GrossCents       int64  `json:"gross_cents"`
	SplitPercent     string `json:"split_percent"`
	HallShareCents   int64  `json:"hall_share_cents"`
	LeagueShareCents int64  `json:"league_share_cents"`
}

type ReportService struct {
	entryRepo repositories.EntryRepository
	hallRepo  repositories.HallRepository
}

func NewReportService(entryRepo repositories.EntryRepository, hallRepo repositories.HallRepository) *ReportService {
	return &ReportService{entryRepo: entryRepo, hallRepo: hallRepo}
}

// HallRevenue считает валовую выручку зала по paid-записям и делит её по
// проценту из настроек зала. Доля зала округляется вниз, остаток — лиге:
// суммы долей всегда сходятся с валовой.
func (s *ReportService) HallRevenue(ctx context.Context, hallID int) (*RevenueReport, error) {
	if hallID <= 0 {
		return nil, fmt.Errorf("%w: hall id must be positive", ErrValidationFailed)
	}

	settings, err := s.hallRepo.GetSettings(ctx, hallID)
	if err != nil {
		if errors.Is(err, repositories.ErrHallSettingsNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load hall settings: %w", err)
	}

	gross, err := s.entryRepo.SumPaidByHall(ctx, hallID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum hall revenue: %w", err)
	}

	percent, err := decimal.NewFromString(settings.RevenueSplitPercent)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed revenue split percent %q", ErrValidationFailed, settings.RevenueSplitPercent)
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: revenue split percent out of range", ErrValidationFailed)
	}

	hallShare := decimal.NewFromInt(gross).
		Mul(percent).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()

	return &RevenueReport{
		HallID:           hallID,
		GrossCents:       gross,
		SplitPercent:     settings.RevenueSplitPercent,
		HallShareCents:   hallShare,
		LeagueShareCents: gross - hallShare,
	}, nil
}
