package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/league-reservations/models"
)

var ErrHallSettingsNotFound = errors.New("hall settings not found")

// HallRepository читает настройки залов: переопределения взносов и процент
// распределения выручки. Модуль настроек залов пишет эти данные снаружи,
// ядро резервирования их только читает.
type HallRepository interface {
	GetSettings(ctx context.Context, hallID int) (*models.HallSettings, error)
}

type postgresHallRepository struct {
	db *sql.DB
}

func NewPostgresHallRepository(db *sql.DB) HallRepository {
	return &postgresHallRepository{db: db}
}

func (r *postgresHallRepository) GetSettings(ctx context.Context, hallID int) (*models.HallSettings, error) {
	query := `
		SELECT hall_id, base_fee_cents, nonmember_fee_cents, revenue_split_percent
		FROM hall_settings
		WHERE hall_id = $1`

	hs := &models.HallSettings{}
	err := r.db.QueryRowContext(ctx, query, hallID).Scan(
		&hs.HallID, &hs.BaseFeeCents, &hs.NonmemberFeeCents, &hs.RevenueSplitPercent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHallSettingsNotFound
		}
		return nil, err
	}
	return hs, nil
}
