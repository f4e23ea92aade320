package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Dosada05/league-reservations/models"
	"github.com/lib/pq"
)

var (
	ErrWaitlistRowNotFound = errors.New("waitlist row not found")
	ErrWaitlistEmpty       = errors.New("no promotable waitlist row")
)

type WaitlistRepository interface {
	// Enqueue добавляет строку в конец очереди. Возвращает false без ошибки,
	// если у пользователя уже есть нетерминальная строка в этом турнире.
	Enqueue(ctx context.Context, row *models.WaitlistRow) (bool, error)

	// NextCandidate возвращает самую старую строку, пригодную для продвижения:
	// waiting, либо offered с истёкшим offer_expires_at (просроченный оффер
	// переизбирается, а не теряется). Порядок строго FIFO по created_at.
	NextCandidate(ctx context.Context, tournamentID int, now time.Time) (*models.WaitlistRow, error)

	// CountLiveOffers возвращает число неистёкших офферов турнира. Живой оффер
	// удерживает ёмкость: пока он не истёк или не конвертирован, слот под него
	// зарезервирован и второй оффер на тот же слот не выставляется.
	CountLiveOffers(ctx context.Context, tournamentID int, now time.Time) (int, error)

	MarkOffered(ctx context.Context, id int, offerRef, offerURL string, expiresAt time.Time) error
	MarkConverted(ctx context.Context, id int) error
	Cancel(ctx context.Context, tournamentID, userID int) (bool, error)
	FindByOfferReference(ctx context.Context, offerRef string) (*models.WaitlistRow, error)
}

type postgresWaitlistRepository struct {
	db *sql.DB
}

func NewPostgresWaitlistRepository(db *sql.DB) WaitlistRepository {
	return &postgresWaitlistRepository{db: db}
}

const waitlistColumns = `id, tournament_id, user_id, email, status, offer_url, offer_reference, offer_expires_at, created_at`

func scanWaitlistRow(row *sql.Row) (*models.WaitlistRow, error) {
	w := &models.WaitlistRow{}
	err := row.Scan(&w.ID, &w.TournamentID, &w.UserID, &w.Email, &w.Status, &w.OfferURL, &w.OfferReference, &w.OfferExpiresAt, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWaitlistRowNotFound
		}
		return nil, err
	}
	return w, nil
}

func (r *postgresWaitlistRepository) Enqueue(ctx context.Context, row *models.WaitlistRow) (bool, error) {
	// Частичный уникальный индекс по (tournament_id, user_id) для
	// нетерминальных статусов делает повторную постановку no-op.
	query := `
		INSERT INTO waitlist (tournament_id, user_id, email, status)
		VALUES ($1, $2, $3, 'waiting')
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, row.TournamentID, row.UserID, row.Email).Scan(&row.ID, &row.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	row.Status = models.WaitlistStatusWaiting
	return true, nil
}

func (r *postgresWaitlistRepository) NextCandidate(ctx context.Context, tournamentID int, now time.Time) (*models.WaitlistRow, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist
		WHERE tournament_id = $1
		  AND (status = 'waiting' OR (status = 'offered' AND offer_expires_at < $2))
		ORDER BY created_at, id
		LIMIT 1`

	w, err := scanWaitlistRow(r.db.QueryRowContext(ctx, query, tournamentID, now))
	if err != nil {
		if errors.Is(err, ErrWaitlistRowNotFound) {
			return nil, ErrWaitlistEmpty
		}
		return nil, err
	}
	return w, nil
}

func (r *postgresWaitlistRepository) CountLiveOffers(ctx context.Context, tournamentID int, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM waitlist
		WHERE tournament_id = $1 AND status = 'offered' AND offer_expires_at >= $2`

	var count int
	err := r.db.QueryRowContext(ctx, query, tournamentID, now).Scan(&count)
	return count, err
}

func (r *postgresWaitlistRepository) MarkOffered(ctx context.Context, id int, offerRef, offerURL string, expiresAt time.Time) error {
	query := `
		UPDATE waitlist
		SET status = 'offered', offer_reference = $1, offer_url = $2, offer_expires_at = $3
		WHERE id = $4 AND status IN ('waiting', 'offered')`

	result, err := r.db.ExecContext(ctx, query, offerRef, offerURL, expiresAt, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrWaitlistRowNotFound)
}

func (r *postgresWaitlistRepository) MarkConverted(ctx context.Context, id int) error {
	query := `UPDATE waitlist SET status = 'converted' WHERE id = $1 AND status IN ('waiting', 'offered')`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrWaitlistRowNotFound)
}

func (r *postgresWaitlistRepository) Cancel(ctx context.Context, tournamentID, userID int) (bool, error) {
	query := `
		UPDATE waitlist SET status = 'canceled'
		WHERE tournament_id = $1 AND user_id = $2 AND status IN ('waiting', 'offered')`

	result, err := r.db.ExecContext(ctx, query, tournamentID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *postgresWaitlistRepository) FindByOfferReference(ctx context.Context, offerRef string) (*models.WaitlistRow, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist WHERE offer_reference = $1`
	return scanWaitlistRow(r.db.QueryRowContext(ctx, query, offerRef))
}
