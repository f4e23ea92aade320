package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/league-reservations/models"
	"github.com/lib/pq"
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrEntryConflict = errors.New("entry already exists for this user and tournament")
)

// SlotReservation — исход попытки занять слот. Created=false означает, что
// ёмкость исчерпана; NowFull — что эта запись заняла последний слот.
type SlotReservation struct {
	Created bool
	NowFull bool
}

type EntryRepository interface {
	FindByTournamentAndUser(ctx context.Context, tournamentID, userID int) (*models.Entry, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Entry, error)
	CountActive(ctx context.Context, tournamentID int) (int, error)

	// ReserveSlot атомарно проверяет ёмкость и создаёт запись: строка турнира
	// блокируется FOR UPDATE, активные записи пересчитываются, и при последнем
	// занятом слоте is_open переводится в false — всё в одной транзакции.
	// Это снимает гонку check-then-act между конкурентными запросами.
	ReserveSlot(ctx context.Context, entry *models.Entry) (*SlotReservation, error)

	// Переходы статусов по платёжной ссылке. Каждый метод затрагивает только
	// записи в допустимом исходном статусе, поэтому повторное применение
	// одного события — no-op.
	MarkPaid(ctx context.Context, reference string) (*models.Entry, error)
	MarkFailed(ctx context.Context, reference string) (*models.Entry, error)
	MarkRefunded(ctx context.Context, reference string) (*models.Entry, error)

	SumPaidByHall(ctx context.Context, hallID int) (int64, error)
}

type postgresEntryRepository struct {
	db *sql.DB
}

func NewPostgresEntryRepository(db *sql.DB) EntryRepository {
	return &postgresEntryRepository{db: db}
}

const entryColumns = `id, tournament_id, user_id, amount_cents, status, payment_reference, created_at`

func scanEntry(row *sql.Row) (*models.Entry, error) {
	e := &models.Entry{}
	err := row.Scan(&e.ID, &e.TournamentID, &e.UserID, &e.AmountCents, &e.Status, &e.PaymentReference, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *postgresEntryRepository) FindByTournamentAndUser(ctx context.Context, tournamentID, userID int) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE tournament_id = $1 AND user_id = $2`
	return scanEntry(r.db.QueryRowContext(ctx, query, tournamentID, userID))
}

func (r *postgresEntryRepository) FindByPaymentReference(ctx context.Context, reference string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE payment_reference = $1`
	return scanEntry(r.db.QueryRowContext(ctx, query, reference))
}

func (r *postgresEntryRepository) CountActive(ctx context.Context, tournamentID int) (int, error) {
	query := `
		SELECT COUNT(*) FROM entries
		WHERE tournament_id = $1 AND status IN ('pending', 'paid', 'comped')`

	var count int
	if err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postgresEntryRepository) ReserveSlot(ctx context.Context, entry *models.Entry) (*SlotReservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reservation transaction: %w", err)
	}
	var txErr error
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	var maxSlots int
	txErr = tx.QueryRowContext(ctx,
		`SELECT max_slots FROM tournaments WHERE id = $1 FOR UPDATE`,
		entry.TournamentID,
	).Scan(&maxSlots)
	if txErr != nil {
		if errors.Is(txErr, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, txErr
	}

	var active int
	txErr = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE tournament_id = $1 AND status IN ('pending', 'paid', 'comped')`,
		entry.TournamentID,
	).Scan(&active)
	if txErr != nil {
		return nil, txErr
	}

	if active >= maxSlots {
		if txErr = tx.Commit(); txErr != nil {
			return nil, txErr
		}
		return &SlotReservation{Created: false}, nil
	}

	// Терминальная запись (failed/refunded) возрождается повторной попыткой;
	// активная запись остаётся нетронутой и даёт ErrEntryConflict.
	txErr = tx.QueryRowContext(ctx,
		`INSERT INTO entries (tournament_id, user_id, amount_cents, status, payment_reference)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tournament_id, user_id) DO UPDATE SET
			amount_cents = EXCLUDED.amount_cents,
			status = EXCLUDED.status,
			payment_reference = EXCLUDED.payment_reference,
			created_at = now()
		 WHERE entries.status IN ('failed', 'refunded')
		 RETURNING id, created_at`,
		entry.TournamentID, entry.UserID, entry.AmountCents, entry.Status, entry.PaymentReference,
	).Scan(&entry.ID, &entry.CreatedAt)
	if txErr != nil {
		if errors.Is(txErr, sql.ErrNoRows) {
			txErr = ErrEntryConflict
		}
		return nil, txErr
	}

	res := &SlotReservation{Created: true, NowFull: active+1 >= maxSlots}
	if res.NowFull {
		if _, txErr = tx.ExecContext(ctx,
			`UPDATE tournaments SET is_open = FALSE WHERE id = $1`, entry.TournamentID,
		); txErr != nil {
			return nil, txErr
		}
	}

	if txErr = tx.Commit(); txErr != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", txErr)
	}
	return res, nil
}

func (r *postgresEntryRepository) transition(ctx context.Context, reference string, from []models.EntryStatus, to models.EntryStatus) (*models.Entry, error) {
	query := `
		UPDATE entries SET status = $1
		WHERE payment_reference = $2 AND status = ANY($3)
		RETURNING ` + entryColumns

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	return scanEntry(r.db.QueryRowContext(ctx, query, to, reference, pq.Array(statuses)))
}

func (r *postgresEntryRepository) MarkPaid(ctx context.Context, reference string) (*models.Entry, error) {
	return r.transition(ctx, reference, []models.EntryStatus{models.EntryStatusPending}, models.EntryStatusPaid)
}

func (r *postgresEntryRepository) MarkFailed(ctx context.Context, reference string) (*models.Entry, error) {
	return r.transition(ctx, reference, []models.EntryStatus{models.EntryStatusPending}, models.EntryStatusFailed)
}

func (r *postgresEntryRepository) MarkRefunded(ctx context.Context, reference string) (*models.Entry, error) {
	return r.transition(ctx, reference,
		[]models.EntryStatus{models.EntryStatusPaid, models.EntryStatusComped},
		models.EntryStatusRefunded)
}

func (r *postgresEntryRepository) SumPaidByHall(ctx context.Context, hallID int) (int64, error) {
	query := `
		SELECT COALESCE(SUM(e.amount_cents), 0)
		FROM entries e
		JOIN tournaments t ON t.id = e.tournament_id
		WHERE t.hall_id = $1 AND e.status = 'paid'`

	var sum int64
	if err := r.db.QueryRowContext(ctx, query, hallID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}
