package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Dosada05/league-reservations/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

type TournamentRepository interface {
	// GetOrCreate возвращает турнир, лениво создавая его с ёмкостью по умолчанию
	// при первом обращении. Конкурентные вызовы безопасны.
	GetOrCreate(ctx context.Context, id int, defaultSlots int) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	SetOpen(ctx context.Context, exec SQLExecutor, id int, open bool) error
	// ListNeedingPromotion возвращает турниры, у которых есть ожидающие строки
	// листа ожидания либо просроченные офферы и при этом остаётся ёмкость,
	// не покрытая активными записями и живыми офферами.
	ListNeedingPromotion(ctx context.Context, now time.Time) ([]int, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) GetOrCreate(ctx context.Context, id int, defaultSlots int) (*models.Tournament, error) {
	query := `
		INSERT INTO tournaments (id, max_slots, is_open)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, id, defaultSlots); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `
		SELECT id, hall_id, max_slots, is_open, created_at
		FROM tournaments
		WHERE id = $1`

	t := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.HallID, &t.MaxSlots, &t.IsOpen, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) SetOpen(ctx context.Context, exec SQLExecutor, id int, open bool) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET is_open = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, open, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ListNeedingPromotion(ctx context.Context, now time.Time) ([]int, error) {
	// Живые офферы удерживают ёмкость: турнир, у которого вся свободная
	// ёмкость покрыта неистёкшими офферами, в развёртку не попадает.
	query := `
		SELECT DISTINCT t.id
		FROM tournaments t
		JOIN waitlist w ON w.tournament_id = t.id
		WHERE (w.status = 'waiting'
		   OR (w.status = 'offered' AND w.offer_expires_at < $1))
		  AND (SELECT COUNT(*) FROM entries e
		       WHERE e.tournament_id = t.id
		         AND e.status IN ('pending', 'paid', 'comped'))
		    + (SELECT COUNT(*) FROM waitlist o
		       WHERE o.tournament_id = t.id
		         AND o.status = 'offered' AND o.offer_expires_at >= $1)
		    < t.max_slots
		ORDER BY t.id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, scanErr
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
