package repositories

import (
	"context"
	"database/sql"
)

// WebhookEventRepository хранит идентификаторы применённых событий шлюза для
// дедупликации at-least-once доставки. Строка пишется только после того, как
// все эффекты события применены: частично применённое событие не помечается.
type WebhookEventRepository interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, kind string) error
}

type postgresWebhookEventRepository struct {
	db *sql.DB
}

func NewPostgresWebhookEventRepository(db *sql.DB) WebhookEventRepository {
	return &postgresWebhookEventRepository{db: db}
}

func (r *postgresWebhookEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	return exists, err
}

func (r *postgresWebhookEventRepository) MarkProcessed(ctx context.Context, eventID, kind string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (event_id, kind) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, kind,
	)
	return err
}
