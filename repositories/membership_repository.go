package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/league-reservations/models"
)

var ErrMembershipNotFound = errors.New("membership not found")

type MembershipRepository interface {
	GetByUserID(ctx context.Context, userID int) (*models.MembershipStatus, error)
	FindBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.MembershipStatus, error)
	Upsert(ctx context.Context, m *models.MembershipStatus) error
}

type postgresMembershipRepository struct {
	db *sql.DB
}

func NewPostgresMembershipRepository(db *sql.DB) MembershipRepository {
	return &postgresMembershipRepository{db: db}
}

const membershipColumns = `user_id, email, role, gateway_customer_ref, gateway_subscription_ref, status, period_end`

func scanMembership(row *sql.Row) (*models.MembershipStatus, error) {
	m := &models.MembershipStatus{}
	err := row.Scan(&m.UserID, &m.Email, &m.Role, &m.GatewayCustomerRef, &m.GatewaySubscriptionRef, &m.Status, &m.PeriodEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMembershipRepository) GetByUserID(ctx context.Context, userID int) (*models.MembershipStatus, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE user_id = $1`
	return scanMembership(r.db.QueryRowContext(ctx, query, userID))
}

func (r *postgresMembershipRepository) FindBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.MembershipStatus, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE gateway_subscription_ref = $1`
	return scanMembership(r.db.QueryRowContext(ctx, query, subscriptionRef))
}

func (r *postgresMembershipRepository) Upsert(ctx context.Context, m *models.MembershipStatus) error {
	query := `
		INSERT INTO memberships (user_id, email, role, gateway_customer_ref, gateway_subscription_ref, status, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			gateway_customer_ref = EXCLUDED.gateway_customer_ref,
			gateway_subscription_ref = EXCLUDED.gateway_subscription_ref,
			status = EXCLUDED.status,
			period_end = EXCLUDED.period_end`

	_, err := r.db.ExecContext(ctx, query,
		m.UserID, m.Email, m.Role, m.GatewayCustomerRef, m.GatewaySubscriptionRef, m.Status, m.PeriodEnd,
	)
	return err
}
