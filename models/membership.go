package models

import "time"

// Role tiers. Верхние тиры ("large"/"mega") получают бесплатный вход,
// средние платят базовый взнос, все остальные — взнос не-участника.
const (
	RoleSmall  = "small"
	RoleMedium = "medium"
	RoleLarge  = "large"
	RoleMega   = "mega"
)

type MembershipState string

const (
	MembershipActive   MembershipState = "active"
	MembershipPastDue  MembershipState = "past_due"
	MembershipCanceled MembershipState = "canceled"
)

// MembershipStatus — членство пользователя в лиге и ссылки на платёжный шлюз.
type MembershipStatus struct {
	UserID                 int             `json:"user_id" db:"user_id"`
	Email                  string          `json:"email" db:"email"`
	Role                   string          `json:"role" db:"role"`
	GatewayCustomerRef     *string         `json:"-" db:"gateway_customer_ref"`
	GatewaySubscriptionRef *string         `json:"-" db:"gateway_subscription_ref"`
	Status                 MembershipState `json:"status" db:"status"`
	PeriodEnd              *time.Time      `json:"period_end,omitempty" db:"period_end"`
}
