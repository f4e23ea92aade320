package models

import "time"

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusOffered   WaitlistStatus = "offered"
	WaitlistStatusConverted WaitlistStatus = "converted"
	WaitlistStatusCanceled  WaitlistStatus = "canceled"
)

// WaitlistRow — позиция в листе ожидания турнира. Продвижение строго FIFO
// по created_at. Не более одной нетерминальной строки на пару (турнир, пользователь).
type WaitlistRow struct {
	ID             int            `json:"id" db:"id"`
	TournamentID   int            `json:"tournament_id" db:"tournament_id"`
	UserID         int            `json:"user_id" db:"user_id"`
	Email          string         `json:"-" db:"email"`
	Status         WaitlistStatus `json:"status" db:"status"`
	OfferURL       *string        `json:"offer_url,omitempty" db:"offer_url"`
	OfferReference *string        `json:"-" db:"offer_reference"`
	OfferExpiresAt *time.Time     `json:"offer_expires_at,omitempty" db:"offer_expires_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// OfferExpired reports whether an outstanding offer has passed its deadline.
// Expiry is checked lazily at promotion time; there is no background timer.
func (w *WaitlistRow) OfferExpired(now time.Time) bool {
	return w.Status == WaitlistStatusOffered && w.OfferExpiresAt != nil && w.OfferExpiresAt.Before(now)
}
