package models

import "time"

// EntryStatus представляет статусы записи на турнир, соответствующие ENUM в БД.
type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "pending"
	EntryStatusPaid     EntryStatus = "paid"
	EntryStatusComped   EntryStatus = "comped"
	EntryStatusRefunded EntryStatus = "refunded"
	EntryStatusFailed   EntryStatus = "failed"
)

// Entry — запись пользователя на турнир. Не более одной на пару (турнир, пользователь).
// Переходы статусов монотонны: pending→paid|failed; любой→refunded.
type Entry struct {
	ID               int         `json:"id" db:"id"`
	TournamentID     int         `json:"tournament_id" db:"tournament_id"`
	UserID           int         `json:"user_id" db:"user_id"`
	AmountCents      int         `json:"amount_cents" db:"amount_cents"`
	Status           EntryStatus `json:"status" db:"status"`
	PaymentReference *string     `json:"payment_reference,omitempty" db:"payment_reference"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

// HoldsSlot reports whether the entry counts against tournament capacity.
func (e *Entry) HoldsSlot() bool {
	switch e.Status {
	case EntryStatusPending, EntryStatusPaid, EntryStatusComped:
		return true
	}
	return false
}
