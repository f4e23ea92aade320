package models

import "time"

// Tournament представляет турнир с ограниченным числом слотов.
// IsOpen становится false, когда занятые слоты достигают MaxSlots,
// и открывается снова при отмене, возврате или выдаче оффера из листа ожидания.
type Tournament struct {
	ID        int       `json:"id" db:"id"`
	HallID    *int      `json:"hall_id,omitempty" db:"hall_id"`
	MaxSlots  int       `json:"max_slots" db:"max_slots"`
	IsOpen    bool      `json:"is_open" db:"is_open"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
