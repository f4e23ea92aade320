package models

// HallSettings хранит настройки зала: необязательные переопределения взносов
// и процент выручки зала (только для отчётности, ядро резервирования его не читает).
type HallSettings struct {
	HallID              int    `json:"hall_id" db:"hall_id"`
	BaseFeeCents        *int   `json:"base_fee_cents,omitempty" db:"base_fee_cents"`
	NonmemberFeeCents   *int   `json:"nonmember_fee_cents,omitempty" db:"nonmember_fee_cents"`
	RevenueSplitPercent string `json:"revenue_split_percent" db:"revenue_split_percent"`
}
