// Package fees computes tournament entry fees from the entrant's membership
// tier and per-hall price overrides. Pure and deterministic: no I/O, no clock.
package fees

import "github.com/Dosada05/league-reservations/models"

// Overrides carries the effective price table for one computation: the
// configured league-wide defaults plus optional per-hall overrides.
type Overrides struct {
	BaseCents        *int
	NonmemberCents   *int
	DefaultBase      int
	DefaultNonmember int
}

// Compute returns the entry fee in minor currency units for the given role
// tier. Top tiers enter free (comped), mid tiers pay the base fee, and any
// other role — including an empty or unknown one — pays the nonmember fee.
// Unknown roles never error: they fall through to the most expensive bucket.
func Compute(role string, ov Overrides) int {
	switch role {
	case models.RoleLarge, models.RoleMega:
		return 0
	case models.RoleSmall, models.RoleMedium:
		if ov.BaseCents != nil {
			return *ov.BaseCents
		}
		return ov.DefaultBase
	default:
		if ov.NonmemberCents != nil {
			return *ov.NonmemberCents
		}
		return ov.DefaultNonmember
	}
}

// FromHallSettings builds Overrides from optional hall settings and the
// configured defaults. A nil settings pointer means no hall, no overrides.
func FromHallSettings(hs *models.HallSettings, defaultBase, defaultNonmember int) Overrides {
	ov := Overrides{DefaultBase: defaultBase, DefaultNonmember: defaultNonmember}
	if hs != nil {
		ov.BaseCents = hs.BaseFeeCents
		ov.NonmemberCents = hs.NonmemberFeeCents
	}
	return ov
}
