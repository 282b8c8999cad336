package cycle

import (
	"github.com/danubeai/flexquiz-service/internal/models"
)

// Ccar is the consecutive-correct-answers policy in effect for a student's
// current cycle.
type Ccar struct {
	// Effective is the mastery threshold applied to question tiering and
	// grade normalization. Zero disables the mechanism.
	Effective int
	// IsRoundup is true while the student is in the final round-up cycle,
	// which relaxes the threshold to a single correct answer.
	IsRoundup bool
}

// CcarFor resolves the ccar policy for a template at the student's current
// cycle number. The round-up relaxation only applies when the template has
// it enabled and no further cycle fits before the end date.
func CcarFor(tpl *models.Template, currentCycle int) Ccar {
	info := Ccar{Effective: tpl.CCAR}
	if tpl.RoundUpCycle {
		if Overflowing(tpl, currentCycle+1) {
			info.IsRoundup = true
			info.Effective = 1
		}
	}
	return info
}
