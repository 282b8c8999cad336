// Package cycle implements the pure cycle arithmetic every transition and
// termination decision depends on. All functions are deterministic and free
// of side effects.
package cycle

import (
	"github.com/danubeai/flexquiz-service/internal/models"
)

// Info describes where a template stands at a given point in time.
type Info struct {
	Number   int
	HasEnded bool
}

// Current returns the active cycle index and end-of-activity status for a
// template at the given unix timestamp.
//
// A template without a cycle duration has exactly one cycle, number 0. An
// ended template is evaluated at its end date rather than at now. When the
// computed cycle would already overflow the end date, the previous cycle is
// still the last valid one and the template counts as ended.
func Current(tpl *models.Template, now int64) Info {
	end := tpl.EndDate
	hasEnded := end > 0 && end < now

	var number int
	if tpl.CycleDuration == 0 {
		number = 0
	} else {
		checkpoint := now
		if hasEnded {
			checkpoint = end
		}
		number = int((checkpoint - tpl.StartDate) / tpl.CycleDuration)
		if number < 0 {
			number = 0
		}
	}

	if number > 0 && Overflowing(tpl, number) {
		number--
		hasEnded = true
	}

	return Info{Number: number, HasEnded: hasEnded}
}

// Overflowing reports whether the given cycle exceeds the template's end
// date. The boundary check is strict: a cycle ending exactly on the end
// date does not overflow.
func Overflowing(tpl *models.Template, cycle int) bool {
	if tpl.CycleDuration == 0 {
		return cycle > 0
	}
	if tpl.EndDate == 0 {
		return false
	}
	return tpl.StartDate+int64(cycle+1)*tpl.CycleDuration > tpl.EndDate
}

// NextQuizStart returns the earliest start time for a quiz belonging to the
// given cycle: the cycle's nominal begin, or now if that has already passed.
func NextQuizStart(tpl *models.Template, cycle int, now int64) int64 {
	start := tpl.StartDate + int64(cycle)*tpl.CycleDuration
	if start < now {
		start = now
	}
	return start
}
