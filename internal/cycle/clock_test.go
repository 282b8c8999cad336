package cycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danubeai/flexquiz-service/internal/models"
)

func tpl(start, end, duration int64) *models.Template {
	return &models.Template{
		StartDate:     start,
		EndDate:       end,
		CycleDuration: duration,
	}
}

func TestCurrentSingleCycleTemplates(t *testing.T) {
	testCases := []struct {
		name     string
		template *models.Template
		now      int64
		want     Info
	}{
		{"no duration no end", tpl(0, 0, 0), 1_000_000, Info{0, false}},
		{"no duration before end", tpl(0, 500, 0), 400, Info{0, false}},
		{"no duration after end", tpl(0, 500, 0), 501, Info{0, true}},
		{"no duration at end", tpl(0, 500, 0), 500, Info{0, false}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Current(tc.template, tc.now))
		})
	}
}

func TestCurrentRepeatingCycles(t *testing.T) {
	testCases := []struct {
		name     string
		template *models.Template
		now      int64
		want     Info
	}{
		{"first cycle", tpl(0, 0, 100), 50, Info{0, false}},
		{"second cycle", tpl(0, 0, 100), 150, Info{1, false}},
		{"cycle boundary", tpl(0, 0, 100), 100, Info{1, false}},
		{"offset start", tpl(1000, 0, 100), 1250, Info{2, false}},
		{"before start clamps to zero", tpl(1000, 0, 100), 999, Info{0, false}},
		// Checkpoint moves to the end date once the template has ended.
		{"ended mid third cycle", tpl(0, 250, 100), 260, Info{1, true}},
		{"ended exact fit", tpl(0, 300, 100), 500, Info{2, true}},
		{"running not overflowing", tpl(0, 300, 100), 150, Info{1, false}},
		{"running cycle would overflow", tpl(0, 250, 100), 220, Info{1, true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Current(tc.template, tc.now))
		})
	}
}

func TestOverflowing(t *testing.T) {
	testCases := []struct {
		name     string
		template *models.Template
		cycle    int
		want     bool
	}{
		{"no duration cycle zero", tpl(0, 500, 0), 0, false},
		{"no duration cycle one", tpl(0, 500, 0), 1, true},
		{"unbounded never overflows", tpl(0, 0, 100), 99, false},
		{"fits exactly", tpl(0, 300, 100), 2, false},
		{"one past the end", tpl(0, 300, 100), 3, true},
		{"partial last cycle", tpl(0, 250, 100), 2, true},
		{"offset start", tpl(1000, 1250, 100), 1, false},
		{"offset start overflow", tpl(1000, 1250, 100), 2, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overflowing(tc.template, tc.cycle))
		})
	}
}

// Once a cycle overflows, every later cycle must overflow as well.
func TestOverflowingMonotonic(t *testing.T) {
	templates := []*models.Template{
		tpl(0, 250, 100),
		tpl(0, 300, 100),
		tpl(500, 1234, 77),
		tpl(0, 500, 0),
	}

	for _, template := range templates {
		overflowed := false
		for c := 1; c < 50; c++ {
			if Overflowing(template, c) {
				overflowed = true
			} else {
				assert.False(t, overflowed, "overflow must be monotonic from cycle %d", c)
			}
		}
	}
}

func TestNextQuizStart(t *testing.T) {
	template := tpl(1000, 0, 100)

	// Nominal cycle begin lies in the future.
	assert.Equal(t, int64(1300), NextQuizStart(template, 3, 1100))
	// Nominal begin has passed, start immediately.
	assert.Equal(t, int64(1350), NextQuizStart(template, 3, 1350))
}

func TestCcarFor(t *testing.T) {
	t.Run("no roundup keeps template ccar", func(t *testing.T) {
		template := tpl(0, 250, 100)
		template.CCAR = 3

		got := CcarFor(template, 0)
		assert.Equal(t, Ccar{Effective: 3, IsRoundup: false}, got)
	})

	t.Run("roundup forces ccar of one in the last cycle", func(t *testing.T) {
		template := tpl(0, 250, 100)
		template.CCAR = 3
		template.RoundUpCycle = true

		// Cycle 2 would overflow, so cycle 1 is the round-up cycle.
		got := CcarFor(template, 1)
		assert.Equal(t, Ccar{Effective: 1, IsRoundup: true}, got)

		got = CcarFor(template, 0)
		assert.Equal(t, Ccar{Effective: 3, IsRoundup: false}, got)
	})

	t.Run("roundup disabled leaves ccar alone in the last cycle", func(t *testing.T) {
		template := tpl(0, 250, 100)
		template.CCAR = 3

		got := CcarFor(template, 1)
		assert.Equal(t, Ccar{Effective: 3, IsRoundup: false}, got)
	})
}
