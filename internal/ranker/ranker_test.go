package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danubeai/flexquiz-service/internal/models"
)

func perf(id string, rating float64, ccas int, timeModified int64) models.QuestionPerformance {
	return models.QuestionPerformance{
		QuestionID:    id,
		QType:         "multichoice",
		Rating:        rating,
		CCAsThisCycle: ccas,
		TimeModified:  timeModified,
	}
}

func ids(selected []models.SelectedQuestion) []string {
	out := make([]string, 0, len(selected))
	for _, s := range selected {
		out = append(out, s.ID)
	}
	return out
}

func TestSelectOrdersByTierScoreAndAge(t *testing.T) {
	perfs := []models.QuestionPerformance{
		perf("mastered-low", 0.5, 2, 10), // tier 1
		perf("weak-new", 0.2, 0, 30),     // tier 0
		perf("weak-old", 0.2, 1, 20),     // tier 0, older
		perf("weak-high", 0.9, 0, 5),     // tier 0, higher score
	}

	got := Select(perfs, 2, 0, 0)

	assert.Equal(t, []string{"weak-old", "weak-new", "weak-high", "mastered-low"}, ids(got))
}

func TestSelectStopsAtMasteredQuestionWithFullRating(t *testing.T) {
	perfs := []models.QuestionPerformance{
		perf("weak", 0.5, 0, 1),
		perf("done", 1.0, 3, 2),
		perf("also-done", 1.5, 3, 3),
	}

	got := Select(perfs, 2, 0, 0)

	assert.Equal(t, []string{"weak"}, ids(got))
}

func TestSelectMinimumFloorOverridesStop(t *testing.T) {
	perfs := []models.QuestionPerformance{
		perf("weak", 0.5, 0, 1),
		perf("done-a", 1.0, 3, 2),
		perf("done-b", 1.2, 3, 3),
	}

	got := Select(perfs, 2, 3, 0)

	assert.Equal(t, []string{"weak", "done-a", "done-b"}, ids(got))
}

func TestSelectMasteredBelowFullRatingIsKept(t *testing.T) {
	perfs := []models.QuestionPerformance{
		perf("mastered-partial", 0.9, 3, 1),
		perf("mastered-full", 1.0, 3, 2),
	}

	got := Select(perfs, 2, 0, 0)

	assert.Equal(t, []string{"mastered-partial"}, ids(got))
}

func TestSelectRespectsMaximum(t *testing.T) {
	var perfs []models.QuestionPerformance
	for i := 0; i < 15; i++ {
		perfs = append(perfs, perf(string(rune('a'+i)), 0.1, 0, int64(i)))
	}

	assert.Len(t, Select(perfs, 2, 0, 4), 4)
	// Default maximum applies when the template sets none.
	assert.Len(t, Select(perfs, 2, 0, 0), MaxQuestionsDefault)
}

func TestSelectMinClampedToMax(t *testing.T) {
	var perfs []models.QuestionPerformance
	for i := 0; i < 8; i++ {
		perfs = append(perfs, perf(string(rune('a'+i)), 1.0, 3, int64(i)))
	}

	got := Select(perfs, 2, 6, 3)

	assert.Len(t, got, 3)
}

func TestSelectSkipsRoundupComplete(t *testing.T) {
	done := perf("retired", 0.1, 0, 1)
	done.RoundupComplete = true
	perfs := []models.QuestionPerformance{done, perf("open", 0.2, 0, 2)}

	got := Select(perfs, 2, 0, 0)

	assert.Equal(t, []string{"open"}, ids(got))
}

func TestSelectEmptyPool(t *testing.T) {
	assert.Empty(t, Select(nil, 2, 1, 5))
}

func TestRandomBoundsAndMembership(t *testing.T) {
	pool := []models.PoolQuestion{
		{ID: "q1", QType: "multichoice"},
		{ID: "q2", QType: "truefalse"},
		{ID: "q3", QType: "shortanswer"},
	}

	got := Random(pool, 2)
	require.Len(t, got, 2)

	seen := map[string]bool{"q1": true, "q2": true, "q3": true}
	for _, q := range got {
		assert.True(t, seen[q.ID], "unexpected question %s", q.ID)
	}

	// Pool smaller than the maximum returns the whole pool.
	assert.Len(t, Random(pool, 10), 3)
	assert.Len(t, Random(pool, 0), 3)
	assert.Empty(t, Random(nil, 5))
}
