// Package ranker implements the rule-based question selection policy used
// when a template does not delegate to the external selector.
package ranker

import (
	"math/rand"
	"sort"

	"github.com/danubeai/flexquiz-service/internal/models"
)

// MaxQuestionsDefault caps a child quiz when the template sets no maximum.
const MaxQuestionsDefault = 10

type candidate struct {
	id           string
	qtype        string
	score        float64
	timeModified int64
	// tier 0: question still below the ccar threshold, must be reused.
	// tier 1: mastered this cycle.
	tier int
}

// Select picks the next child quiz's questions from the student's tracked
// performance. Candidates below the ccar threshold come first, then lowest
// rating, then least recently touched. The walk stops at the first mastered
// candidate whose rating has reached 1.0 once the minimum floor is
// satisfied, and always stops at the maximum.
//
// An empty result means no quiz should be created.
func Select(perfs []models.QuestionPerformance, effectiveCCAR, minQuestions, maxQuestions int) []models.SelectedQuestion {
	candidates := make([]candidate, 0, len(perfs))
	for _, p := range perfs {
		if p.RoundupComplete {
			continue
		}
		tier := 1
		if p.CCAsThisCycle < effectiveCCAR {
			tier = 0
		}
		candidates = append(candidates, candidate{
			id:           p.QuestionID,
			qtype:        p.QType,
			score:        p.Rating,
			timeModified: p.TimeModified,
			tier:         tier,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.score != b.score {
			return a.score < b.score
		}
		return a.timeModified < b.timeModified
	})

	max := maxQuestions
	if max == 0 {
		max = MaxQuestionsDefault
	}
	min := minQuestions
	if min > max {
		min = max
	}

	result := make([]models.SelectedQuestion, 0, max)
	for _, c := range candidates {
		mastered := c.tier >= 1
		if mastered && c.score >= 1.0 && !(min > 0 && len(result) < min) {
			return result
		}
		result = append(result, models.SelectedQuestion{ID: c.id, QType: c.qtype})
		if len(result) >= max {
			return result
		}
	}
	return result
}

// Random picks up to max questions uniformly from the pool, used for a
// student's very first quiz when there is no performance history yet.
func Random(pool []models.PoolQuestion, maxQuestions int) []models.SelectedQuestion {
	max := maxQuestions
	if max == 0 {
		max = MaxQuestionsDefault
	}
	if max > len(pool) {
		max = len(pool)
	}

	picked := make([]models.PoolQuestion, len(pool))
	copy(picked, pool)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})

	result := make([]models.SelectedQuestion, 0, max)
	for _, q := range picked[:max] {
		result = append(result, models.SelectedQuestion{ID: q.ID, QType: q.QType})
	}
	return result
}
