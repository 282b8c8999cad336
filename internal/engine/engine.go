// Package engine implements the per-student practice cycle: grading
// submitted attempts, transitioning cycles, selecting questions and
// materializing child quizzes.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/cycle"
	"github.com/danubeai/flexquiz-service/internal/integration"
	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/internal/repository"
	"github.com/danubeai/flexquiz-service/pkg/utils"
)

const (
	// NewCyclePenalty is subtracted from every question rating per skipped
	// or completed cycle at a transition.
	NewCyclePenalty = 0.5

	// GradeMultiplier scales the 0..1 mastery fraction to the grade range.
	GradeMultiplier = 10.0
)

// EventPublisher emits domain events after a student transaction commits.
type EventPublisher interface {
	PublishQuizCreated(ctx context.Context, event *models.QuizCreatedEvent) error
	PublishStudentGraded(ctx context.Context, event *models.StudentGradedEvent) error
}

// Deps bundles the collaborators the engine is wired with.
type Deps struct {
	Templates   repository.TemplateRepository
	Progress    repository.ProgressRepository
	Performance repository.PerformanceRepository
	Children    repository.ChildQuizRepository
	Stash       repository.StashRepository
	Stats       repository.StatsRepository
	Quizzes     integration.QuizClient
	Gradebook   integration.GradebookClient
	Selector    integration.SelectorClient
	Publisher   EventPublisher
	StashOnFail bool
	Logger      zerolog.Logger
	Now         func() time.Time
}

type Engine struct {
	templates   repository.TemplateRepository
	progress    repository.ProgressRepository
	performance repository.PerformanceRepository
	children    repository.ChildQuizRepository
	stash       repository.StashRepository
	stats       repository.StatsRepository
	quizzes     integration.QuizClient
	gradebook   integration.GradebookClient
	selector    integration.SelectorClient
	publisher   EventPublisher
	stashOnFail bool
	logger      zerolog.Logger
	now         func() time.Time

	sweepsRun     atomic.Int64
	studentsSwept atomic.Int64
	sweepFailures atomic.Int64
	lastSweep     atomic.Int64
}

func New(deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		templates:   deps.Templates,
		progress:    deps.Progress,
		performance: deps.Performance,
		children:    deps.Children,
		stash:       deps.Stash,
		stats:       deps.Stats,
		quizzes:     deps.Quizzes,
		gradebook:   deps.Gradebook,
		selector:    deps.Selector,
		publisher:   deps.Publisher,
		stashOnFail: deps.StashOnFail,
		logger:      deps.Logger,
		now:         now,
	}
}

// SweepCounters reports lifetime sweep activity.
func (e *Engine) SweepCounters() (runs, students, failures, lastUnix int64) {
	return e.sweepsRun.Load(), e.studentsSwept.Load(), e.sweepFailures.Load(), e.lastSweep.Load()
}

// applyTransition rewrites per-question state for a move from oldCycle to
// newCycle. The penalty scales with the number of cycles skipped. Fractions
// reset only in local grading mode; delegated grades stay authoritative.
func applyTransition(perfs []models.QuestionPerformance, oldCycle, newCycle int, cc cycle.Ccar, usesAI bool, now int64) []models.QuestionPerformance {
	multiplier := newCycle - oldCycle

	out := make([]models.QuestionPerformance, len(perfs))
	copy(out, perfs)
	for i := range out {
		p := &out[i]

		if !cc.IsRoundup && cc.Effective > 0 {
			ccas := p.CCAsThisCycle - multiplier
			if ccas > cc.Effective-multiplier {
				ccas = cc.Effective - multiplier
			}
			if ccas < 0 {
				ccas = 0
			}
			p.CCAsThisCycle = ccas
		} else {
			p.CCAsThisCycle = 0
		}

		if cc.IsRoundup {
			p.Rating = 0
		} else {
			p.Rating -= float64(multiplier) * NewCyclePenalty
			if p.Rating < 0 {
				p.Rating = 0
			}
		}

		if !usesAI {
			p.Fraction = 0
		}

		p.TimeModified = now
	}
	return out
}

// applyLocalGrades folds one attempt's scores into the tracked performance.
// A full score extends the consecutive-correct streak; anything less resets
// it.
func applyLocalGrades(perfs []models.QuestionPerformance, progressID string, questions []models.AttemptQuestion, isRoundup bool, now int64) []models.QuestionPerformance {
	index := make(map[string]int, len(perfs))
	for i, p := range perfs {
		index[p.QuestionID] = i
	}

	out := perfs
	for _, q := range questions {
		if i, ok := index[q.QuestionID]; ok {
			p := &out[i]
			p.Rating = q.Fraction
			p.Fraction = q.Fraction
			p.Attempts++
			if q.Fraction < 1.0 {
				p.CCAsThisCycle = 0
			} else {
				p.CCAsThisCycle++
			}
			p.RoundupComplete = isRoundup
			p.TimeModified = now
			continue
		}

		ccas := 0
		if q.Fraction >= 1.0 {
			ccas = 1
		}
		out = append(out, models.QuestionPerformance{
			ID:              utils.GenerateUUID(),
			ProgressID:      progressID,
			QuestionID:      q.QuestionID,
			QType:           q.QType,
			Rating:          q.Fraction,
			Fraction:        q.Fraction,
			Attempts:        1,
			CCAsThisCycle:   ccas,
			RoundupComplete: isRoundup,
			TimeCreated:     now,
			TimeModified:    now,
		})
		index[q.QuestionID] = len(out) - 1
	}
	return out
}

// applySelectorGrades records authoritative grades from the external
// selector. Only fractions change; ratings and streaks are local concepts.
func applySelectorGrades(perfs []models.QuestionPerformance, progressID string, grades []integration.SelectorGrade, now int64) []models.QuestionPerformance {
	index := make(map[string]int, len(perfs))
	for i, p := range perfs {
		index[p.QuestionID] = i
	}

	out := perfs
	for _, g := range grades {
		if i, ok := index[g.QuestionID]; ok {
			out[i].Fraction = g.Grade
			out[i].TimeModified = now
			continue
		}

		out = append(out, models.QuestionPerformance{
			ID:           utils.GenerateUUID(),
			ProgressID:   progressID,
			QuestionID:   g.QuestionID,
			Fraction:     g.Grade,
			TimeCreated:  now,
			TimeModified: now,
		})
		index[g.QuestionID] = len(out) - 1
	}
	return out
}

// computeRawGrade derives the template grade from tracked questions. In
// local mode with a positive ccar the streak counters are graded against the
// threshold; otherwise the fraction average counts directly.
func computeRawGrade(perfs []models.QuestionPerformance, usesAI bool, effectiveCCAR int) float64 {
	count := len(perfs)
	if count == 0 {
		return 0
	}

	var sum float64
	factor := 1.0
	if !usesAI && effectiveCCAR > 0 {
		for _, p := range perfs {
			sum += float64(p.CCAsThisCycle)
		}
		factor = float64(effectiveCCAR)
	} else {
		for _, p := range perfs {
			sum += p.Fraction
		}
	}

	raw := GradeMultiplier * ((sum / float64(count)) / factor)
	if raw > GradeMultiplier {
		raw = GradeMultiplier
	}
	return raw
}

func (e *Engine) buildStash(tpl *models.Template, progress *models.StudentProgress, uniqueID string, cycleNumber int, quizID string, tasks []integration.SelectorTask, now int64) *models.StashedRequest {
	stash := &models.StashedRequest{
		ID:           utils.GenerateUUID(),
		ProgressID:   progress.ID,
		UniqueID:     uniqueID,
		Cycle:        cycleNumber,
		QuizID:       quizID,
		CourseID:     tpl.CourseID,
		ParentQuizID: tpl.ParentQuizID,
		StudentID:    progress.StudentID,
		MinQuestions: tpl.MinQuestions,
		MaxQuestions: tpl.MaxQuestions,
		TimeCreated:  now,
		TimeModified: now,
	}
	for _, t := range tasks {
		stash.Scores = append(stash.Scores, models.StashedScore{
			ID:         utils.GenerateUUID(),
			StashID:    stash.ID,
			QuestionID: t.TaskID,
			Score:      t.Score,
			QType:      t.QType,
			Position:   t.Position,
		})
	}
	return stash
}

func (e *Engine) afterCommit(ctx context.Context, tpl *models.Template, studentID string, newChild *models.ChildQuiz, cycleNumber, instance int, rawGrade float64, last bool) {
	if err := e.gradebook.PushGrade(ctx, tpl.ID, studentID, rawGrade); err != nil {
		e.logger.Warn().Err(err).
			Str("template_id", tpl.ID).
			Str("student_id", studentID).
			Msg("Failed to push grade to gradebook")
	}

	if newChild != nil {
		event := &models.QuizCreatedEvent{
			TemplateID: tpl.ID,
			StudentID:  studentID,
			QuizID:     newChild.QuizID,
			Cycle:      cycleNumber,
			Instance:   instance,
			CreatedAt:  e.now(),
		}
		if err := e.publisher.PublishQuizCreated(ctx, event); err != nil {
			e.logger.Warn().Err(err).Str("quiz_id", newChild.QuizID).Msg("Failed to publish quiz created event")
		}
	}

	if last {
		event := &models.StudentGradedEvent{
			TemplateID: tpl.ID,
			StudentID:  studentID,
			RawGrade:   rawGrade,
			GradedAt:   e.now(),
		}
		if err := e.publisher.PublishStudentGraded(ctx, event); err != nil {
			e.logger.Warn().Err(err).Str("student_id", studentID).Msg("Failed to publish student graded event")
		}
	}
}
