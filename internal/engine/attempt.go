package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danubeai/flexquiz-service/internal/cycle"
	"github.com/danubeai/flexquiz-service/internal/integration"
	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/internal/ranker"
	"github.com/danubeai/flexquiz-service/pkg/utils"
)

// HandleAttemptCompleted processes one submitted attempt on a child quiz:
// grades the answered questions, transitions the cycle if the clock moved
// on, selects the next question set and materializes the follow-up quiz.
// Attempts on quizzes this service does not manage are ignored.
func (e *Engine) HandleAttemptCompleted(ctx context.Context, event *models.AttemptSubmittedEvent) error {
	progress, err := e.progress.GetByQuizID(ctx, event.QuizID)
	if errors.Is(err, sql.ErrNoRows) {
		e.logger.Debug().Str("quiz_id", event.QuizID).Msg("Attempt on unmanaged quiz, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve student progress: %w", err)
	}

	tpl, err := e.templates.GetByID(ctx, progress.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	now := e.now().Unix()

	pool, err := e.quizzes.GetQuestionPool(ctx, tpl.ParentQuizID)
	if err != nil {
		return fmt.Errorf("failed to fetch question pool: %w", err)
	}

	poolSet := make(map[string]bool, len(pool))
	poolIDs := make([]string, 0, len(pool))
	for _, q := range pool {
		poolSet[q.ID] = true
		poolIDs = append(poolIDs, q.ID)
	}

	// Only answers to questions still in the pool count.
	var attempted []models.AttemptQuestion
	var tasks []integration.SelectorTask
	var sumScores float64
	for _, q := range event.Questions {
		if !poolSet[q.QuestionID] {
			continue
		}
		attempted = append(attempted, q)
		sumScores += q.Fraction
		tasks = append(tasks, integration.SelectorTask{
			TaskID:   q.QuestionID,
			Score:    q.Fraction,
			QType:    q.QType,
			Position: q.Position,
		})
	}
	count := len(attempted)

	info := cycle.Current(tpl, now)
	currentCycle := info.Number
	sameCycle := progress.CycleNumber == currentCycle
	cc := cycle.CcarFor(tpl, currentCycle)

	perfs, err := e.performance.ListByProgress(ctx, progress.ID)
	if err != nil {
		return fmt.Errorf("failed to load question performance: %w", err)
	}

	instances := progress.Instances
	instancesThisCycle := progress.InstancesThisCycle + 1
	var startTime int64

	if !sameCycle {
		perfs = applyTransition(perfs, progress.CycleNumber, currentCycle, cc, tpl.UsesAI, now)
		instancesThisCycle = 1
		startTime = cycle.NextQuizStart(tpl, currentCycle, now)
	}

	maxCountReached := false
	if !info.HasEnded && sameCycle {
		maxCountReached = tpl.MaxQuizCount > 0 && instancesThisCycle >= tpl.MaxQuizCount
	}

	// Grading runs even when the template has ended, so the final attempt
	// still counts. Selection happens at the same time; an ended template
	// just discards the selection below.
	var selected []models.SelectedQuestion
	var stashReq *models.StashedRequest
	if tpl.UsesAI {
		result := e.selector.GetTasks(ctx, &integration.SelectorRequest{
			UniqueID:  event.UniqueID,
			Type:      integration.SelectorTypeContinue,
			CourseID:  tpl.CourseID,
			PoolID:    tpl.ParentQuizID,
			StudentID: progress.StudentID,
			Cycle:     currentCycle,
			Tasks:     tasks,
			Timestamp: now,
			TaskPool:  poolIDs,
			Min:       tpl.MinQuestions,
			Max:       tpl.MaxQuestions,
			CCAR:      tpl.CCAR,
			Roundup:   cc.IsRoundup,
		})
		if result.OK {
			perfs = applySelectorGrades(perfs, progress.ID, result.Grades, now)
			selected = result.Selected
		} else if e.stashOnFail {
			stashReq = e.buildStash(tpl, progress, event.UniqueID, currentCycle, event.QuizID, tasks, now)
		}
	} else {
		perfs = applyLocalGrades(perfs, progress.ID, attempted, cc.IsRoundup, now)
		selected = ranker.Select(perfs, cc.Effective, tpl.MinQuestions, tpl.MaxQuestions)
	}

	last := false
	if info.HasEnded {
		last = true
		selected = nil
	} else if maxCountReached {
		if cycle.Overflowing(tpl, currentCycle+1) {
			last = true
			selected = nil
		} else {
			// The quota for this cycle is used up; the next quiz waits for
			// the following cycle to begin.
			startTime = tpl.StartDate + int64(currentCycle+1)*tpl.CycleDuration
		}
	}

	// An empty selection during the round-up cycle means the student has
	// worked through everything; there is nothing left to practice.
	if len(selected) == 0 && cc.IsRoundup {
		last = true
	}

	var newChild *models.ChildQuiz
	groupID := progress.GroupID
	if len(selected) > 0 {
		quizID, gid, err := e.materializeChild(ctx, tpl, progress, instances+1, selected, startTime, now)
		if err != nil {
			return err
		}
		newChild = &models.ChildQuiz{
			ID:         utils.GenerateUUID(),
			ProgressID: progress.ID,
			QuizID:     quizID,
			Active:     true,
		}
		groupID = gid
		instances++
	}

	rawGrade := computeRawGrade(perfs, tpl.UsesAI, cc.Effective)

	err = e.progress.InTx(ctx, func(tx *sql.Tx) error {
		locked, err := e.progress.LockByID(ctx, tx, progress.ID)
		if err != nil {
			return fmt.Errorf("failed to lock student progress: %w", err)
		}

		for i := range perfs {
			if err := e.performance.UpsertTx(ctx, tx, &perfs[i]); err != nil {
				return fmt.Errorf("failed to store question performance: %w", err)
			}
		}

		if !tpl.UsesAI && count > 0 {
			roundup := tpl.RoundUpCycle && cycle.Overflowing(tpl, currentCycle+1)
			if err := e.stats.RecordAttemptsTx(ctx, tx, progress.StudentID, count, sumScores, roundup, now); err != nil {
				return fmt.Errorf("failed to update student stats: %w", err)
			}
		}

		if stashReq != nil {
			if err := e.stash.SaveTx(ctx, tx, stashReq); err != nil {
				return fmt.Errorf("failed to stash selector request: %w", err)
			}
		}

		// The completed quiz and any stale sibling go inactive before the
		// replacement is linked.
		if err := e.children.DeactivateTx(ctx, tx, progress.ID); err != nil {
			return fmt.Errorf("failed to deactivate child quizzes: %w", err)
		}
		if newChild != nil {
			if err := e.children.CreateTx(ctx, tx, newChild); err != nil {
				return fmt.Errorf("failed to link child quiz: %w", err)
			}
		}

		locked.CycleNumber = currentCycle
		locked.Instances = instances
		locked.InstancesThisCycle = instancesThisCycle
		locked.GroupID = groupID
		if last {
			locked.Graded = true
		}
		return e.progress.UpdateTx(ctx, tx, locked)
	})
	if err != nil {
		return err
	}

	if err := e.quizzes.CloseQuiz(ctx, event.QuizID); err != nil {
		e.logger.Warn().Err(err).Str("quiz_id", event.QuizID).Msg("Failed to close completed quiz")
	}

	e.afterCommit(ctx, tpl, progress.StudentID, newChild, currentCycle, instances, rawGrade, last)

	e.logger.Info().
		Str("template_id", tpl.ID).
		Str("student_id", progress.StudentID).
		Int("cycle", currentCycle).
		Int("questions_graded", count).
		Bool("graded", last).
		Bool("quiz_created", newChild != nil).
		Msg("Attempt processed")

	return nil
}
