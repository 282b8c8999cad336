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

// Sweep walks every ungraded student of every enabled template and brings
// them up to date: overdue cycle transitions, missing quizzes, stashed
// selector retries and final grading. One failing student never blocks the
// rest.
func (e *Engine) Sweep(ctx context.Context) {
	e.sweepsRun.Add(1)

	templates, err := e.templates.ListActive(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Sweep failed to list templates")
		e.sweepFailures.Add(1)
		return
	}

	for i := range templates {
		tpl := &templates[i]

		progressList, err := e.progress.ListByTemplate(ctx, tpl.ID)
		if err != nil {
			e.logger.Error().Err(err).Str("template_id", tpl.ID).Msg("Sweep failed to list students")
			e.sweepFailures.Add(1)
			continue
		}

		for j := range progressList {
			prog := &progressList[j]
			if prog.Graded {
				continue
			}

			if err := e.SweepStudent(ctx, tpl, prog); err != nil {
				e.logger.Error().Err(err).
					Str("template_id", tpl.ID).
					Str("student_id", prog.StudentID).
					Msg("Sweep failed for student")
				e.sweepFailures.Add(1)
				continue
			}
			e.studentsSwept.Add(1)
		}
	}

	e.lastSweep.Store(e.now().Unix())
}

// SweepStudent reconciles one student with the cycle clock. It transitions
// overdue cycles, creates a quiz when none is active and one is due, resends
// stashed selector requests and finalizes the grade once the template has
// ended.
func (e *Engine) SweepStudent(ctx context.Context, tpl *models.Template, prog *models.StudentProgress) error {
	now := e.now().Unix()
	info := cycle.Current(tpl, now)
	currentCycle := info.Number
	isNewCycle := currentCycle > prog.CycleNumber
	cc := cycle.CcarFor(tpl, currentCycle)

	perfs, err := e.performance.ListByProgress(ctx, prog.ID)
	if err != nil {
		return fmt.Errorf("failed to load question performance: %w", err)
	}

	active, err := e.children.GetActiveByProgress(ctx, prog.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check active child quiz: %w", err)
	}
	hasActive := active != nil

	instances := prog.Instances
	instancesThisCycle := prog.InstancesThisCycle
	var startTime int64
	var selected []models.SelectedQuestion
	var stashReq *models.StashedRequest
	var consumedStash []string
	last := info.HasEnded

	if !info.HasEnded {
		if isNewCycle {
			perfs = applyTransition(perfs, prog.CycleNumber, currentCycle, cc, tpl.UsesAI, now)
			instancesThisCycle = 0
			startTime = cycle.NextQuizStart(tpl, currentCycle, now)
		}

		if !hasActive {
			var stashed []models.StashedRequest
			if tpl.UsesAI {
				stashed, err = e.stash.ListByProgress(ctx, prog.ID)
				if err != nil {
					return fmt.Errorf("failed to load stashed requests: %w", err)
				}
			}

			if isNewCycle || len(stashed) > 0 || prog.Instances == 0 {
				if tpl.UsesAI {
					selected, perfs, stashReq, consumedStash, err = e.selectorExchange(ctx, tpl, prog, perfs, stashed, currentCycle, cc, now)
					if err != nil {
						return err
					}
				} else if len(perfs) == 0 {
					// First quiz: no history to rank, draw from the pool.
					pool, err := e.quizzes.GetQuestionPool(ctx, tpl.ParentQuizID)
					if err != nil {
						return fmt.Errorf("failed to fetch question pool: %w", err)
					}
					selected = ranker.Random(pool, tpl.MaxQuestions)
				} else {
					selected = ranker.Select(perfs, cc.Effective, tpl.MinQuestions, tpl.MaxQuestions)
				}
			}
		} else if isNewCycle && tpl.UsesAI {
			// The active quiz stays; the selector still learns about the
			// transition and returns fresh grades.
			result := e.reportToSelector(ctx, tpl, prog, currentCycle, cc, now)
			if result.OK {
				perfs = applySelectorGrades(perfs, prog.ID, result.Grades, now)
			}
		}
	} else {
		if prog.CycleNumber != currentCycle {
			perfs = applyTransition(perfs, prog.CycleNumber, currentCycle, cc, tpl.UsesAI, now)
			instancesThisCycle = 1
		}
		if tpl.UsesAI {
			result := e.reportToSelector(ctx, tpl, prog, currentCycle, cc, now)
			if result.OK {
				perfs = applySelectorGrades(perfs, prog.ID, result.Grades, now)
			}
		}
	}

	var newChild *models.ChildQuiz
	groupID := prog.GroupID
	if len(selected) > 0 {
		quizID, gid, err := e.materializeChild(ctx, tpl, prog, instances+1, selected, startTime, now)
		if err != nil {
			return err
		}
		newChild = &models.ChildQuiz{
			ID:         utils.GenerateUUID(),
			ProgressID: prog.ID,
			QuizID:     quizID,
			Active:     true,
		}
		groupID = gid
		instances++
	}

	rawGrade := computeRawGrade(perfs, tpl.UsesAI, cc.Effective)

	err = e.progress.InTx(ctx, func(tx *sql.Tx) error {
		locked, err := e.progress.LockByID(ctx, tx, prog.ID)
		if err != nil {
			return fmt.Errorf("failed to lock student progress: %w", err)
		}

		for i := range perfs {
			if err := e.performance.UpsertTx(ctx, tx, &perfs[i]); err != nil {
				return fmt.Errorf("failed to store question performance: %w", err)
			}
		}

		for _, id := range consumedStash {
			if err := e.stash.DeleteTx(ctx, tx, id); err != nil {
				return fmt.Errorf("failed to delete stashed request: %w", err)
			}
		}
		if stashReq != nil {
			if err := e.stash.SaveTx(ctx, tx, stashReq); err != nil {
				return fmt.Errorf("failed to stash selector request: %w", err)
			}
		}

		if newChild != nil || last {
			if err := e.children.DeactivateTx(ctx, tx, prog.ID); err != nil {
				return fmt.Errorf("failed to deactivate child quizzes: %w", err)
			}
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

	e.afterCommit(ctx, tpl, prog.StudentID, newChild, currentCycle, instances, rawGrade, last)

	return nil
}

// selectorExchange merges any stashed requests with the due selection call.
// Stashes are consumed either way; a failed call re-stashes the merged
// payload so no score report is lost.
func (e *Engine) selectorExchange(
	ctx context.Context,
	tpl *models.Template,
	prog *models.StudentProgress,
	perfs []models.QuestionPerformance,
	stashed []models.StashedRequest,
	currentCycle int,
	cc cycle.Ccar,
	now int64,
) ([]models.SelectedQuestion, []models.QuestionPerformance, *models.StashedRequest, []string, error) {
	pool, err := e.quizzes.GetQuestionPool(ctx, tpl.ParentQuizID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to fetch question pool: %w", err)
	}
	poolIDs := make([]string, 0, len(pool))
	for _, q := range pool {
		poolIDs = append(poolIDs, q.ID)
	}

	uniqueID := "DummyId"
	quizID := tpl.ParentQuizID
	var tasks []integration.SelectorTask
	var consumed []string
	for _, s := range stashed {
		uniqueID = s.UniqueID
		quizID = s.QuizID
		for _, sc := range s.Scores {
			tasks = append(tasks, integration.SelectorTask{
				TaskID:   sc.QuestionID,
				Score:    sc.Score,
				QType:    sc.QType,
				Position: sc.Position,
			})
		}
		consumed = append(consumed, s.ID)
	}

	reqType := integration.SelectorTypeContinue
	if prog.Instances == 0 {
		reqType = integration.SelectorTypeInitialize
	}

	result := e.selector.GetTasks(ctx, &integration.SelectorRequest{
		UniqueID:  uniqueID,
		Type:      reqType,
		CourseID:  tpl.CourseID,
		PoolID:    tpl.ParentQuizID,
		StudentID: prog.StudentID,
		Cycle:     currentCycle,
		Tasks:     tasks,
		Timestamp: now,
		TaskPool:  poolIDs,
		Min:       tpl.MinQuestions,
		Max:       tpl.MaxQuestions,
		CCAR:      tpl.CCAR,
		Roundup:   cc.IsRoundup,
	})

	if !result.OK {
		var stashReq *models.StashedRequest
		if e.stashOnFail {
			stashReq = e.buildStash(tpl, prog, uniqueID, currentCycle, quizID, tasks, now)
		}
		return nil, perfs, stashReq, consumed, nil
	}

	perfs = applySelectorGrades(perfs, prog.ID, result.Grades, now)
	return result.Selected, perfs, nil, consumed, nil
}

// reportToSelector sends an empty attempt report so delegated grading stays
// current even when no quiz is being created.
func (e *Engine) reportToSelector(ctx context.Context, tpl *models.Template, prog *models.StudentProgress, currentCycle int, cc cycle.Ccar, now int64) integration.SelectorResult {
	return e.selector.GetTasks(ctx, &integration.SelectorRequest{
		UniqueID:  "DummyId",
		Type:      integration.SelectorTypeContinue,
		CourseID:  tpl.CourseID,
		PoolID:    tpl.ParentQuizID,
		StudentID: prog.StudentID,
		Cycle:     currentCycle,
		Timestamp: now,
		Min:       tpl.MinQuestions,
		Max:       tpl.MaxQuestions,
		CCAR:      tpl.CCAR,
		Roundup:   cc.IsRoundup,
	})
}
