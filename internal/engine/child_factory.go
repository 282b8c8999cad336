package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danubeai/flexquiz-service/internal/integration"
	"github.com/danubeai/flexquiz-service/internal/models"
)

// materializeChild creates the next quiz instance in the delivery subsystem
// and returns its id together with the group restricting it to the student.
// A student replacing an active quiz gets the template's pause before the
// new one opens.
func (e *Engine) materializeChild(ctx context.Context, tpl *models.Template, progress *models.StudentProgress, instance int, questions []models.SelectedQuestion, earliestStart, now int64) (string, string, error) {
	groupID := progress.GroupID
	if groupID == "" {
		gid, err := e.quizzes.EnsureGroupRestriction(ctx, tpl.CourseID, tpl.SectionID, progress.StudentID)
		if err != nil {
			return "", "", fmt.Errorf("failed to ensure group restriction: %w", err)
		}
		groupID = gid
	}

	start := now
	active, err := e.children.GetActiveByProgress(ctx, progress.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("failed to check for active child quiz: %w", err)
	}
	if active != nil {
		start += tpl.PauseDuration
	}
	if earliestStart > start {
		start = earliestStart
	}

	quizID, err := e.quizzes.CreateQuiz(ctx, &integration.CreateQuizRequest{
		CourseID:     tpl.CourseID,
		SectionID:    tpl.SectionID,
		Name:         fmt.Sprintf("%s iteration %d", tpl.Name, instance),
		GroupID:      groupID,
		TimeLimit:    tpl.CustomTimeLimit,
		AvailableAt:  start,
		KeepOrdering: hasPositions(questions),
		Questions:    questions,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create child quiz: %w", err)
	}

	return quizID, groupID, nil
}

func hasPositions(questions []models.SelectedQuestion) bool {
	for _, q := range questions {
		if q.Position > 0 {
			return true
		}
	}
	return false
}
