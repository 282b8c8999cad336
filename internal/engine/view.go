package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danubeai/flexquiz-service/internal/cycle"
	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/pkg/utils"
)

// ErrTemplateDisabled is returned when a student is requested for a template
// that has not been published yet.
var ErrTemplateDisabled = errors.New("template is not published")

// EnsureStudent returns the progress row for a (template, student) pair,
// creating it and the student's first quiz when the student is seen for the
// first time.
func (e *Engine) EnsureStudent(ctx context.Context, templateID, studentID string) (*models.StudentProgress, error) {
	tpl, err := e.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tpl.Disabled {
		return nil, ErrTemplateDisabled
	}

	prog, err := e.progress.GetByTemplateAndStudent(ctx, templateID, studentID)
	if err == nil {
		return prog, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load student progress: %w", err)
	}

	now := e.now().Unix()
	fresh := &models.StudentProgress{
		ID:          utils.GenerateUUID(),
		TemplateID:  templateID,
		StudentID:   studentID,
		CycleNumber: cycle.Current(tpl, now).Number,
	}
	if err := e.progress.Create(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to create student progress: %w", err)
	}

	// Re-read to cover a concurrent creation winning the insert.
	prog, err = e.progress.GetByTemplateAndStudent(ctx, templateID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload student progress: %w", err)
	}

	// The sweep path creates the first quiz. Its failure leaves the row in
	// place; the periodic sweep retries.
	if err := e.SweepStudent(ctx, tpl, prog); err != nil {
		e.logger.Warn().Err(err).
			Str("template_id", templateID).
			Str("student_id", studentID).
			Msg("Initial quiz creation failed, sweep will retry")
		return prog, nil
	}

	prog, err = e.progress.GetByTemplateAndStudent(ctx, templateID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload student progress: %w", err)
	}
	return prog, nil
}

// CreateFirstChildren seeds progress rows and first quizzes for every
// student currently eligible in the template's course. Called when a
// template is published.
func (e *Engine) CreateFirstChildren(ctx context.Context, templateID string) error {
	tpl, err := e.templates.GetByID(ctx, templateID)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	students, err := e.quizzes.ListEligibleStudents(ctx, tpl.CourseID)
	if err != nil {
		return fmt.Errorf("failed to list eligible students: %w", err)
	}

	for _, studentID := range students {
		if _, err := e.EnsureStudent(ctx, templateID, studentID); err != nil {
			e.logger.Error().Err(err).
				Str("template_id", templateID).
				Str("student_id", studentID).
				Msg("Failed to seed student")
		}
	}

	e.logger.Info().
		Str("template_id", templateID).
		Int("students", len(students)).
		Msg("First children created")

	return nil
}

// StudentView assembles the dashboard payload for one (template, student)
// pair. Requesting the view doubles as the lazy creation trigger for
// students enrolled after publication.
func (e *Engine) StudentView(ctx context.Context, templateID, studentID string) (*models.StudentView, error) {
	tpl, err := e.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	prog, err := e.EnsureStudent(ctx, templateID, studentID)
	if err != nil {
		return nil, err
	}

	perfs, err := e.performance.ListByProgress(ctx, prog.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question performance: %w", err)
	}

	active, err := e.children.GetActiveByProgress(ctx, prog.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load active child quiz: %w", err)
	}

	now := e.now().Unix()
	cc := cycle.CcarFor(tpl, prog.CycleNumber)

	return &models.StudentView{
		Progress:    prog,
		ActiveQuiz:  active,
		Performance: perfs,
		Grade:       computeRawGrade(perfs, tpl.UsesAI, cc.Effective),
		HasEnded:    cycle.Current(tpl, now).HasEnded,
	}, nil
}
