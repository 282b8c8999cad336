package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/models"
)

type TemplateRepository interface {
	Create(ctx context.Context, tpl *models.Template) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	GetByParentQuizID(ctx context.Context, parentQuizID string) (*models.Template, error)
	ListActive(ctx context.Context) ([]models.Template, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
}

type templateRepository struct {
	*PostgresRepository
}

func NewTemplateRepository(db *sql.DB, logger zerolog.Logger) TemplateRepository {
	return &templateRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const templateColumns = `
	id, course_id, name, parent_quiz_id, section_id,
	start_date, end_date, cycle_duration, pause_duration,
	min_questions, max_questions, max_quiz_count, ccar,
	roundup_cycle, uses_ai, custom_time_limit, disabled,
	created_at, updated_at
`

func (r *templateRepository) Create(ctx context.Context, tpl *models.Template) error {
	query := `
		INSERT INTO templates (
			id, course_id, name, parent_quiz_id, section_id,
			start_date, end_date, cycle_duration, pause_duration,
			min_questions, max_questions, max_quiz_count, ccar,
			roundup_cycle, uses_ai, custom_time_limit, disabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowContext(ctx, query,
		tpl.ID, tpl.CourseID, tpl.Name, tpl.ParentQuizID, tpl.SectionID,
		tpl.StartDate, tpl.EndDate, tpl.CycleDuration, tpl.PauseDuration,
		tpl.MinQuestions, tpl.MaxQuestions, tpl.MaxQuizCount, tpl.CCAR,
		tpl.RoundUpCycle, tpl.UsesAI, tpl.CustomTimeLimit, tpl.Disabled,
	).Scan(&tpl.CreatedAt, &tpl.UpdatedAt)
}

func (r *templateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`

	return r.scanTemplate(r.db.QueryRowContext(ctx, query, id))
}

func (r *templateRepository) GetByParentQuizID(ctx context.Context, parentQuizID string) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE parent_quiz_id = $1`

	return r.scanTemplate(r.db.QueryRowContext(ctx, query, parentQuizID))
}

func (r *templateRepository) ListActive(ctx context.Context) ([]models.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE NOT disabled
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		var tpl models.Template
		err := rows.Scan(
			&tpl.ID, &tpl.CourseID, &tpl.Name, &tpl.ParentQuizID, &tpl.SectionID,
			&tpl.StartDate, &tpl.EndDate, &tpl.CycleDuration, &tpl.PauseDuration,
			&tpl.MinQuestions, &tpl.MaxQuestions, &tpl.MaxQuizCount, &tpl.CCAR,
			&tpl.RoundUpCycle, &tpl.UsesAI, &tpl.CustomTimeLimit, &tpl.Disabled,
			&tpl.CreatedAt, &tpl.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}

	return templates, rows.Err()
}

func (r *templateRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	query := `UPDATE templates SET disabled = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, disabled, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *templateRepository) scanTemplate(row *sql.Row) (*models.Template, error) {
	tpl := &models.Template{}
	err := row.Scan(
		&tpl.ID, &tpl.CourseID, &tpl.Name, &tpl.ParentQuizID, &tpl.SectionID,
		&tpl.StartDate, &tpl.EndDate, &tpl.CycleDuration, &tpl.PauseDuration,
		&tpl.MinQuestions, &tpl.MaxQuestions, &tpl.MaxQuizCount, &tpl.CCAR,
		&tpl.RoundUpCycle, &tpl.UsesAI, &tpl.CustomTimeLimit, &tpl.Disabled,
		&tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}
