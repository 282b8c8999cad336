package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/models"
)

type ProgressRepository interface {
	Create(ctx context.Context, progress *models.StudentProgress) error
	GetByTemplateAndStudent(ctx context.Context, templateID, studentID string) (*models.StudentProgress, error)
	GetByQuizID(ctx context.Context, quizID string) (*models.StudentProgress, error)
	ListByTemplate(ctx context.Context, templateID string) ([]models.StudentProgress, error)
	LockByID(ctx context.Context, tx *sql.Tx, id string) (*models.StudentProgress, error)
	UpdateTx(ctx context.Context, tx *sql.Tx, progress *models.StudentProgress) error
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type progressRepository struct {
	*PostgresRepository
}

func NewProgressRepository(db *sql.DB, logger zerolog.Logger) ProgressRepository {
	return &progressRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const progressColumns = `
	id, template_id, student_id, cycle_number, instances,
	instances_this_cycle, group_id, graded, created_at, updated_at
`

func (r *progressRepository) Create(ctx context.Context, progress *models.StudentProgress) error {
	query := `
		INSERT INTO student_progress (
			id, template_id, student_id, cycle_number, instances,
			instances_this_cycle, group_id, graded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (template_id, student_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		progress.ID, progress.TemplateID, progress.StudentID,
		progress.CycleNumber, progress.Instances, progress.InstancesThisCycle,
		progress.GroupID, progress.Graded,
	).Scan(&progress.CreatedAt, &progress.UpdatedAt)
	if err == sql.ErrNoRows {
		// Another writer created the row first; the caller re-reads.
		return nil
	}
	return err
}

func (r *progressRepository) GetByTemplateAndStudent(ctx context.Context, templateID, studentID string) (*models.StudentProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM student_progress
		WHERE template_id = $1 AND student_id = $2
	`

	return scanProgress(r.db.QueryRowContext(ctx, query, templateID, studentID))
}

func (r *progressRepository) GetByQuizID(ctx context.Context, quizID string) (*models.StudentProgress, error) {
	query := `
		SELECT ` + prefixedProgressColumns + `
		FROM student_progress p
		JOIN child_quizzes c ON c.progress_id = p.id
		WHERE c.quiz_id = $1
	`

	return scanProgress(r.db.QueryRowContext(ctx, query, quizID))
}

const prefixedProgressColumns = `
	p.id, p.template_id, p.student_id, p.cycle_number, p.instances,
	p.instances_this_cycle, p.group_id, p.graded, p.created_at, p.updated_at
`

func (r *progressRepository) ListByTemplate(ctx context.Context, templateID string) ([]models.StudentProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM student_progress
		WHERE template_id = $1
		ORDER BY student_id
	`

	rows, err := r.db.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.StudentProgress
	for rows.Next() {
		var p models.StudentProgress
		err := rows.Scan(
			&p.ID, &p.TemplateID, &p.StudentID, &p.CycleNumber, &p.Instances,
			&p.InstancesThisCycle, &p.GroupID, &p.Graded, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	return list, rows.Err()
}

// LockByID reads the progress row with SELECT ... FOR UPDATE so that all
// writes for one student happen under a single row lock.
func (r *progressRepository) LockByID(ctx context.Context, tx *sql.Tx, id string) (*models.StudentProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_progress WHERE id = $1 FOR UPDATE`

	return scanProgress(tx.QueryRowContext(ctx, query, id))
}

func (r *progressRepository) UpdateTx(ctx context.Context, tx *sql.Tx, progress *models.StudentProgress) error {
	query := `
		UPDATE student_progress
		SET cycle_number = $1,
			instances = $2,
			instances_this_cycle = $3,
			group_id = $4,
			graded = $5,
			updated_at = NOW()
		WHERE id = $6
	`

	_, err := tx.ExecContext(ctx, query,
		progress.CycleNumber, progress.Instances, progress.InstancesThisCycle,
		progress.GroupID, progress.Graded, progress.ID,
	)
	return err
}

func scanProgress(row *sql.Row) (*models.StudentProgress, error) {
	p := &models.StudentProgress{}
	err := row.Scan(
		&p.ID, &p.TemplateID, &p.StudentID, &p.CycleNumber, &p.Instances,
		&p.InstancesThisCycle, &p.GroupID, &p.Graded, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
