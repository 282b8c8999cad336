package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/models"
)

type ChildQuizRepository interface {
	CreateTx(ctx context.Context, tx *sql.Tx, child *models.ChildQuiz) error
	GetActiveByProgress(ctx context.Context, progressID string) (*models.ChildQuiz, error)
	DeactivateTx(ctx context.Context, tx *sql.Tx, progressID string) error
}

type childQuizRepository struct {
	*PostgresRepository
}

func NewChildQuizRepository(db *sql.DB, logger zerolog.Logger) ChildQuizRepository {
	return &childQuizRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *childQuizRepository) CreateTx(ctx context.Context, tx *sql.Tx, child *models.ChildQuiz) error {
	query := `
		INSERT INTO child_quizzes (id, progress_id, quiz_id, active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return tx.QueryRowContext(ctx, query,
		child.ID, child.ProgressID, child.QuizID, child.Active,
	).Scan(&child.CreatedAt)
}

func (r *childQuizRepository) GetActiveByProgress(ctx context.Context, progressID string) (*models.ChildQuiz, error) {
	query := `
		SELECT id, progress_id, quiz_id, active, created_at
		FROM child_quizzes
		WHERE progress_id = $1 AND active
	`

	return scanChildQuiz(r.db.QueryRowContext(ctx, query, progressID))
}

func (r *childQuizRepository) DeactivateTx(ctx context.Context, tx *sql.Tx, progressID string) error {
	query := `UPDATE child_quizzes SET active = FALSE WHERE progress_id = $1 AND active`

	_, err := tx.ExecContext(ctx, query, progressID)
	return err
}

func scanChildQuiz(row *sql.Row) (*models.ChildQuiz, error) {
	c := &models.ChildQuiz{}
	err := row.Scan(&c.ID, &c.ProgressID, &c.QuizID, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
