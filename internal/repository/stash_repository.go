package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/models"
)

type StashRepository interface {
	SaveTx(ctx context.Context, tx *sql.Tx, stash *models.StashedRequest) error
	ListByProgress(ctx context.Context, progressID string) ([]models.StashedRequest, error)
	DeleteTx(ctx context.Context, tx *sql.Tx, id string) error
}

type stashRepository struct {
	*PostgresRepository
}

func NewStashRepository(db *sql.DB, logger zerolog.Logger) StashRepository {
	return &stashRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

// SaveTx writes the stash header and its scores inside the caller's
// transaction so that a retried send never sees a partial score list.
func (r *stashRepository) SaveTx(ctx context.Context, tx *sql.Tx, stash *models.StashedRequest) error {
	query := `
		INSERT INTO stashed_requests (
			id, progress_id, unique_id, cycle, quiz_id, course_id,
			parent_quiz_id, student_id, min_questions, max_questions,
			time_created, time_modified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := tx.ExecContext(ctx, query,
		stash.ID, stash.ProgressID, stash.UniqueID, stash.Cycle, stash.QuizID,
		stash.CourseID, stash.ParentQuizID, stash.StudentID,
		stash.MinQuestions, stash.MaxQuestions,
		stash.TimeCreated, stash.TimeModified,
	)
	if err != nil {
		return err
	}

	scoreQuery := `
		INSERT INTO stashed_scores (id, stash_id, question_id, score, qtype, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, s := range stash.Scores {
		if _, err := tx.ExecContext(ctx, scoreQuery, s.ID, stash.ID, s.QuestionID, s.Score, s.QType, s.Position); err != nil {
			return err
		}
	}

	return nil
}

func (r *stashRepository) ListByProgress(ctx context.Context, progressID string) ([]models.StashedRequest, error) {
	query := `
		SELECT id, progress_id, unique_id, cycle, quiz_id, course_id,
			parent_quiz_id, student_id, min_questions, max_questions,
			time_created, time_modified
		FROM stashed_requests
		WHERE progress_id = $1
		ORDER BY time_created
	`

	rows, err := r.db.QueryContext(ctx, query, progressID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stashes []models.StashedRequest
	for rows.Next() {
		var s models.StashedRequest
		err := rows.Scan(
			&s.ID, &s.ProgressID, &s.UniqueID, &s.Cycle, &s.QuizID, &s.CourseID,
			&s.ParentQuizID, &s.StudentID, &s.MinQuestions, &s.MaxQuestions,
			&s.TimeCreated, &s.TimeModified,
		)
		if err != nil {
			return nil, err
		}
		stashes = append(stashes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range stashes {
		scores, err := r.listScores(ctx, stashes[i].ID)
		if err != nil {
			return nil, err
		}
		stashes[i].Scores = scores
	}

	return stashes, nil
}

func (r *stashRepository) listScores(ctx context.Context, stashID string) ([]models.StashedScore, error) {
	query := `
		SELECT id, stash_id, question_id, score, qtype, position
		FROM stashed_scores
		WHERE stash_id = $1
		ORDER BY position, question_id
	`

	rows, err := r.db.QueryContext(ctx, query, stashID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []models.StashedScore
	for rows.Next() {
		var s models.StashedScore
		if err := rows.Scan(&s.ID, &s.StashID, &s.QuestionID, &s.Score, &s.QType, &s.Position); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}

	return scores, rows.Err()
}

func (r *stashRepository) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	// stashed_scores rows go with the header via ON DELETE CASCADE.
	_, err := tx.ExecContext(ctx, `DELETE FROM stashed_requests WHERE id = $1`, id)
	return err
}
