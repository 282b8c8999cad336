package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/models"
)

type PerformanceRepository interface {
	ListByProgress(ctx context.Context, progressID string) ([]models.QuestionPerformance, error)
	UpsertTx(ctx context.Context, tx *sql.Tx, perf *models.QuestionPerformance) error
}

type performanceRepository struct {
	*PostgresRepository
}

func NewPerformanceRepository(db *sql.DB, logger zerolog.Logger) PerformanceRepository {
	return &performanceRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const performanceColumns = `
	id, progress_id, question_id, qtype, rating, fraction,
	attempts, ccas_this_cycle, roundup_complete, time_created, time_modified
`

func (r *performanceRepository) ListByProgress(ctx context.Context, progressID string) ([]models.QuestionPerformance, error) {
	query := `
		SELECT ` + performanceColumns + `
		FROM question_performance
		WHERE progress_id = $1
		ORDER BY question_id
	`

	rows, err := r.db.QueryContext(ctx, query, progressID)
	if err != nil {
		return nil, err
	}
	return collectPerformance(rows)
}

func (r *performanceRepository) UpsertTx(ctx context.Context, tx *sql.Tx, perf *models.QuestionPerformance) error {
	query := `
		INSERT INTO question_performance (
			id, progress_id, question_id, qtype, rating, fraction,
			attempts, ccas_this_cycle, roundup_complete, time_created, time_modified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (progress_id, question_id) DO UPDATE
		SET rating = EXCLUDED.rating,
			fraction = EXCLUDED.fraction,
			attempts = EXCLUDED.attempts,
			ccas_this_cycle = EXCLUDED.ccas_this_cycle,
			roundup_complete = EXCLUDED.roundup_complete,
			time_modified = EXCLUDED.time_modified
	`

	_, err := tx.ExecContext(ctx, query,
		perf.ID, perf.ProgressID, perf.QuestionID, perf.QType, perf.Rating, perf.Fraction,
		perf.Attempts, perf.CCAsThisCycle, perf.RoundupComplete, perf.TimeCreated, perf.TimeModified,
	)
	return err
}

func collectPerformance(rows *sql.Rows) ([]models.QuestionPerformance, error) {
	defer rows.Close()

	var perfs []models.QuestionPerformance
	for rows.Next() {
		var p models.QuestionPerformance
		err := rows.Scan(
			&p.ID, &p.ProgressID, &p.QuestionID, &p.QType, &p.Rating, &p.Fraction,
			&p.Attempts, &p.CCAsThisCycle, &p.RoundupComplete, &p.TimeCreated, &p.TimeModified,
		)
		if err != nil {
			return nil, err
		}
		perfs = append(perfs, p)
	}

	return perfs, rows.Err()
}
