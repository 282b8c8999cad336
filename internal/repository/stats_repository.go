package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/models"
)

type StatsRepository interface {
	GetByStudent(ctx context.Context, studentID string) (*models.StudentStats, error)
	RecordAttemptsTx(ctx context.Context, tx *sql.Tx, studentID string, count int, sumScores float64, roundup bool, now int64) error
}

type statsRepository struct {
	*PostgresRepository
}

func NewStatsRepository(db *sql.DB, logger zerolog.Logger) StatsRepository {
	return &statsRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *statsRepository) GetByStudent(ctx context.Context, studentID string) (*models.StudentStats, error) {
	query := `
		SELECT id, student_id, fraction, attempts, roundup_fraction,
			roundup_attempts, time_created, time_modified
		FROM student_stats
		WHERE student_id = $1
	`

	s := &models.StudentStats{}
	err := r.db.QueryRowContext(ctx, query, studentID).Scan(
		&s.ID, &s.StudentID, &s.Fraction, &s.Attempts,
		&s.RoundupFraction, &s.RoundupAttempts, &s.TimeCreated, &s.TimeModified,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RecordAttemptsTx folds count question attempts summing to sumScores into
// the student's running average. Round-up cycle attempts additionally feed a
// separate average. count must be positive.
func (r *statsRepository) RecordAttemptsTx(ctx context.Context, tx *sql.Tx, studentID string, count int, sumScores float64, roundup bool, now int64) error {
	query := `
		INSERT INTO student_stats (
			id, student_id, fraction, attempts, roundup_fraction,
			roundup_attempts, time_created, time_modified
		) VALUES (
			gen_random_uuid(), $1,
			$3::double precision / $2, $2,
			CASE WHEN $4 THEN $3::double precision / $2 ELSE 0 END,
			CASE WHEN $4 THEN $2 ELSE 0 END,
			$5, $5
		)
		ON CONFLICT (student_id) DO UPDATE
		SET fraction = (student_stats.fraction * student_stats.attempts + $3) / (student_stats.attempts + $2),
			attempts = student_stats.attempts + $2,
			roundup_fraction = CASE WHEN $4
			THEN (student_stats.roundup_fraction * student_stats.roundup_attempts + $3) / (student_stats.roundup_attempts + $2)
			ELSE student_stats.roundup_fraction END,
			roundup_attempts = student_stats.roundup_attempts + CASE WHEN $4 THEN $2 ELSE 0 END,
			time_modified = $5
	`

	_, err := tx.ExecContext(ctx, query, studentID, count, sumScores, roundup, now)
	return err
}
