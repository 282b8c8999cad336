package models

import (
	"time"
)

// StudentProgress is the per-(template, student) state owned by the cycle
// engine. Exactly one row exists per pair; it is created lazily on first
// eligibility and acts as the lock target for single-writer-per-student
// semantics. Once Graded is set no further child quizzes are created.
type StudentProgress struct {
	ID                 string    `json:"id" db:"id"`
	TemplateID         string    `json:"template_id" db:"template_id"`
	StudentID          string    `json:"student_id" db:"student_id"`
	CycleNumber        int       `json:"cycle_number" db:"cycle_number"`
	Instances          int       `json:"instances" db:"instances"`
	InstancesThisCycle int       `json:"instances_this_cycle" db:"instances_this_cycle"`
	GroupID            string    `json:"group_id" db:"group_id"`
	Graded             bool      `json:"graded" db:"graded"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// QuestionPerformance tracks one question's history for one StudentProgress.
// Rating and CCAsThisCycle only grow through correct attempts and are only
// reduced by cycle transitions.
type QuestionPerformance struct {
	ID              string  `json:"id" db:"id"`
	ProgressID      string  `json:"progress_id" db:"progress_id"`
	QuestionID      string  `json:"question_id" db:"question_id"`
	QType           string  `json:"qtype" db:"qtype"`
	Rating          float64 `json:"rating" db:"rating"`
	Fraction        float64 `json:"fraction" db:"fraction"`
	Attempts        int     `json:"attempts" db:"attempts"`
	CCAsThisCycle   int     `json:"ccas_this_cycle" db:"ccas_this_cycle"`
	RoundupComplete bool    `json:"roundup_complete" db:"roundup_complete"`
	TimeCreated     int64   `json:"time_created" db:"time_created"`
	TimeModified    int64   `json:"time_modified" db:"time_modified"`
}

// ChildQuiz links a generated quiz instance in the delivery subsystem to the
// StudentProgress it was created for. At most one row per progress is active;
// inactive rows are kept as history.
type ChildQuiz struct {
	ID         string    `json:"id" db:"id"`
	ProgressID string    `json:"progress_id" db:"progress_id"`
	QuizID     string    `json:"quiz_id" db:"quiz_id"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// StudentStats is the per-student running average across all templates,
// maintained only in non-delegated mode, with a separate average for
// round-up cycle attempts.
type StudentStats struct {
	ID              string  `json:"id" db:"id"`
	StudentID       string  `json:"student_id" db:"student_id"`
	Fraction        float64 `json:"fraction" db:"fraction"`
	Attempts        int     `json:"attempts" db:"attempts"`
	RoundupFraction float64 `json:"roundup_fraction" db:"roundup_fraction"`
	RoundupAttempts int     `json:"roundup_attempts" db:"roundup_attempts"`
	TimeCreated     int64   `json:"time_created" db:"time_created"`
	TimeModified    int64   `json:"time_modified" db:"time_modified"`
}
