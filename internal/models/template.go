package models

import (
	"time"
)

// Template is a configured recurring-practice-quiz definition tied to a
// course and a source question pool owned by the quiz-delivery subsystem.
// Temporal fields are unix seconds; a zero EndDate means unbounded and a
// zero CycleDuration means a single unbounded cycle.
type Template struct {
	ID              string    `json:"id" db:"id"`
	CourseID        string    `json:"course_id" db:"course_id"`
	Name            string    `json:"name" db:"name"`
	ParentQuizID    string    `json:"parent_quiz_id" db:"parent_quiz_id"`
	SectionID       string    `json:"section_id" db:"section_id"`
	StartDate       int64     `json:"start_date" db:"start_date"`
	EndDate         int64     `json:"end_date" db:"end_date"`
	CycleDuration   int64     `json:"cycle_duration" db:"cycle_duration"`
	PauseDuration   int64     `json:"pause_duration" db:"pause_duration"`
	MinQuestions    int       `json:"min_questions" db:"min_questions"`
	MaxQuestions    int       `json:"max_questions" db:"max_questions"`
	MaxQuizCount    int       `json:"max_quiz_count" db:"max_quiz_count"`
	CCAR            int       `json:"ccar" db:"ccar"`
	RoundUpCycle    bool      `json:"roundup_cycle" db:"roundup_cycle"`
	UsesAI          bool      `json:"uses_ai" db:"uses_ai"`
	CustomTimeLimit int64     `json:"custom_time_limit" db:"custom_time_limit"`
	Disabled        bool      `json:"disabled" db:"disabled"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// PoolQuestion is one entry of a template's source question pool as served
// by the quiz-delivery collaborator.
type PoolQuestion struct {
	ID    string `json:"question_id"`
	QType string `json:"qtype"`
}

// SelectedQuestion is a question chosen for the next child quiz, either by
// the rule-based ranker or by the external selector. Position is a 1-based
// ordering hint; zero means no preference (delivery may shuffle).
type SelectedQuestion struct {
	ID       string `json:"question_id"`
	QType    string `json:"qtype"`
	Position int    `json:"position"`
}
