package models

import (
	"time"
)

// AttemptQuestion carries one question's outcome from a submitted attempt.
// Position is the 1-based submission order of the question within the
// attempt; zero when the order is unknown.
type AttemptQuestion struct {
	QuestionID string  `json:"question_id"`
	Fraction   float64 `json:"fraction"`
	QType      string  `json:"qtype"`
	Position   int     `json:"position"`
}

// AttemptSubmittedEvent is emitted by the quiz-attempt subsystem once per
// submitted attempt on a child quiz.
type AttemptSubmittedEvent struct {
	QuizID    string            `json:"quiz_id"`
	StudentID string            `json:"student_id"`
	UniqueID  string            `json:"unique_id"`
	Questions []AttemptQuestion `json:"questions"`
	Timestamp int64             `json:"timestamp"`
}

// QuizCreatedEvent is published after a child quiz has been materialized.
type QuizCreatedEvent struct {
	TemplateID string    `json:"template_id"`
	StudentID  string    `json:"student_id"`
	QuizID     string    `json:"quiz_id"`
	Cycle      int       `json:"cycle"`
	Instance   int       `json:"instance"`
	CreatedAt  time.Time `json:"created_at"`
}

// StudentGradedEvent is published when a student reaches the terminal
// graded state for a template.
type StudentGradedEvent struct {
	TemplateID string    `json:"template_id"`
	StudentID  string    `json:"student_id"`
	RawGrade   float64   `json:"raw_grade"`
	GradedAt   time.Time `json:"graded_at"`
}
