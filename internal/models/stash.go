package models

// StashedRequest is a durable record of a selector request that failed in
// transport and must be resent later so no grading data is lost. Rows exist
// only for templates with UsesAI enabled and are deleted once the resend
// succeeds.
type StashedRequest struct {
	ID           string `json:"id" db:"id"`
	ProgressID   string `json:"progress_id" db:"progress_id"`
	UniqueID     string `json:"unique_id" db:"unique_id"`
	Cycle        int    `json:"cycle" db:"cycle"`
	QuizID       string `json:"quiz_id" db:"quiz_id"`
	CourseID     string `json:"course_id" db:"course_id"`
	ParentQuizID string `json:"parent_quiz_id" db:"parent_quiz_id"`
	StudentID    string `json:"student_id" db:"student_id"`
	MinQuestions int    `json:"min_questions" db:"min_questions"`
	MaxQuestions int    `json:"max_questions" db:"max_questions"`
	TimeCreated  int64  `json:"time_created" db:"time_created"`
	TimeModified int64  `json:"time_modified" db:"time_modified"`

	Scores []StashedScore `json:"scores" db:"-"`
}

// StashedScore is one per-question score belonging to a StashedRequest. The
// position keeps the submission order so a resent request looks the same as
// the original one would have.
type StashedScore struct {
	ID         string  `json:"id" db:"id"`
	StashID    string  `json:"stash_id" db:"stash_id"`
	QuestionID string  `json:"question_id" db:"question_id"`
	Score      float64 `json:"score" db:"score"`
	QType      string  `json:"qtype" db:"qtype"`
	Position   int     `json:"position" db:"position"`
}
