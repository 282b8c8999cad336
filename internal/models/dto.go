package models

// CreateTemplateRequest is the payload for creating a flexquiz template.
type CreateTemplateRequest struct {
	CourseID        string `json:"course_id"`
	Name            string `json:"name"`
	ParentQuizID    string `json:"parent_quiz_id"`
	SectionID       string `json:"section_id"`
	StartDate       int64  `json:"start_date"`
	EndDate         int64  `json:"end_date"`
	CycleDuration   int64  `json:"cycle_duration"`
	PauseDuration   int64  `json:"pause_duration"`
	MinQuestions    int    `json:"min_questions"`
	MaxQuestions    int    `json:"max_questions"`
	MaxQuizCount    int    `json:"max_quiz_count"`
	CCAR            int    `json:"ccar"`
	RoundUpCycle    bool   `json:"roundup_cycle"`
	UsesAI          bool   `json:"uses_ai"`
	CustomTimeLimit int64  `json:"custom_time_limit"`
}

// StudentView is the dashboard payload for one (template, student) pair.
// Requesting it doubles as the lazy evaluation trigger.
type StudentView struct {
	Progress    *StudentProgress      `json:"progress"`
	ActiveQuiz  *ChildQuiz            `json:"active_quiz,omitempty"`
	Performance []QuestionPerformance `json:"performance"`
	Grade       float64               `json:"grade"`
	HasEnded    bool                  `json:"has_ended"`
}

// EngineStats summarizes worker and sweep activity for the stats endpoint.
type EngineStats struct {
	ActiveWorkers  int   `json:"active_workers"`
	QueueLength    int   `json:"queue_length"`
	SweepsRun      int   `json:"sweeps_run"`
	StudentsSwept  int   `json:"students_swept"`
	SweepFailures  int   `json:"sweep_failures"`
	AttemptsByMQ   int   `json:"attempts_consumed"`
	AttemptsFailed int   `json:"attempts_failed"`
	LastSweepUnix  int64 `json:"last_sweep_unix"`
}
