package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/models"
)

// Request types understood by the selector endpoint.
const (
	SelectorTypeInitialize = "initialize"
	SelectorTypeContinue   = "continue"
)

// SelectorClient calls the external question-selection service for templates
// that delegate their per-student question choice and grading.
type SelectorClient interface {
	// GetTasks submits attempt scores and receives graded questions plus the
	// next task group. A transport or decode failure yields Result.OK ==
	// false rather than an error; the caller stashes the request and moves
	// on without a new quiz.
	GetTasks(ctx context.Context, req *SelectorRequest) SelectorResult
}

// SelectorRequest carries one student's attempt outcome and selection
// constraints.
type SelectorRequest struct {
	UniqueID  string
	Type      string
	CourseID  string
	PoolID    string
	StudentID string
	Cycle     int
	Tasks     []SelectorTask
	Timestamp int64
	TaskPool  []string
	Min       int
	Max       int
	CCAR      int
	Roundup   bool
}

// SelectorTask is one question's score from the attempt being reported.
type SelectorTask struct {
	TaskID   string  `json:"taskId"`
	Score    float64 `json:"score"`
	QType    string  `json:"qtype"`
	Position int     `json:"position"`
}

// SelectorGrade is the authoritative grade returned for one question.
type SelectorGrade struct {
	QuestionID string
	Grade      float64
	Position   int
}

// SelectorResult holds the selector's verdict. Grades covers every reported
// question; Selected only those flagged for the next task group.
type SelectorResult struct {
	OK       bool
	Grades   []SelectorGrade
	Selected []models.SelectedQuestion
}

type selectorWireRequest struct {
	UniqueIdentifier string             `json:"uniqueIdentifier"`
	Requests         []selectorWireBody `json:"requests"`
}

type selectorWireBody struct {
	Type         string         `json:"type"`
	CourseID     string         `json:"courseId"`
	PoolID       string         `json:"poolId"`
	UserID       string         `json:"userId"`
	Cycle        int            `json:"cycle"`
	Tasks        []SelectorTask `json:"tasks"`
	Timestamp    int64          `json:"timestamp"`
	TaskPool     []string       `json:"taskPool"`
	Limits       selectorLimits `json:"limits"`
	CCAR         int            `json:"ccar"`
	RoundupCycle bool           `json:"roundupCycle"`
}

type selectorLimits struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

type selectorWireTask struct {
	TaskID             string  `json:"taskId"`
	Position           int     `json:"position"`
	Grade              float64 `json:"grade"`
	QType              string  `json:"qtype"`
	UseInNextTaskGroup bool    `json:"useInNextTaskGroup"`
}

type selectorClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

func NewSelectorClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) SelectorClient {
	return &selectorClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *selectorClient) GetTasks(ctx context.Context, selReq *SelectorRequest) SelectorResult {
	url := fmt.Sprintf("%s/api/v1/danube/get-tasks", c.baseURL)

	tasks := selReq.Tasks
	if tasks == nil {
		tasks = []SelectorTask{}
	}
	pool := selReq.TaskPool
	if pool == nil {
		pool = []string{}
	}

	// Zero limits are sent as null, meaning "selector decides".
	var min, max *int
	if selReq.Min > 0 {
		min = &selReq.Min
	}
	if selReq.Max > 0 {
		max = &selReq.Max
	}

	wire := selectorWireRequest{
		UniqueIdentifier: selReq.UniqueID,
		Requests: []selectorWireBody{{
			Type:         selReq.Type,
			CourseID:     selReq.CourseID,
			PoolID:       selReq.PoolID,
			UserID:       selReq.StudentID,
			Cycle:        selReq.Cycle,
			Tasks:        tasks,
			Timestamp:    selReq.Timestamp,
			TaskPool:     pool,
			Limits:       selectorLimits{Min: min, Max: max},
			CCAR:         selReq.CCAR,
			RoundupCycle: selReq.Roundup,
		}},
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to marshal selector request")
		return SelectorResult{}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to create selector request")
		return SelectorResult{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer/"+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Selector unreachable")
		return SelectorResult{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Selector returned non-OK status")
		return SelectorResult{}
	}

	var wireTasks []selectorWireTask
	if err := json.NewDecoder(resp.Body).Decode(&wireTasks); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to decode selector response")
		return SelectorResult{}
	}

	result := SelectorResult{OK: true}
	for _, t := range wireTasks {
		result.Grades = append(result.Grades, SelectorGrade{
			QuestionID: t.TaskID,
			Grade:      t.Grade,
			Position:   t.Position,
		})
		if t.UseInNextTaskGroup {
			result.Selected = append(result.Selected, models.SelectedQuestion{
				ID:       t.TaskID,
				QType:    t.QType,
				Position: t.Position,
			})
		}
	}

	c.logger.Debug().
		Str("student_id", selReq.StudentID).
		Int("graded", len(result.Grades)).
		Int("selected", len(result.Selected)).
		Msg("Selector response processed")

	return result
}
