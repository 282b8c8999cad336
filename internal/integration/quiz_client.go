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

// QuizClient talks to the quiz-delivery collaborator that owns question
// pools and materializes child quiz instances.
type QuizClient interface {
	GetQuestionPool(ctx context.Context, parentQuizID string) ([]models.PoolQuestion, error)
	CreateQuiz(ctx context.Context, req *CreateQuizRequest) (string, error)
	CloseQuiz(ctx context.Context, quizID string) error
	EnsureGroupRestriction(ctx context.Context, courseID, sectionID, studentID string) (string, error)
	ListEligibleStudents(ctx context.Context, courseID string) ([]string, error)
}

type CreateQuizRequest struct {
	CourseID     string                    `json:"course_id"`
	SectionID    string                    `json:"section_id"`
	Name         string                    `json:"name"`
	GroupID      string                    `json:"group_id"`
	TimeLimit    int64                     `json:"time_limit"`
	AvailableAt  int64                     `json:"available_at"`
	KeepOrdering bool                      `json:"keep_ordering"`
	Questions    []models.SelectedQuestion `json:"questions"`
}

type createQuizResponse struct {
	QuizID string `json:"quiz_id"`
}

type questionPoolResponse struct {
	Questions []models.PoolQuestion `json:"questions"`
}

type groupResponse struct {
	GroupID string `json:"group_id"`
}

type eligibleStudentsResponse struct {
	StudentIDs []string `json:"student_ids"`
}

type quizClient struct {
	baseURL    string
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

func NewQuizClient(baseURL string, timeout time.Duration, retryCount int, retryDelay time.Duration, logger zerolog.Logger) QuizClient {
	return &quizClient{
		baseURL:    baseURL,
		timeout:    timeout,
		retryCount: retryCount,
		retryDelay: retryDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *quizClient) GetQuestionPool(ctx context.Context, parentQuizID string) ([]models.PoolQuestion, error) {
	url := fmt.Sprintf("%s/api/v1/quizzes/%s/questions", c.baseURL, parentQuizID)

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying question pool fetch")
			time.Sleep(c.retryDelay * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to get question pool: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var pool questionPoolResponse
			if err := json.NewDecoder(resp.Body).Decode(&pool); err != nil {
				resp.Body.Close()
				lastErr = fmt.Errorf("failed to decode response: %w", err)
				continue
			}
			resp.Body.Close()

			c.logger.Debug().
				Str("parent_quiz_id", parentQuizID).
				Int("pool_size", len(pool.Questions)).
				Msg("Got question pool")

			return pool.Questions, nil
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, fmt.Errorf("parent quiz not found: %s", parentQuizID)
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("quiz service returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("failed to get question pool after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *quizClient) CreateQuiz(ctx context.Context, createReq *CreateQuizRequest) (string, error) {
	url := fmt.Sprintf("%s/api/v1/quizzes", c.baseURL)

	payload, err := json.Marshal(createReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying quiz creation")
			time.Sleep(c.retryDelay * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to create quiz: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			var created createQuizResponse
			if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
				resp.Body.Close()
				lastErr = fmt.Errorf("failed to decode response: %w", err)
				continue
			}
			resp.Body.Close()

			c.logger.Info().
				Str("quiz_id", created.QuizID).
				Int("question_count", len(createReq.Questions)).
				Msg("Child quiz created")

			return created.QuizID, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("quiz service returned status %d: %s", resp.StatusCode, string(body))
	}

	return "", fmt.Errorf("failed to create quiz after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *quizClient) CloseQuiz(ctx context.Context, quizID string) error {
	url := fmt.Sprintf("%s/api/v1/quizzes/%s/close", c.baseURL, quizID)

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying quiz close")
			time.Sleep(c.retryDelay * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to close quiz: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			return nil
		}

		// An already-deleted quiz counts as closed.
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			c.logger.Debug().Str("quiz_id", quizID).Msg("Quiz already gone, treating close as done")
			return nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("quiz service returned status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("failed to close quiz after %d attempts: %w", c.retryCount+1, lastErr)
}

// EnsureGroupRestriction creates or reuses the single-member group that makes
// a child quiz visible only to its student.
func (c *quizClient) EnsureGroupRestriction(ctx context.Context, courseID, sectionID, studentID string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/courses/%s/groups", c.baseURL, courseID)

	payload, err := json.Marshal(map[string]string{
		"section_id": sectionID,
		"student_id": studentID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying group restriction setup")
			time.Sleep(c.retryDelay * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to ensure group: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			var group groupResponse
			if err := json.NewDecoder(resp.Body).Decode(&group); err != nil {
				resp.Body.Close()
				lastErr = fmt.Errorf("failed to decode response: %w", err)
				continue
			}
			resp.Body.Close()
			return group.GroupID, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("quiz service returned status %d: %s", resp.StatusCode, string(body))
	}

	return "", fmt.Errorf("failed to ensure group after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *quizClient) ListEligibleStudents(ctx context.Context, courseID string) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/courses/%s/students", c.baseURL, courseID)

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying eligible students fetch")
			time.Sleep(c.retryDelay * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to list students: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var students eligibleStudentsResponse
			if err := json.NewDecoder(resp.Body).Decode(&students); err != nil {
				resp.Body.Close()
				lastErr = fmt.Errorf("failed to decode response: %w", err)
				continue
			}
			resp.Body.Close()
			return students.StudentIDs, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("quiz service returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("failed to list students after %d attempts: %w", c.retryCount+1, lastErr)
}
