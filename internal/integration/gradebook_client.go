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
)

// GradebookClient pushes template grades to the gradebook collaborator.
type GradebookClient interface {
	PushGrade(ctx context.Context, templateID, studentID string, rawGrade float64) error
}

type pushGradeRequest struct {
	TemplateID string  `json:"template_id"`
	StudentID  string  `json:"student_id"`
	RawGrade   float64 `json:"raw_grade"`
}

type gradebookClient struct {
	baseURL    string
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

func NewGradebookClient(baseURL string, timeout time.Duration, retryCount int, retryDelay time.Duration, logger zerolog.Logger) GradebookClient {
	return &gradebookClient{
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

func (c *gradebookClient) PushGrade(ctx context.Context, templateID, studentID string, rawGrade float64) error {
	url := fmt.Sprintf("%s/api/v1/grades", c.baseURL)

	payload, err := json.Marshal(pushGradeRequest{
		TemplateID: templateID,
		StudentID:  studentID,
		RawGrade:   rawGrade,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying grade push")
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
			lastErr = fmt.Errorf("failed to push grade: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			c.logger.Info().
				Str("template_id", templateID).
				Str("student_id", studentID).
				Float64("raw_grade", rawGrade).
				Msg("Grade pushed to gradebook")
			return nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("gradebook returned status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("failed to push grade after %d attempts: %w", c.retryCount+1, lastErr)
}
