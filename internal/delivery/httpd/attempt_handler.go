package httpd

import (
	"net/http"
	"strings"

	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/pkg/utils"
)

// SubmitAttempt is the synchronous fallback to the broker queue: the quiz
// delivery subsystem can post submitted attempts directly when it has no
// AMQP connectivity. The payload matches the queued event.
func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var event models.AttemptSubmittedEvent
	if err := utils.ReadJSON(r, &event); err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(event.QuizID) == "" {
		utils.ErrorResponse(w, http.StatusBadRequest, "quiz_id is required")
		return
	}
	if strings.TrimSpace(event.StudentID) == "" {
		utils.ErrorResponse(w, http.StatusBadRequest, "student_id is required")
		return
	}

	if err := h.engine.HandleAttemptCompleted(r.Context(), &event); err != nil {
		h.logger.Error().Err(err).
			Str("quiz_id", event.QuizID).
			Str("student_id", event.StudentID).
			Msg("Failed to process attempt")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to process attempt")
		return
	}

	utils.SuccessResponse(w, map[string]string{"quiz_id": event.QuizID, "status": "processed"})
}
