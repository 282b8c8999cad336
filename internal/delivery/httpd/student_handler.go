package httpd

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danubeai/flexquiz-service/internal/engine"
	"github.com/danubeai/flexquiz-service/pkg/utils"
)

// GetStudentView returns the per-student dashboard for a template. The call
// doubles as the lazy creation trigger: a student seen for the first time
// gets their progress row and first quiz here.
func (h *Handler) GetStudentView(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "template_id")
	studentID := chi.URLParam(r, "student_id")

	if !utils.ValidateUUID(templateID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid template ID")
		return
	}
	if studentID == "" {
		utils.ErrorResponse(w, http.StatusBadRequest, "Student ID is required")
		return
	}

	view, err := h.engine.StudentView(r.Context(), templateID, studentID)
	switch {
	case errors.Is(err, engine.ErrTemplateDisabled):
		utils.ErrorResponse(w, http.StatusConflict, "Template is not published")
		return
	case errors.Is(err, sql.ErrNoRows):
		utils.ErrorResponse(w, http.StatusNotFound, "Template not found")
		return
	case err != nil:
		h.logger.Error().Err(err).
			Str("template_id", templateID).
			Str("student_id", studentID).
			Msg("Failed to build student view")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to build student view")
		return
	}

	utils.SuccessResponse(w, view)
}

func (h *Handler) GetStudentStats(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "student_id")
	if studentID == "" {
		utils.ErrorResponse(w, http.StatusBadRequest, "Student ID is required")
		return
	}

	stats, err := h.stats.GetByStudent(r.Context(), studentID)
	if errors.Is(err, sql.ErrNoRows) {
		utils.ErrorResponse(w, http.StatusNotFound, "No stats recorded for student")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("student_id", studentID).Msg("Failed to load student stats")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to load student stats")
		return
	}

	utils.SuccessResponse(w, stats)
}
