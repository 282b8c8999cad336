package httpd

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/pkg/utils"
)

// CreateTemplate saves a new template in disabled state. Templates that
// delegate selection are rejected outright when the deployment has no
// selector configured, so the misconfiguration surfaces at save time.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTemplateRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if msg := validateTemplateRequest(&req); msg != "" {
		utils.ErrorResponse(w, http.StatusBadRequest, msg)
		return
	}

	if req.UsesAI {
		if err := h.config.ValidateSelector(); err != nil {
			utils.ErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	// One template per parent quiz. The unique index would reject the insert
	// anyway; checking first turns the violation into a clear conflict.
	_, err := h.templates.GetByParentQuizID(r.Context(), req.ParentQuizID)
	if err == nil {
		utils.ErrorResponse(w, http.StatusConflict, "A template for this parent quiz already exists")
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		h.logger.Error().Err(err).Msg("Failed to check for existing template")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	tpl := &models.Template{
		ID:              utils.GenerateUUID(),
		CourseID:        req.CourseID,
		Name:            req.Name,
		ParentQuizID:    req.ParentQuizID,
		SectionID:       req.SectionID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		CycleDuration:   req.CycleDuration,
		PauseDuration:   req.PauseDuration,
		MinQuestions:    req.MinQuestions,
		MaxQuestions:    req.MaxQuestions,
		MaxQuizCount:    req.MaxQuizCount,
		CCAR:            req.CCAR,
		RoundUpCycle:    req.RoundUpCycle,
		UsesAI:          req.UsesAI,
		CustomTimeLimit: req.CustomTimeLimit,
		Disabled:        true,
	}

	if err := h.templates.Create(r.Context(), tpl); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create template")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    tpl,
	})
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "template_id")
	if !utils.ValidateUUID(templateID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid template ID")
		return
	}

	tpl, err := h.templates.GetByID(r.Context(), templateID)
	if errors.Is(err, sql.ErrNoRows) {
		utils.ErrorResponse(w, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load template")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to load template")
		return
	}

	utils.SuccessResponse(w, tpl)
}

// PublishTemplate enables a template and seeds the first quiz for every
// student currently eligible. Students enrolling later get theirs on first
// dashboard view or from the sweep.
func (h *Handler) PublishTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "template_id")
	if !utils.ValidateUUID(templateID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid template ID")
		return
	}

	err := h.templates.SetDisabled(r.Context(), templateID, false)
	if errors.Is(err, sql.ErrNoRows) {
		utils.ErrorResponse(w, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to publish template")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to publish template")
		return
	}

	if err := h.engine.CreateFirstChildren(r.Context(), templateID); err != nil {
		h.logger.Error().Err(err).Str("template_id", templateID).Msg("Failed to seed students")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Template published but student seeding failed")
		return
	}

	utils.SuccessResponse(w, map[string]string{"template_id": templateID, "status": "published"})
}

func (h *Handler) DisableTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "template_id")
	if !utils.ValidateUUID(templateID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid template ID")
		return
	}

	err := h.templates.SetDisabled(r.Context(), templateID, true)
	if errors.Is(err, sql.ErrNoRows) {
		utils.ErrorResponse(w, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to disable template")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Failed to disable template")
		return
	}

	utils.SuccessResponse(w, map[string]string{"template_id": templateID, "status": "disabled"})
}

func validateTemplateRequest(req *models.CreateTemplateRequest) string {
	if strings.TrimSpace(req.CourseID) == "" {
		return "course_id is required"
	}
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	if strings.TrimSpace(req.ParentQuizID) == "" {
		return "parent_quiz_id is required"
	}
	if req.StartDate <= 0 {
		return "start_date is required"
	}
	if req.EndDate > 0 && req.EndDate <= req.StartDate {
		return "end_date must be after start_date"
	}
	if req.CycleDuration < 0 || req.PauseDuration < 0 {
		return "durations must not be negative"
	}
	if req.EndDate > 0 && req.CycleDuration > 0 && req.StartDate+req.CycleDuration > req.EndDate {
		return "at least one full cycle must fit before end_date"
	}
	if req.MinQuestions < 0 || req.MaxQuestions < 0 || req.MaxQuizCount < 0 || req.CCAR < 0 {
		return "counts must not be negative"
	}
	if req.MinQuestions > 0 && req.MaxQuestions > 0 && req.MinQuestions > req.MaxQuestions {
		return "min_questions must not exceed max_questions"
	}
	return ""
}
