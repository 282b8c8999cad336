package httpd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danubeai/flexquiz-service/internal/config"
	"github.com/danubeai/flexquiz-service/internal/models"
)

type fakeTemplateRepo struct {
	byParent map[string]*models.Template
	created  []*models.Template
}

func (f *fakeTemplateRepo) Create(ctx context.Context, tpl *models.Template) error {
	f.created = append(f.created, tpl)
	return nil
}
func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*models.Template, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeTemplateRepo) GetByParentQuizID(ctx context.Context, parentQuizID string) (*models.Template, error) {
	if tpl, ok := f.byParent[parentQuizID]; ok {
		return tpl, nil
	}
	return nil, sql.ErrNoRows
}
func (f *fakeTemplateRepo) ListActive(ctx context.Context) ([]models.Template, error) {
	return nil, nil
}
func (f *fakeTemplateRepo) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return nil
}

func newTemplateHandler(repo *fakeTemplateRepo, cfg *config.Config) *Handler {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return NewHandler(nil, repo, nil, nil, nil, cfg, zerolog.Nop())
}

func postTemplate(t *testing.T, h *Handler, req models.CreateTemplateRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.CreateTemplate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/templates", bytes.NewReader(body)))
	return rec
}

func validCreateRequest() models.CreateTemplateRequest {
	return models.CreateTemplateRequest{
		CourseID:      "course-1",
		Name:          "Algebra drills",
		ParentQuizID:  "parent-1",
		SectionID:     "section-1",
		StartDate:     1000,
		CycleDuration: 900,
	}
}

func TestCreateTemplateStoresDisabled(t *testing.T) {
	repo := &fakeTemplateRepo{byParent: map[string]*models.Template{}}
	h := newTemplateHandler(repo, nil)

	rec := postTemplate(t, h, validCreateRequest())

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.created, 1)
	assert.True(t, repo.created[0].Disabled)
	assert.Equal(t, "parent-1", repo.created[0].ParentQuizID)
}

func TestCreateTemplateRejectsDuplicateParentQuiz(t *testing.T) {
	repo := &fakeTemplateRepo{byParent: map[string]*models.Template{
		"parent-1": {ID: "tpl-1", ParentQuizID: "parent-1"},
	}}
	h := newTemplateHandler(repo, nil)

	rec := postTemplate(t, h, validCreateRequest())

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, repo.created)
}

func TestCreateTemplateRejectsDelegationWithoutSelector(t *testing.T) {
	repo := &fakeTemplateRepo{byParent: map[string]*models.Template{}}
	h := newTemplateHandler(repo, &config.Config{})

	req := validCreateRequest()
	req.UsesAI = true
	rec := postTemplate(t, h, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, repo.created)
}

func TestCreateTemplateValidatesDates(t *testing.T) {
	repo := &fakeTemplateRepo{byParent: map[string]*models.Template{}}
	h := newTemplateHandler(repo, nil)

	req := validCreateRequest()
	req.EndDate = 500
	rec := postTemplate(t, h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.created)
}
