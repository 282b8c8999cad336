package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danubeai/flexquiz-service/internal/cycle"
	"github.com/danubeai/flexquiz-service/internal/integration"
	"github.com/danubeai/flexquiz-service/internal/models"
)

type fakeTemplates struct {
	tpl *models.Template
}

func (f *fakeTemplates) Create(ctx context.Context, tpl *models.Template) error { return nil }
func (f *fakeTemplates) GetByID(ctx context.Context, id string) (*models.Template, error) {
	return f.tpl, nil
}
func (f *fakeTemplates) GetByParentQuizID(ctx context.Context, parentQuizID string) (*models.Template, error) {
	return f.tpl, nil
}
func (f *fakeTemplates) ListActive(ctx context.Context) ([]models.Template, error) {
	return []models.Template{*f.tpl}, nil
}
func (f *fakeTemplates) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return nil
}

type fakeProgress struct {
	prog    *models.StudentProgress
	quizIDs map[string]bool
	updated *models.StudentProgress
}

func (f *fakeProgress) Create(ctx context.Context, p *models.StudentProgress) error {
	f.prog = p
	return nil
}
func (f *fakeProgress) GetByTemplateAndStudent(ctx context.Context, templateID, studentID string) (*models.StudentProgress, error) {
	if f.prog == nil {
		return nil, sql.ErrNoRows
	}
	cp := *f.prog
	return &cp, nil
}
func (f *fakeProgress) GetByQuizID(ctx context.Context, quizID string) (*models.StudentProgress, error) {
	if !f.quizIDs[quizID] {
		return nil, sql.ErrNoRows
	}
	cp := *f.prog
	return &cp, nil
}
func (f *fakeProgress) ListByTemplate(ctx context.Context, templateID string) ([]models.StudentProgress, error) {
	return []models.StudentProgress{*f.prog}, nil
}
func (f *fakeProgress) LockByID(ctx context.Context, tx *sql.Tx, id string) (*models.StudentProgress, error) {
	cp := *f.prog
	return &cp, nil
}
func (f *fakeProgress) UpdateTx(ctx context.Context, tx *sql.Tx, p *models.StudentProgress) error {
	f.updated = p
	f.prog = p
	return nil
}
func (f *fakeProgress) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type fakePerformance struct {
	perfs   []models.QuestionPerformance
	upserts []models.QuestionPerformance
}

func (f *fakePerformance) ListByProgress(ctx context.Context, progressID string) ([]models.QuestionPerformance, error) {
	out := make([]models.QuestionPerformance, len(f.perfs))
	copy(out, f.perfs)
	return out, nil
}
func (f *fakePerformance) UpsertTx(ctx context.Context, tx *sql.Tx, perf *models.QuestionPerformance) error {
	f.upserts = append(f.upserts, *perf)
	return nil
}

type fakeChildren struct {
	active      *models.ChildQuiz
	created     []*models.ChildQuiz
	deactivated int
}

func (f *fakeChildren) CreateTx(ctx context.Context, tx *sql.Tx, child *models.ChildQuiz) error {
	f.created = append(f.created, child)
	return nil
}
func (f *fakeChildren) GetActiveByProgress(ctx context.Context, progressID string) (*models.ChildQuiz, error) {
	if f.active == nil {
		return nil, sql.ErrNoRows
	}
	return f.active, nil
}
func (f *fakeChildren) DeactivateTx(ctx context.Context, tx *sql.Tx, progressID string) error {
	f.deactivated++
	f.active = nil
	return nil
}

type fakeStash struct {
	existing []models.StashedRequest
	saved    []*models.StashedRequest
	deleted  []string
}

func (f *fakeStash) SaveTx(ctx context.Context, tx *sql.Tx, stash *models.StashedRequest) error {
	f.saved = append(f.saved, stash)
	return nil
}
func (f *fakeStash) ListByProgress(ctx context.Context, progressID string) ([]models.StashedRequest, error) {
	return f.existing, nil
}
func (f *fakeStash) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type statsRecord struct {
	count   int
	sum     float64
	roundup bool
}

type fakeStats struct {
	recorded []statsRecord
}

func (f *fakeStats) GetByStudent(ctx context.Context, studentID string) (*models.StudentStats, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStats) RecordAttemptsTx(ctx context.Context, tx *sql.Tx, studentID string, count int, sumScores float64, roundup bool, now int64) error {
	f.recorded = append(f.recorded, statsRecord{count: count, sum: sumScores, roundup: roundup})
	return nil
}

type fakeQuizClient struct {
	pool       []models.PoolQuestion
	students   []string
	nextQuizID string
	created    []*integration.CreateQuizRequest
	closed     []string
}

func (f *fakeQuizClient) GetQuestionPool(ctx context.Context, parentQuizID string) ([]models.PoolQuestion, error) {
	return f.pool, nil
}
func (f *fakeQuizClient) CreateQuiz(ctx context.Context, req *integration.CreateQuizRequest) (string, error) {
	f.created = append(f.created, req)
	return f.nextQuizID, nil
}
func (f *fakeQuizClient) CloseQuiz(ctx context.Context, quizID string) error {
	f.closed = append(f.closed, quizID)
	return nil
}
func (f *fakeQuizClient) EnsureGroupRestriction(ctx context.Context, courseID, sectionID, studentID string) (string, error) {
	return "group-1", nil
}
func (f *fakeQuizClient) ListEligibleStudents(ctx context.Context, courseID string) ([]string, error) {
	return f.students, nil
}

type fakeGradebook struct {
	pushes []float64
}

func (f *fakeGradebook) PushGrade(ctx context.Context, templateID, studentID string, rawGrade float64) error {
	f.pushes = append(f.pushes, rawGrade)
	return nil
}

type fakeSelector struct {
	result   integration.SelectorResult
	requests []*integration.SelectorRequest
}

func (f *fakeSelector) GetTasks(ctx context.Context, req *integration.SelectorRequest) integration.SelectorResult {
	f.requests = append(f.requests, req)
	return f.result
}

type fakePublisher struct {
	quizCreated []*models.QuizCreatedEvent
	graded      []*models.StudentGradedEvent
}

func (f *fakePublisher) PublishQuizCreated(ctx context.Context, event *models.QuizCreatedEvent) error {
	f.quizCreated = append(f.quizCreated, event)
	return nil
}
func (f *fakePublisher) PublishStudentGraded(ctx context.Context, event *models.StudentGradedEvent) error {
	f.graded = append(f.graded, event)
	return nil
}

type fixture struct {
	engine    *Engine
	templates *fakeTemplates
	progress  *fakeProgress
	perf      *fakePerformance
	children  *fakeChildren
	stash     *fakeStash
	stats     *fakeStats
	quizzes   *fakeQuizClient
	gradebook *fakeGradebook
	selector  *fakeSelector
	publisher *fakePublisher
}

func newFixture(tpl *models.Template, prog *models.StudentProgress, now int64) *fixture {
	f := &fixture{
		templates: &fakeTemplates{tpl: tpl},
		progress:  &fakeProgress{prog: prog, quizIDs: map[string]bool{}},
		perf:      &fakePerformance{},
		children:  &fakeChildren{},
		stash:     &fakeStash{},
		stats:     &fakeStats{},
		quizzes:   &fakeQuizClient{nextQuizID: "quiz-new"},
		gradebook: &fakeGradebook{},
		selector:  &fakeSelector{},
		publisher: &fakePublisher{},
	}
	f.engine = New(Deps{
		Templates:   f.templates,
		Progress:    f.progress,
		Performance: f.perf,
		Children:    f.children,
		Stash:       f.stash,
		Stats:       f.stats,
		Quizzes:     f.quizzes,
		Gradebook:   f.gradebook,
		Selector:    f.selector,
		Publisher:   f.publisher,
		StashOnFail: true,
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return time.Unix(now, 0) },
	})
	return f
}

func baseTemplate() *models.Template {
	return &models.Template{
		ID:           "tpl-1",
		CourseID:     "course-1",
		Name:         "Algebra drills",
		ParentQuizID: "parent-1",
		SectionID:    "section-1",
		StartDate:    0,
		EndDate:      0,
		CCAR:         2,
	}
}

func baseProgress() *models.StudentProgress {
	return &models.StudentProgress{
		ID:         "prog-1",
		TemplateID: "tpl-1",
		StudentID:  "student-1",
		GroupID:    "group-1",
		Instances:  1,
	}
}

func TestApplyTransitionPenaltyAndStreaks(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{QuestionID: "q1", Rating: 1.2, Fraction: 0.7, CCAsThisCycle: 3},
		{QuestionID: "q2", Rating: 0.3, Fraction: 0.3, CCAsThisCycle: 1},
	}
	cc := cycle.Ccar{Effective: 2}

	got := applyTransition(perfs, 1, 2, cc, false, 500)

	// Ratings drop by the penalty, floored at zero.
	assert.InDelta(t, 0.7, got[0].Rating, 1e-9)
	assert.InDelta(t, 0.0, got[1].Rating, 1e-9)

	// Streaks lose one per skipped cycle, capped at ccar minus the skip.
	assert.Equal(t, 1, got[0].CCAsThisCycle)
	assert.Equal(t, 0, got[1].CCAsThisCycle)

	// Local grading resets fractions at the boundary.
	assert.Zero(t, got[0].Fraction)
	assert.Equal(t, int64(500), got[0].TimeModified)

	// Inputs stay untouched.
	assert.InDelta(t, 1.2, perfs[0].Rating, 1e-9)
}

func TestApplyTransitionMultiCycleSkip(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{QuestionID: "q1", Rating: 2.0, CCAsThisCycle: 5},
	}
	cc := cycle.Ccar{Effective: 3}

	got := applyTransition(perfs, 0, 3, cc, true, 500)

	assert.InDelta(t, 0.5, got[0].Rating, 1e-9)
	// 5 - 3 = 2, but the cap is ccar - multiplier = 0.
	assert.Equal(t, 0, got[0].CCAsThisCycle)
}

func TestApplyTransitionRoundupZeroesRatings(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{QuestionID: "q1", Rating: 1.5, CCAsThisCycle: 2},
	}
	cc := cycle.Ccar{Effective: 1, IsRoundup: true}

	got := applyTransition(perfs, 2, 3, cc, false, 500)

	assert.Zero(t, got[0].Rating)
	assert.Zero(t, got[0].CCAsThisCycle)
}

func TestApplyTransitionDelegatedKeepsFractions(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{QuestionID: "q1", Rating: 1.0, Fraction: 0.9},
	}

	got := applyTransition(perfs, 0, 1, cycle.Ccar{Effective: 2}, true, 500)

	assert.InDelta(t, 0.9, got[0].Fraction, 1e-9)
}

func TestApplyLocalGrades(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{ID: "p1", QuestionID: "q1", Rating: 0.4, Attempts: 2, CCAsThisCycle: 1},
	}
	questions := []models.AttemptQuestion{
		{QuestionID: "q1", Fraction: 1.0, QType: "multichoice"},
		{QuestionID: "q2", Fraction: 0.5, QType: "truefalse"},
	}

	got := applyLocalGrades(perfs, "prog-1", questions, false, 700)

	require.Len(t, got, 2)

	// Full score extends the streak.
	assert.Equal(t, 2, got[0].CCAsThisCycle)
	assert.Equal(t, 3, got[0].Attempts)
	assert.InDelta(t, 1.0, got[0].Rating, 1e-9)

	// New question starts its own row; partial score means no streak.
	assert.Equal(t, "q2", got[1].QuestionID)
	assert.Equal(t, 1, got[1].Attempts)
	assert.Zero(t, got[1].CCAsThisCycle)
	assert.Equal(t, int64(700), got[1].TimeCreated)
	assert.NotEmpty(t, got[1].ID)
}

func TestApplyLocalGradesPartialScoreResetsStreak(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{QuestionID: "q1", CCAsThisCycle: 2},
	}

	got := applyLocalGrades(perfs, "prog-1", []models.AttemptQuestion{{QuestionID: "q1", Fraction: 0.99}}, false, 700)

	assert.Zero(t, got[0].CCAsThisCycle)
}

func TestApplySelectorGradesTouchesOnlyFractions(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{QuestionID: "q1", Rating: 0.8, Fraction: 0.2, Attempts: 4, CCAsThisCycle: 1},
	}
	grades := []integration.SelectorGrade{
		{QuestionID: "q1", Grade: 0.9},
		{QuestionID: "q2", Grade: 0.4},
	}

	got := applySelectorGrades(perfs, "prog-1", grades, 800)

	require.Len(t, got, 2)
	assert.InDelta(t, 0.9, got[0].Fraction, 1e-9)
	assert.InDelta(t, 0.8, got[0].Rating, 1e-9)
	assert.Equal(t, 4, got[0].Attempts)

	assert.Zero(t, got[1].Rating)
	assert.Zero(t, got[1].Attempts)
	assert.InDelta(t, 0.4, got[1].Fraction, 1e-9)
}

func TestComputeRawGrade(t *testing.T) {
	perfs := []models.QuestionPerformance{
		{Fraction: 1.0, CCAsThisCycle: 2},
		{Fraction: 0.5, CCAsThisCycle: 1},
	}

	// Local mode normalizes streaks against the threshold.
	assert.InDelta(t, 7.5, computeRawGrade(perfs, false, 2), 1e-9)

	// Delegated mode averages fractions directly.
	assert.InDelta(t, 7.5, computeRawGrade(perfs, true, 2), 1e-9)

	// No tracked questions means no grade.
	assert.Zero(t, computeRawGrade(nil, false, 2))
}

func TestComputeRawGradeCap(t *testing.T) {
	perfs := []models.QuestionPerformance{{CCAsThisCycle: 5}}

	assert.InDelta(t, GradeMultiplier, computeRawGrade(perfs, false, 2), 1e-9)
}

func TestHandleAttemptCompletedIgnoresUnmanagedQuiz(t *testing.T) {
	f := newFixture(baseTemplate(), baseProgress(), 1000)

	err := f.engine.HandleAttemptCompleted(context.Background(), &models.AttemptSubmittedEvent{
		QuizID:    "not-ours",
		StudentID: "student-1",
	})

	require.NoError(t, err)
	assert.Empty(t, f.quizzes.closed)
	assert.Nil(t, f.progress.updated)
}

func TestHandleAttemptCompletedLocalFlow(t *testing.T) {
	tpl := baseTemplate()
	prog := baseProgress()
	f := newFixture(tpl, prog, 1000)

	f.progress.quizIDs["quiz-old"] = true
	f.quizzes.pool = []models.PoolQuestion{
		{ID: "q1", QType: "multichoice"},
		{ID: "q2", QType: "truefalse"},
	}
	f.perf.perfs = []models.QuestionPerformance{
		{ID: "p1", ProgressID: "prog-1", QuestionID: "q1", Rating: 0.3, Attempts: 1},
	}

	err := f.engine.HandleAttemptCompleted(context.Background(), &models.AttemptSubmittedEvent{
		QuizID:    "quiz-old",
		StudentID: "student-1",
		UniqueID:  "attempt-1",
		Questions: []models.AttemptQuestion{
			{QuestionID: "q1", Fraction: 1.0, QType: "multichoice"},
			{QuestionID: "q2", Fraction: 0.5, QType: "truefalse"},
			{QuestionID: "dropped", Fraction: 1.0, QType: "essay"},
		},
	})
	require.NoError(t, err)

	// The question outside the pool is discarded from stats and grading.
	require.Len(t, f.stats.recorded, 1)
	assert.Equal(t, 2, f.stats.recorded[0].count)
	assert.InDelta(t, 1.5, f.stats.recorded[0].sum, 1e-9)

	// A replacement quiz was created and linked.
	require.Len(t, f.quizzes.created, 1)
	require.Len(t, f.children.created, 1)
	assert.Equal(t, "quiz-new", f.children.created[0].QuizID)
	assert.Equal(t, 1, f.children.deactivated)

	// Progress counters moved.
	require.NotNil(t, f.progress.updated)
	assert.Equal(t, 2, f.progress.updated.Instances)
	assert.Equal(t, 1, f.progress.updated.InstancesThisCycle)
	assert.False(t, f.progress.updated.Graded)

	// The completed quiz was closed and events went out.
	assert.Equal(t, []string{"quiz-old"}, f.quizzes.closed)
	require.Len(t, f.publisher.quizCreated, 1)
	assert.Empty(t, f.publisher.graded)
	require.Len(t, f.gradebook.pushes, 1)

	// The selector plays no part in local mode.
	assert.Empty(t, f.selector.requests)
}

func TestHandleAttemptCompletedStashesOnSelectorFailure(t *testing.T) {
	tpl := baseTemplate()
	tpl.UsesAI = true
	prog := baseProgress()
	f := newFixture(tpl, prog, 1000)

	f.progress.quizIDs["quiz-old"] = true
	f.quizzes.pool = []models.PoolQuestion{{ID: "q1", QType: "multichoice"}}
	f.selector.result = integration.SelectorResult{OK: false}

	err := f.engine.HandleAttemptCompleted(context.Background(), &models.AttemptSubmittedEvent{
		QuizID:    "quiz-old",
		StudentID: "student-1",
		UniqueID:  "attempt-7",
		Questions: []models.AttemptQuestion{{QuestionID: "q1", Fraction: 0.6, QType: "multichoice", Position: 2}},
	})
	require.NoError(t, err)

	// The report carries the submission order alongside each score.
	require.Len(t, f.selector.requests, 1)
	require.Len(t, f.selector.requests[0].Tasks, 1)
	assert.Equal(t, 2, f.selector.requests[0].Tasks[0].Position)

	// No quiz without a selector verdict, but the scores survive.
	assert.Empty(t, f.quizzes.created)
	require.Len(t, f.stash.saved, 1)
	stash := f.stash.saved[0]
	assert.Equal(t, "attempt-7", stash.UniqueID)
	require.Len(t, stash.Scores, 1)
	assert.InDelta(t, 0.6, stash.Scores[0].Score, 1e-9)
	assert.Equal(t, 2, stash.Scores[0].Position)

	// Delegated mode never writes local stats.
	assert.Empty(t, f.stats.recorded)
}

func TestHandleAttemptCompletedEndedTemplateGrades(t *testing.T) {
	tpl := baseTemplate()
	tpl.StartDate = 0
	tpl.EndDate = 900
	tpl.CycleDuration = 900
	prog := baseProgress()
	f := newFixture(tpl, prog, 1000)

	f.progress.quizIDs["quiz-old"] = true
	f.quizzes.pool = []models.PoolQuestion{{ID: "q1", QType: "multichoice"}}

	err := f.engine.HandleAttemptCompleted(context.Background(), &models.AttemptSubmittedEvent{
		QuizID:    "quiz-old",
		StudentID: "student-1",
		Questions: []models.AttemptQuestion{{QuestionID: "q1", Fraction: 1.0, QType: "multichoice"}},
	})
	require.NoError(t, err)

	// Terminal state: graded, no new quiz, graded event published.
	assert.Empty(t, f.quizzes.created)
	require.NotNil(t, f.progress.updated)
	assert.True(t, f.progress.updated.Graded)
	require.Len(t, f.publisher.graded, 1)

	// The final attempt still counts toward the grade.
	require.Len(t, f.perf.upserts, 1)
	assert.InDelta(t, 1.0, f.perf.upserts[0].Fraction, 1e-9)
}

func TestSweepStudentCreatesFirstQuiz(t *testing.T) {
	tpl := baseTemplate()
	prog := baseProgress()
	prog.Instances = 0
	prog.GroupID = ""
	f := newFixture(tpl, prog, 1000)

	f.quizzes.pool = []models.PoolQuestion{
		{ID: "q1", QType: "multichoice"},
		{ID: "q2", QType: "truefalse"},
		{ID: "q3", QType: "shortanswer"},
	}

	err := f.engine.SweepStudent(context.Background(), tpl, prog)
	require.NoError(t, err)

	require.Len(t, f.quizzes.created, 1)
	created := f.quizzes.created[0]
	assert.Len(t, created.Questions, 3)
	assert.Equal(t, "group-1", created.GroupID)
	assert.Contains(t, created.Name, "iteration 1")

	require.NotNil(t, f.progress.updated)
	assert.Equal(t, 1, f.progress.updated.Instances)
	assert.Equal(t, "group-1", f.progress.updated.GroupID)
}

func TestSweepStudentResendsStash(t *testing.T) {
	tpl := baseTemplate()
	tpl.UsesAI = true
	prog := baseProgress()
	f := newFixture(tpl, prog, 1000)

	f.quizzes.pool = []models.PoolQuestion{{ID: "q1", QType: "multichoice"}}
	f.stash.existing = []models.StashedRequest{{
		ID:       "stash-1",
		UniqueID: "attempt-9",
		QuizID:   "quiz-old",
		Scores:   []models.StashedScore{{QuestionID: "q1", Score: 0.7, QType: "multichoice", Position: 4}},
	}}
	f.selector.result = integration.SelectorResult{
		OK:       true,
		Grades:   []integration.SelectorGrade{{QuestionID: "q1", Grade: 0.7}},
		Selected: []models.SelectedQuestion{{ID: "q1", QType: "multichoice", Position: 1}},
	}

	err := f.engine.SweepStudent(context.Background(), tpl, prog)
	require.NoError(t, err)

	// The stashed scores went out with the retry and the stash is gone.
	require.Len(t, f.selector.requests, 1)
	req := f.selector.requests[0]
	assert.Equal(t, "attempt-9", req.UniqueID)
	require.Len(t, req.Tasks, 1)
	assert.InDelta(t, 0.7, req.Tasks[0].Score, 1e-9)
	assert.Equal(t, 4, req.Tasks[0].Position)
	assert.Equal(t, []string{"stash-1"}, f.stash.deleted)
	assert.Empty(t, f.stash.saved)

	require.Len(t, f.quizzes.created, 1)
	assert.True(t, f.quizzes.created[0].KeepOrdering)
}

func TestSweepStudentFinalizesEndedTemplate(t *testing.T) {
	tpl := baseTemplate()
	tpl.StartDate = 0
	tpl.EndDate = 900
	tpl.CycleDuration = 900
	prog := baseProgress()
	f := newFixture(tpl, prog, 2000)

	f.children.active = &models.ChildQuiz{ID: "c1", ProgressID: "prog-1", QuizID: "quiz-old", Active: true}
	f.perf.perfs = []models.QuestionPerformance{
		{ID: "p1", ProgressID: "prog-1", QuestionID: "q1", CCAsThisCycle: 2, Fraction: 1.0},
	}

	err := f.engine.SweepStudent(context.Background(), tpl, prog)
	require.NoError(t, err)

	require.NotNil(t, f.progress.updated)
	assert.True(t, f.progress.updated.Graded)
	assert.Equal(t, 1, f.children.deactivated)
	assert.Empty(t, f.quizzes.created)
	require.Len(t, f.publisher.graded, 1)
	assert.InDelta(t, 10.0, f.publisher.graded[0].RawGrade, 1e-9)
}
