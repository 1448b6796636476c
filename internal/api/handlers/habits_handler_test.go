package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/seetohshaokang/HabitEase/internal/api/middleware"
	"github.com/seetohshaokang/HabitEase/internal/domain/habits"
	"github.com/seetohshaokang/HabitEase/pkg/security/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeService records the calls it receives and returns canned results
type fakeService struct {
	habits.Service

	habit      *habits.Habit
	logs       []habits.HabitLog
	completion *habits.CompletionResult
	stats      *habits.HabitStatistics
	summary    *habits.AllHabitsStatistics
	heatmap    *habits.Heatmap
	activities []habits.HabitActivity
	err        error

	gotUserID uuid.UUID
	gotValue  *string
	gotFilter habits.HabitFilter
	gotCreate habits.CreateHabitInput
	gotPage   [2]int
}

func (f *fakeService) CreateHabit(_ context.Context, input habits.CreateHabitInput) (*habits.Habit, error) {
	f.gotCreate = input
	f.gotUserID = input.UserID
	return f.habit, f.err
}

func (f *fakeService) GetHabit(_ context.Context, _, userID uuid.UUID) (*habits.Habit, error) {
	f.gotUserID = userID
	return f.habit, f.err
}

func (f *fakeService) ListHabits(_ context.Context, filter habits.HabitFilter) ([]habits.Habit, int64, error) {
	f.gotFilter = filter
	if f.habit == nil {
		return nil, 0, f.err
	}
	return []habits.Habit{*f.habit}, 1, f.err
}

func (f *fakeService) DeleteHabit(_ context.Context, _, userID uuid.UUID) error {
	f.gotUserID = userID
	return f.err
}

func (f *fakeService) LogCompletion(_ context.Context, _, userID uuid.UUID, value *string) (*habits.CompletionResult, error) {
	f.gotUserID = userID
	f.gotValue = value
	return f.completion, f.err
}

func (f *fakeService) GetHabitLogs(context.Context, uuid.UUID, uuid.UUID) ([]habits.HabitLog, error) {
	return f.logs, f.err
}

func (f *fakeService) DeleteHabitLog(context.Context, uuid.UUID, uuid.UUID) error {
	return f.err
}

func (f *fakeService) GetHabitStatistics(context.Context, uuid.UUID, uuid.UUID) (*habits.HabitStatistics, error) {
	return f.stats, f.err
}

func (f *fakeService) GetAllHabitsStatistics(_ context.Context, userID uuid.UUID) (*habits.AllHabitsStatistics, error) {
	f.gotUserID = userID
	return f.summary, f.err
}

func (f *fakeService) GetHeatmap(context.Context, uuid.UUID, uuid.UUID) (*habits.Heatmap, error) {
	return f.heatmap, f.err
}

func (f *fakeService) GetHabitActivity(_ context.Context, _, _ uuid.UUID, page, pageSize int) ([]habits.HabitActivity, int64, error) {
	f.gotPage = [2]int{page, pageSize}
	return f.activities, int64(len(f.activities)), f.err
}

type testServer struct {
	router *gin.Engine
	userID uuid.UUID
	token  string
}

func newTestServer(t *testing.T, svc habits.Service) *testServer {
	t.Helper()
	userID := uuid.New()
	token, err := auth.GenerateToken(userID, testSecret, 1)
	require.NoError(t, err)

	h := NewHabitsHandler(svc)
	router := gin.New()
	group := router.Group("/api/habits", middleware.NewAuthMiddleware(testSecret))
	group.GET("", h.ListHabits)
	group.POST("", h.CreateHabit)
	group.GET("/statistics/summary", h.GetStatisticsSummary)
	group.DELETE("/log/:logId", h.DeleteHabitLog)
	group.GET("/:id", h.GetHabit)
	group.DELETE("/:id", h.DeleteHabit)
	group.PUT("/:id/complete", h.CompleteHabit)
	group.GET("/:id/logs", h.GetHabitLogs)
	group.GET("/:id/statistics", h.GetHabitStatistics)
	group.GET("/:id/heatmap", h.GetHabitHeatmap)
	group.GET("/:id/activity", h.GetHabitActivity)

	return &testServer{router: router, userID: userID, token: token}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func sampleHabit(userID uuid.UUID) *habits.Habit {
	unit := "pages"
	return &habits.Habit{
		ID:     uuid.New(),
		UserID: userID,
		Name:   "Read",
		Logo:   "📚",
		Unit:   &unit,
		Streak: 3,
	}
}

func TestCreateHabit(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)
	svc.habit = sampleHabit(srv.userID)

	w := srv.do(http.MethodPost, "/api/habits", `{"name":"Read","logo":"📚","unit":"pages"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "Read", data["name"])
	assert.Equal(t, "pages", data["unit"])
	assert.Equal(t, srv.userID, svc.gotCreate.UserID)
	assert.Equal(t, "Read", svc.gotCreate.Name)
}

func TestCreateHabit_RequiresName(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	w := srv.do(http.MethodPost, "/api/habits", `{"logo":"x"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHabitsHandler_RequiresToken(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/api/habits", nil)
	w := httptest.NewRecorder()

	srv.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListHabits_ScopesToCaller(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)
	svc.habit = sampleHabit(srv.userID)

	w := srv.do(http.MethodGet, "/api/habits?page=1&page_size=5", "")

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.gotFilter.UserID)
	assert.Equal(t, srv.userID, *svc.gotFilter.UserID)
	assert.Equal(t, 1, svc.gotFilter.Page)
	assert.Equal(t, 5, svc.gotFilter.PageSize)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["total_count"])
}

func TestHabitsHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "Not found", err: habits.ErrHabitNotFound, status: http.StatusNotFound},
		{name: "Wrapped invalid input", err: fmt.Errorf("%w: name is required", habits.ErrInvalidInput), status: http.StatusBadRequest},
		{name: "Concurrent update", err: habits.ErrConcurrentUpdate, status: http.StatusConflict},
		{name: "Store failure", err: fmt.Errorf("failed to load habit: %w", context.DeadlineExceeded), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeService{err: tt.err})

			w := srv.do(http.MethodGet, "/api/habits/"+uuid.NewString(), "")

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "deadline")
			}
		})
	}
}

func TestGetHabit_InvalidID(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	w := srv.do(http.MethodGet, "/api/habits/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompleteHabit(t *testing.T) {
	habitID := uuid.New()
	value := "12"
	svc := &fakeService{completion: &habits.CompletionResult{
		Log:           habits.HabitLog{ID: uuid.New(), HabitID: habitID, Timestamp: time.Now(), Value: &value},
		UpdatedStreak: 4,
		FirstOfDay:    true,
	}}
	srv := newTestServer(t, svc)

	t.Run("With value", func(t *testing.T) {
		w := srv.do(http.MethodPut, "/api/habits/"+habitID.String()+"/complete", `{"value":"12"}`)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, float64(4), data["streak"])
		assert.Equal(t, true, data["first_of_day"])
		require.NotNil(t, svc.gotValue)
		assert.Equal(t, "12", *svc.gotValue)
		assert.Equal(t, srv.userID, svc.gotUserID)
	})

	t.Run("Without body", func(t *testing.T) {
		svc.gotValue = nil
		w := srv.do(http.MethodPut, "/api/habits/"+habitID.String()+"/complete", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, svc.gotValue)
	})
}

func TestGetHabitStatistics(t *testing.T) {
	change := 50.0
	svc := &fakeService{stats: &habits.HabitStatistics{
		TotalLogs:               4,
		UniqueCompletionDays:    3,
		CompletionRate:          30,
		MonthlyChangePercentage: &change,
		CurrentStreak:           2,
	}}
	srv := newTestServer(t, svc)

	w := srv.do(http.MethodGet, "/api/habits/"+uuid.NewString()+"/statistics", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(4), data["total_logs"])
	assert.Equal(t, float64(3), data["unique_completion_days"])
	assert.Equal(t, 50.0, data["monthly_change_percentage"])
}

func TestGetStatisticsSummary_NullMostConsistent(t *testing.T) {
	svc := &fakeService{summary: &habits.AllHabitsStatistics{Habits: []habits.HabitSummary{}}}
	srv := newTestServer(t, svc)

	w := srv.do(http.MethodGet, "/api/habits/statistics/summary", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Contains(t, data, "most_consistent_habit_id")
	assert.Nil(t, data["most_consistent_habit_id"])
	assert.Equal(t, srv.userID, svc.gotUserID)
}

func TestGetHabitActivity_Pagination(t *testing.T) {
	svc := &fakeService{activities: []habits.HabitActivity{{
		ID:       uuid.New(),
		Action:   habits.ActionHabitCompleted,
		Metadata: []byte(`{"streak":2}`),
	}}}
	srv := newTestServer(t, svc)

	w := srv.do(http.MethodGet, "/api/habits/"+uuid.NewString()+"/activity?page=2", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]int{2, defaultPageSize}, svc.gotPage)
	data := decodeData(t, w)
	activities := data["activities"].([]interface{})
	require.Len(t, activities, 1)
	metadata := activities[0].(map[string]interface{})["metadata"].(map[string]interface{})
	assert.Equal(t, float64(2), metadata["streak"])
}

func TestDeleteHabitLog_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeService{err: habits.ErrLogNotFound})

	w := srv.do(http.MethodDelete, "/api/habits/log/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stubIssuer struct{}

func (stubIssuer) Issue(userID uuid.UUID) (string, time.Time, error) {
	return "token-" + userID.String(), time.Now().Add(720 * time.Hour), nil
}

func TestIssueToken(t *testing.T) {
	router := gin.New()
	router.GET("/api/auth/token", NewAuthHandler(stubIssuer{}).IssueToken)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/token", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	userID, err := uuid.Parse(data["user_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "token-"+userID.String(), data["token"])
}
