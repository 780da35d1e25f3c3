package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/models"
	"github.com/propsight/prediction-api/internal/pipeline"
	"github.com/propsight/prediction-api/internal/reconcile"
)

// Mocks

type MockPredictionService struct {
	ListFunc     func(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error)
	GetFunc      func(ctx context.Context, key models.PredictionKey) (*models.Prediction, error)
	AccuracyFunc func(ctx context.Context, f models.PredictionFilter) (*reconcile.Report, error)
	SportsErr    error
	LastFilter   models.PredictionFilter
	LastSport    string
}

func (m *MockPredictionService) ListPredictions(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error) {
	m.LastFilter = f
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return []*models.Prediction{}, nil
}

func (m *MockPredictionService) GetPrediction(ctx context.Context, key models.PredictionKey) (*models.Prediction, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, models.ErrNotFound
}

func (m *MockPredictionService) AccuracyReport(ctx context.Context, f models.PredictionFilter) (*reconcile.Report, error) {
	m.LastFilter = f
	if m.AccuracyFunc != nil {
		return m.AccuracyFunc(ctx, f)
	}
	return reconcile.Reconcile(nil, nil), nil
}

func (m *MockPredictionService) ListSports(ctx context.Context) ([]string, error) {
	if m.SportsErr != nil {
		return nil, m.SportsErr
	}
	return []string{"nba", "nhl"}, nil
}

func (m *MockPredictionService) ListGameDates(ctx context.Context, sport string) ([]string, error) {
	m.LastSport = sport
	return []string{"2024-01-11", "2024-01-10"}, nil
}

type MockPipeline struct {
	RunFunc      func(ctx context.Context, req pipeline.RunRequest) (*models.RunResult, error)
	UpcomingFunc func(ctx context.Context, sport string, days int) (*pipeline.UpcomingResult, error)
	LastReq      pipeline.RunRequest
}

func (m *MockPipeline) Run(ctx context.Context, req pipeline.RunRequest) (*models.RunResult, error) {
	m.LastReq = req
	if m.RunFunc != nil {
		return m.RunFunc(ctx, req)
	}
	return &models.RunResult{RunID: "run-1", Generated: 12}, nil
}

func (m *MockPipeline) CollectActuals(ctx context.Context, sport string) (*pipeline.CollectResult, error) {
	return &pipeline.CollectResult{Pending: 1, Games: 1, Actuals: 8}, nil
}

func (m *MockPipeline) UpcomingGames(ctx context.Context, sport string, days int) (*pipeline.UpcomingResult, error) {
	if m.UpcomingFunc != nil {
		return m.UpcomingFunc(ctx, sport, days)
	}
	return &pipeline.UpcomingResult{Games: []models.RawGame{}, SportsFailed: []string{}}, nil
}

func newTestHandler(preds *MockPredictionService, pl *MockPipeline) *Handler {
	if preds == nil {
		preds = &MockPredictionService{}
	}
	if pl == nil {
		pl = &MockPipeline{}
	}
	return New(Config{
		Predictions:    preds,
		Pipeline:       pl,
		Actuals:        &MockActualsWriter{},
		AllowedOrigins: []string{"*"},
		Logger:         zap.NewNop(),
	})
}

func TestListPredictions(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		listErr        error
		expectedStatus int
		check          func(t *testing.T, f models.PredictionFilter)
	}{
		{
			name:           "No Filters Uses Default Page",
			query:          "",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f models.PredictionFilter) {
				if f.Limit != DefaultPageSize {
					t.Errorf("limit = %d, want %d", f.Limit, DefaultPageSize)
				}
			},
		},
		{
			name:           "All Filters",
			query:          "?sport=nba&date_from=2024-01-10&date_to=2024-01-11&confidence=high&limit=20&offset=40",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f models.PredictionFilter) {
				if f.Sport != "nba" || f.Confidence != models.ConfidenceHigh || f.Limit != 20 || f.Offset != 40 {
					t.Errorf("unexpected filter %+v", f)
				}
				if !f.DateFrom.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("date_from = %v", f.DateFrom)
				}
				if f.DateTo.Day() != 11 || f.DateTo.Hour() != 23 {
					t.Errorf("date_to should cover the whole day, got %v", f.DateTo)
				}
			},
		},
		{name: "Unknown Sport", query: "?sport=cricket", expectedStatus: http.StatusBadRequest},
		{name: "Bad Date", query: "?date_from=10/01/2024", expectedStatus: http.StatusBadRequest},
		{name: "Reversed Dates", query: "?date_from=2024-02-01&date_to=2024-01-01", expectedStatus: http.StatusBadRequest},
		{
			name:           "Mixed Case Tier",
			query:          "?confidence=mEdium",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f models.PredictionFilter) {
				if f.Confidence != models.ConfidenceMedium {
					t.Errorf("confidence = %q, want Medium", f.Confidence)
				}
			},
		},
		{name: "Unknown Tier", query: "?confidence=extreme", expectedStatus: http.StatusBadRequest},
		{name: "Limit Too Large", query: "?limit=5000", expectedStatus: http.StatusBadRequest},
		{name: "Limit Not A Number", query: "?limit=ten", expectedStatus: http.StatusBadRequest},
		{name: "Store Error", query: "", listErr: errors.New("db error"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPredictionService{}
			if tt.listErr != nil {
				svc.ListFunc = func(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error) {
					return nil, tt.listErr
				}
			}
			h := newTestHandler(svc, nil)

			req := httptest.NewRequest("GET", "/api/v1/predictions"+tt.query, nil)
			w := httptest.NewRecorder()
			h.Routes().ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.check != nil {
				tt.check(t, svc.LastFilter)
			}
		})
	}
}

func TestGetPrediction(t *testing.T) {
	svc := &MockPredictionService{
		GetFunc: func(ctx context.Context, key models.PredictionKey) (*models.Prediction, error) {
			if key.PlayerID == "p1" && key.GameID == "g1" && key.StatType == "points" {
				return &models.Prediction{PlayerID: "p1", GameID: "g1", StatType: "points", Line: 22.5}, nil
			}
			return nil, models.ErrNotFound
		},
	}
	router := newTestHandler(svc, nil).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/predictions/p1/g1/points", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got models.Prediction
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Line != 22.5 {
		t.Errorf("line = %v, want 22.5", got.Line)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/predictions/p9/g1/points", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetPerformance(t *testing.T) {
	svc := &MockPredictionService{}
	router := newTestHandler(svc, nil).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/performance?sport=nhl", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.LastFilter.Sport != "nhl" {
		t.Errorf("sport filter = %q", svc.LastFilter.Sport)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["overall_accuracy"] != 0.0 {
		t.Errorf("overall_accuracy = %v, want 0", body["overall_accuracy"])
	}
}

func TestRunPipeline(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		runErr         error
		expectedStatus int
	}{
		{name: "Empty Body", body: "", expectedStatus: http.StatusOK},
		{name: "Single Sport", body: `{"sport":"nba","days_ahead":3}`, expectedStatus: http.StatusOK},
		{name: "Invalid JSON", body: `{"sport":`, expectedStatus: http.StatusBadRequest},
		{name: "Unknown Sport", body: `{"sport":"cricket"}`, expectedStatus: http.StatusBadRequest},
		{name: "Days Out Of Range", body: `{"days_ahead":30}`, expectedStatus: http.StatusBadRequest},
		{name: "Run In Progress", body: "", runErr: models.ErrRunInProgress, expectedStatus: http.StatusConflict},
		{name: "Run Failure", body: "", runErr: errors.New("boom"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := &MockPipeline{}
			if tt.runErr != nil {
				pl.RunFunc = func(ctx context.Context, req pipeline.RunRequest) (*models.RunResult, error) {
					return nil, tt.runErr
				}
			}
			h := newTestHandler(nil, pl)

			req := httptest.NewRequest("POST", "/api/v1/pipeline/run", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Routes().ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestRunPipelineOutlivesWriteTimeout(t *testing.T) {
	pl := &MockPipeline{
		RunFunc: func(ctx context.Context, req pipeline.RunRequest) (*models.RunResult, error) {
			time.Sleep(300 * time.Millisecond)
			return &models.RunResult{RunID: "run-slow", Generated: 3}, nil
		},
	}
	ts := httptest.NewUnstartedServer(newTestHandler(nil, pl).Routes())
	ts.Config.WriteTimeout = 100 * time.Millisecond
	ts.Start()
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/api/v1/pipeline/run", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("run outlasting the write timeout lost its response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got models.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-slow" || got.Generated != 3 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestCollectActualsEndpoint(t *testing.T) {
	router := newTestHandler(nil, nil).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/pipeline/actuals?sport=nba", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/pipeline/actuals?sport=golf", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestListUpcomingGames(t *testing.T) {
	scheduled := time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC)
	tests := []struct {
		name           string
		query          string
		upcomingErr    error
		expectedStatus int
		wantSport      string
		wantDays       int
	}{
		{name: "All Sports Default Days", query: "", expectedStatus: http.StatusOK},
		{name: "Sport And Days", query: "?sport=nba&days_ahead=3", expectedStatus: http.StatusOK, wantSport: "nba", wantDays: 3},
		{name: "Unknown Sport", query: "?sport=cricket", expectedStatus: http.StatusBadRequest},
		{name: "Days Not A Number", query: "?days_ahead=soon", expectedStatus: http.StatusBadRequest},
		{name: "Days Out Of Range", query: "?days_ahead=30", expectedStatus: http.StatusBadRequest},
		{name: "Upstream Down", query: "?sport=nhl", upcomingErr: &models.DataSourceError{Sport: "nhl", Op: "schedule", Err: errors.New("timeout")}, expectedStatus: http.StatusBadGateway, wantSport: "nhl"},
		{name: "Other Failure", query: "", upcomingErr: errors.New("boom"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSport string
			gotDays := -1
			pl := &MockPipeline{
				UpcomingFunc: func(ctx context.Context, sport string, days int) (*pipeline.UpcomingResult, error) {
					gotSport, gotDays = sport, days
					if tt.upcomingErr != nil {
						return nil, tt.upcomingErr
					}
					return &pipeline.UpcomingResult{
						Games: []models.RawGame{{
							ID:        "nba-g1",
							Sport:     "nba",
							Scheduled: scheduled,
							Home:      models.RawTeam{ID: "bos", Name: "Boston Celtics"},
							Away:      models.RawTeam{ID: "nyk", Name: "New York Knicks"},
							Venue:     "TD Garden",
						}},
						SportsFailed: []string{},
					}, nil
				},
			}
			router := newTestHandler(nil, pl).Routes()

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/games/upcoming"+tt.query, nil))
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus == http.StatusBadRequest {
				if gotDays != -1 {
					t.Error("invalid query must not reach the pipeline")
				}
				return
			}
			if gotSport != tt.wantSport || gotDays != tt.wantDays {
				t.Errorf("pipeline got sport=%q days=%d, want %q %d", gotSport, gotDays, tt.wantSport, tt.wantDays)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var body struct {
				Games []models.RawGame `json:"games"`
				Count int              `json:"count"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Count != 1 || len(body.Games) != 1 {
				t.Fatalf("unexpected body %+v", body)
			}
			g := body.Games[0]
			if g.Home.Name != "Boston Celtics" || g.Away.Name != "New York Knicks" || g.Venue != "TD Garden" || !g.Scheduled.Equal(scheduled) {
				t.Errorf("unexpected game %+v", g)
			}
		})
	}
}

func TestListSports(t *testing.T) {
	router := newTestHandler(nil, nil).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/sports", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Sports []string `json:"sports"`
		Count  int      `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || body.Sports[0] != "nba" || body.Sports[1] != "nhl" {
		t.Errorf("unexpected body %+v", body)
	}

	failing := newTestHandler(&MockPredictionService{SportsErr: errors.New("db error")}, nil).Routes()
	w = httptest.NewRecorder()
	failing.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/sports", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestListGameDates(t *testing.T) {
	svc := &MockPredictionService{}
	router := newTestHandler(svc, nil).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/dates?sport=nba", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.LastSport != "nba" {
		t.Errorf("sport = %q, want nba", svc.LastSport)
	}
	var body struct {
		Dates []string `json:"dates"`
		Count int      `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || body.Dates[0] != "2024-01-11" {
		t.Errorf("unexpected body %+v", body)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/dates?sport=golf", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	h := New(Config{
		Checks: map[string]HealthCheck{
			"postgres": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
		},
		Logger: zap.NewNop(),
	})
	router := h.Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready: expected 503, got %d", w.Code)
	}
	var body struct {
		Ready  bool            `json:"ready"`
		Checks map[string]bool `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Ready || !body.Checks["postgres"] || body.Checks["redis"] {
		t.Errorf("unexpected readiness body %+v", body)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
}
