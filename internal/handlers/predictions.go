package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/propsight/prediction-api/internal/models"
)

// DefaultPageSize applies when a list request has no limit.
const DefaultPageSize = 100

const dateLayout = "2006-01-02"

// predictionQuery is the validated form of the list and performance query
// strings.
type predictionQuery struct {
	Sport      string `validate:"omitempty,oneof=nba nfl mlb nhl ncaafb ncaamb"`
	DateFrom   string `validate:"omitempty,datetime=2006-01-02"`
	DateTo     string `validate:"omitempty,datetime=2006-01-02"`
	Confidence string `validate:"omitempty,max=16"`
	PlayerID   string `validate:"omitempty,max=64"`
	GameID     string `validate:"omitempty,max=64"`
	Limit      int    `validate:"gte=0,lte=1000"`
	Offset     int    `validate:"gte=0"`
}

// parseFilter reads and validates the prediction filter from the query string.
func (h *Handler) parseFilter(q url.Values) (models.PredictionFilter, error) {
	pq := predictionQuery{
		Sport:      q.Get("sport"),
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
		Confidence: q.Get("confidence"),
		PlayerID:   q.Get("player_id"),
		GameID:     q.Get("game_id"),
	}
	for name, dst := range map[string]*int{"limit": &pq.Limit, "offset": &pq.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return models.PredictionFilter{}, fmt.Errorf("%s must be an integer", name)
			}
			*dst = n
		}
	}
	if err := h.validator.Struct(&pq); err != nil {
		return models.PredictionFilter{}, err
	}

	f := models.PredictionFilter{
		Sport:    pq.Sport,
		PlayerID: pq.PlayerID,
		GameID:   pq.GameID,
		Limit:    pq.Limit,
		Offset:   pq.Offset,
	}
	if pq.Confidence != "" {
		tier, err := models.ParseConfidenceTier(pq.Confidence)
		if err != nil {
			return models.PredictionFilter{}, err
		}
		f.Confidence = tier
	}
	if pq.DateFrom != "" {
		f.DateFrom, _ = time.Parse(dateLayout, pq.DateFrom)
	}
	if pq.DateTo != "" {
		to, _ := time.Parse(dateLayout, pq.DateTo)
		// Inclusive of the whole day.
		f.DateTo = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(f.DateTo) {
		return models.PredictionFilter{}, errors.New("date_from must not be after date_to")
	}
	return f, nil
}

// ListPredictions returns stored predictions matching the filters
// @Summary List Predictions
// @Tags Predictions
// @Produce json
// @Param sport query string false "Sport code"
// @Param date_from query string false "First game date (YYYY-MM-DD)"
// @Param date_to query string false "Last game date (YYYY-MM-DD), inclusive"
// @Param confidence query string false "High, Medium or Low"
// @Param limit query int false "Page size (max 1000)"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Bad Request"
// @Router /predictions [get]
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r.URL.Query())
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultPageSize
	}

	preds, err := h.predictions.ListPredictions(r.Context(), filter)
	if err != nil {
		h.logger.Errorw("Failed to list predictions", "error", err, "sport", filter.Sport)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to list predictions")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"predictions": preds,
		"count":       len(preds),
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

// GetPrediction returns one prediction by its key
// @Summary Get Prediction
// @Tags Predictions
// @Produce json
// @Param player path string true "Player ID"
// @Param game path string true "Game ID"
// @Param stat path string true "Statistic"
// @Success 200 {object} models.Prediction
// @Failure 404 {object} map[string]string "Not Found"
// @Router /predictions/{player}/{game}/{stat} [get]
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	key := models.PredictionKey{
		PlayerID: chi.URLParam(r, "player"),
		GameID:   chi.URLParam(r, "game"),
		StatType: chi.URLParam(r, "stat"),
	}
	if !key.Valid() {
		h.errorResponse(w, http.StatusBadRequest, "player, game and stat are required")
		return
	}

	pred, err := h.predictions.GetPrediction(r.Context(), key)
	if errors.Is(err, models.ErrNotFound) {
		h.errorResponse(w, http.StatusNotFound, "Prediction not found")
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to get prediction", "error", err, "key", key.String())
		h.errorResponse(w, http.StatusInternalServerError, "Failed to get prediction")
		return
	}

	h.jsonResponse(w, http.StatusOK, pred)
}

// GetPerformance grades stored predictions against actual results
// @Summary Prediction Accuracy
// @Tags Predictions
// @Produce json
// @Param sport query string false "Sport code"
// @Param date_from query string false "First game date (YYYY-MM-DD)"
// @Param date_to query string false "Last game date (YYYY-MM-DD), inclusive"
// @Success 200 {object} reconcile.Report
// @Failure 400 {object} map[string]string "Bad Request"
// @Router /performance [get]
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r.URL.Query())
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.predictions.AccuracyReport(r.Context(), filter)
	if err != nil {
		h.logger.Errorw("Failed to build accuracy report", "error", err, "sport", filter.Sport)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to build accuracy report")
		return
	}

	h.jsonResponse(w, http.StatusOK, report)
}
