package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/propsight/prediction-api/internal/models"
	"github.com/propsight/prediction-api/internal/pipeline"
)

// RunPipeline triggers a prediction run and waits for it to finish
// @Summary Run Prediction Pipeline
// @Tags Pipeline
// @Accept json
// @Produce json
// @Param body body pipeline.RunRequest false "Scope of the run"
// @Success 200 {object} models.RunResult
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 409 {object} map[string]string "Run already in progress"
// @Router /pipeline/run [post]
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipeline.RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives a disconnected client.
	result, err := h.pipeline.Run(context.WithoutCancel(r.Context()), req)
	if errors.Is(err, models.ErrRunInProgress) {
		h.errorResponse(w, http.StatusConflict, "A pipeline run is already in progress")
		return
	}
	if err != nil {
		h.logger.Errorw("Pipeline run failed", "error", err, "sport", req.Sport)
		h.errorResponse(w, http.StatusInternalServerError, "Pipeline run failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, result)
}

// CollectActuals fetches box scores for finished games
// @Summary Collect Actual Results
// @Tags Pipeline
// @Produce json
// @Param sport query string false "Sport code"
// @Success 200 {object} pipeline.CollectResult
// @Router /pipeline/actuals [post]
func (h *Handler) CollectActuals(w http.ResponseWriter, r *http.Request) {
	sport := r.URL.Query().Get("sport")
	if err := h.validator.Var(sport, "omitempty,oneof=nba nfl mlb nhl ncaafb ncaamb"); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Unsupported sport")
		return
	}

	res, err := h.pipeline.CollectActuals(context.WithoutCancel(r.Context()), sport)
	if err != nil {
		h.logger.Errorw("Actual results collection failed", "error", err, "sport", sport)
		h.errorResponse(w, http.StatusInternalServerError, "Actual results collection failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, res)
}
