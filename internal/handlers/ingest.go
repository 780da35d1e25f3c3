package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/propsight/prediction-api/internal/models"
)

// IngestActuals handles POST /api/v1/actuals
// @Summary Ingest Actual Results
// @Description Accepts a JSON array or newline-separated JSON actual results
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param body body []models.ActualResult true "Actual results"
// @Success 202 {object} map[string]interface{} "Accepted"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 413 {object} map[string]string "Request Entity Too Large"
// @Router /actuals [post]
func (h *Handler) IngestActuals(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.errorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	defer r.Body.Close()

	var candidates []models.ActualResult
	rejected := 0

	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &candidates); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "Invalid JSON array")
			return
		}
	} else {
		for i, line := range strings.Split(string(trimmed), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var a models.ActualResult
			if err := json.Unmarshal([]byte(line), &a); err != nil {
				h.logger.Warnw("Failed to unmarshal actual result", "error", err, "lineNum", i)
				rejected++
				continue
			}
			candidates = append(candidates, a)
		}
	}

	valid := make([]models.ActualResult, 0, len(candidates))
	for i := range candidates {
		if err := h.validator.Struct(&candidates[i]); err != nil {
			h.logger.Warnw("Validation failed for actual result", "error", err, "key", candidates[i].Key().String())
			rejected++
			continue
		}
		valid = append(valid, candidates[i])
	}

	processed := 0
	if len(valid) > 0 {
		processed, err = h.actuals.UpsertActuals(r.Context(), valid)
		if err != nil {
			h.logger.Errorw("Failed to store actual results", "error", err, "count", len(valid))
			h.errorResponse(w, http.StatusInternalServerError, "Failed to store actual results")
			return
		}
	}

	h.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
		"status":    "accepted",
		"processed": processed,
		"rejected":  rejected,
	})
}
