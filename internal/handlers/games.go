package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/propsight/prediction-api/internal/models"
)

type upcomingQuery struct {
	Sport     string `validate:"omitempty,oneof=nba nfl mlb nhl ncaafb ncaamb"`
	DaysAhead int    `validate:"gte=0,lte=14"`
}

// ListUpcomingGames returns the adapted upstream schedule
// @Summary List Upcoming Games
// @Tags Games
// @Produce json
// @Param sport query string false "Sport code"
// @Param days_ahead query int false "Days ahead (max 14)"
// @Success 200 {object} pipeline.UpcomingResult
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 502 {object} map[string]string "Upstream unavailable"
// @Router /games/upcoming [get]
func (h *Handler) ListUpcomingGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uq := upcomingQuery{Sport: q.Get("sport")}
	if raw := q.Get("days_ahead"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.errorResponse(w, http.StatusBadRequest, "days_ahead must be an integer")
			return
		}
		uq.DaysAhead = n
	}
	if err := h.validator.Struct(&uq); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.pipeline.UpcomingGames(r.Context(), uq.Sport, uq.DaysAhead)
	var dsErr *models.DataSourceError
	if errors.As(err, &dsErr) {
		h.logger.Warnw("Upcoming games unavailable", "error", err, "sport", uq.Sport)
		h.errorResponse(w, http.StatusBadGateway, "Upcoming games unavailable")
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to list upcoming games", "error", err, "sport", uq.Sport)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to list upcoming games")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"games":         res.Games,
		"count":         len(res.Games),
		"sports_failed": res.SportsFailed,
	})
}

// ListSports returns the sports that have stored predictions
// @Summary List Sports
// @Tags Predictions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /sports [get]
func (h *Handler) ListSports(w http.ResponseWriter, r *http.Request) {
	sports, err := h.predictions.ListSports(r.Context())
	if err != nil {
		h.logger.Errorw("Failed to list sports", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to list sports")
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"sports": sports,
		"count":  len(sports),
	})
}

// ListGameDates returns the game dates that have stored predictions, newest first
// @Summary List Prediction Dates
// @Tags Predictions
// @Produce json
// @Param sport query string false "Sport code"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Bad Request"
// @Router /dates [get]
func (h *Handler) ListGameDates(w http.ResponseWriter, r *http.Request) {
	sport := r.URL.Query().Get("sport")
	if err := h.validator.Var(sport, "omitempty,oneof=nba nfl mlb nhl ncaafb ncaamb"); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Unsupported sport")
		return
	}

	dates, err := h.predictions.ListGameDates(r.Context(), sport)
	if err != nil {
		h.logger.Errorw("Failed to list game dates", "error", err, "sport", sport)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to list game dates")
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"dates": dates,
		"count": len(dates),
	})
}
