package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
	"github.com/EthanVT97/rangoon-middleware/internal/monitor"
)

// DashboardMetrics serves the aggregated job metrics for the caller.
func (h *Handler) DashboardMetrics(c *gin.Context) {
	metrics, err := h.monitor.Metrics(CurrentUserID(c))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to compute dashboard metrics")
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to compute metrics", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, metrics)
}

// RecentErrors serves the latest jobs with logged errors.
func (h *Handler) RecentErrors(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	errs, err := h.monitor.RecentErrors(CurrentUserID(c), limit)
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to load recent errors", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, errs)
}

// ActiveJobs serves live snapshots of the caller's running jobs.
func (h *Handler) ActiveJobs(c *gin.Context) {
	jobs := h.monitor.ActiveJobs(CurrentUserID(c))
	if jobs == nil {
		jobs = []monitor.ActiveJob{}
	}
	RespondWithSuccess(c, http.StatusOK, jobs)
}
