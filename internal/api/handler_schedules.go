package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"procedure-scheduler-backend/internal/engine"
	"procedure-scheduler-backend/internal/parse"
	"procedure-scheduler-backend/internal/runner"
	"procedure-scheduler-backend/internal/store"
)

const dateLayout = "2006-01-02"

type scheduleRequest struct {
	Backlog      []engine.BacklogEntry  `json:"backlog"`
	Durations    []engine.DurationEntry `json:"durations"`
	StartDate    string                 `json:"start_date" binding:"required"`
	EndDate      string                 `json:"end_date" binding:"required"`
	Async        bool                   `json:"async"`
	Subscription *webpush.Subscription  `json:"subscription"`
}

// PostSchedule runs the engine on a JSON request body.
func (h *Handler) PostSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.schedule(c, req)
}

// PostScheduleUpload runs the engine on multipart CSV uploads: a required
// "backlog" file and an optional "durations" file. An async upload may carry
// a push subscription as JSON in the "subscription" field.
func (h *Handler) PostScheduleUpload(c *gin.Context) {
	req := scheduleRequest{
		StartDate: c.PostForm("start_date"),
		EndDate:   c.PostForm("end_date"),
	}
	req.Async, _ = strconv.ParseBool(c.PostForm("async"))
	if raw := c.PostForm("subscription"); raw != "" {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid subscription: %v", err)})
			return
		}
		req.Subscription = &sub
	}

	backlog, err := c.FormFile("backlog")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing backlog file"})
		return
	}
	if err := readUpload(backlog, func(f multipart.File) (err error) {
		req.Backlog, err = parse.ReadBacklog(f)
		return err
	}); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if durations, err := c.FormFile("durations"); err == nil {
		if err := readUpload(durations, func(f multipart.File) (err error) {
			req.Durations, err = parse.ReadDurations(f)
			return err
		}); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.schedule(c, req)
}

func readUpload(fh *multipart.FileHeader, read func(multipart.File) error) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return read(f)
}

func (h *Handler) schedule(c *gin.Context, body scheduleRequest) {
	req, err := h.engineRequest(c.Request.Context(), body)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if body.Async {
		sub := body.Subscription
		if sub != nil && sub.Endpoint == "" {
			sub = nil
		}
		id, err := h.pool.Submit(req, sub)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Location", "/api/schedules/"+id)
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": runner.StatusPending})
		return
	}

	run, err := h.pool.Run(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// engineRequest parses the date range and fills durations from the
// catalogue when the request carries none.
func (h *Handler) engineRequest(ctx context.Context, body scheduleRequest) (engine.Request, error) {
	verr := &engine.ValidationError{}
	start, err := time.ParseInLocation(dateLayout, body.StartDate, h.loc)
	if err != nil {
		verr.Issues = append(verr.Issues, fmt.Sprintf("start_date %q is not YYYY-MM-DD", body.StartDate))
	}
	end, err := time.ParseInLocation(dateLayout, body.EndDate, h.loc)
	if err != nil {
		verr.Issues = append(verr.Issues, fmt.Sprintf("end_date %q is not YYYY-MM-DD", body.EndDate))
	}
	if verr.HasIssues() {
		return engine.Request{}, verr
	}

	durations := body.Durations
	if len(durations) == 0 && h.store != nil {
		types, err := h.store.ListProcedureTypes(ctx)
		if err != nil {
			return engine.Request{}, err
		}
		durations = store.DurationEntries(types)
	}

	return engine.Request{
		Backlog:   body.Backlog,
		Durations: durations,
		StartDate: start,
		EndDate:   end,
	}, nil
}

// GetSchedule returns the state of a run.
func (h *Handler) GetSchedule(c *gin.Context) {
	run, ok := h.pool.Registry().Get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// CancelSchedule stops a queued or running run. It answers 202 with the
// run as it stood when the cancellation was requested.
func (h *Handler) CancelSchedule(c *gin.Context) {
	run, err := h.pool.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, runner.ErrRunNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case errors.Is(err, runner.ErrRunFinished):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "run already finished", "status": run.Status})
	case err != nil:
		abortWithError(c, err)
	default:
		c.JSON(http.StatusAccepted, run)
	}
}

// ExportSchedule streams a finished run's bookings as CSV.
func (h *Handler) ExportSchedule(c *gin.Context) {
	run, ok := h.pool.Registry().Get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if run.Status != runner.StatusSucceeded || run.Result == nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "run has no schedule", "status": run.Status})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="schedule-%s.csv"`, run.ID))
	c.Status(http.StatusOK)
	if err := parse.WriteBookings(c.Writer, run.Result.Bookings); err != nil {
		c.Error(err)
	}
}
