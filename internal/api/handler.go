package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"procedure-scheduler-backend/internal/engine"
	"procedure-scheduler-backend/internal/mw"
	"procedure-scheduler-backend/internal/runner"
	"procedure-scheduler-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	pool    *runner.Pool
	cache   *mw.ResponseCache
	webpush *webpush.Options
	loc     *time.Location
}

// NewHandler creates a new API handler. webpushOptions may be nil.
func NewHandler(s store.Store, pool *runner.Pool, cache *mw.ResponseCache, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:   s,
		pool:    pool,
		cache:   cache,
		webpush: webpushOptions,
		loc:     loc,
	}
}

// statusFor maps an error to the HTTP status the API reports for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrQueueFull), errors.Is(err, runner.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrInvalidProcedure):
		return http.StatusBadRequest
	}
	switch engine.ErrorKind(err) {
	case "validation":
		return http.StatusBadRequest
	case "model_too_large":
		return http.StatusRequestEntityTooLarge
	case "canceled":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if kind := engine.ErrorKind(err); kind != "unexpected" {
		body["kind"] = kind
	}
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		body["issues"] = verr.Issues
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}
