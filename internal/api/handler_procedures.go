package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"procedure-scheduler-backend/internal/model"
	"procedure-scheduler-backend/internal/parse"
	"procedure-scheduler-backend/internal/store"
)

const proceduresPath = "/api/procedures"

// GetProcedures returns the persisted duration table.
func (h *Handler) GetProcedures(c *gin.Context) {
	types, err := h.store.ListProcedureTypes(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve procedure types"})
		return
	}
	if types == nil {
		types = []model.ProcedureType{}
	}
	c.JSON(http.StatusOK, types)
}

// PutProcedures upserts procedure types from a JSON array or a duration CSV.
func (h *Handler) PutProcedures(c *gin.Context) {
	var items []model.ProcedureType
	if strings.HasPrefix(c.ContentType(), "text/csv") {
		entries, err := parse.ReadDurations(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items = store.ProcedureTypes(entries)
	} else if err := c.ShouldBindJSON(&items); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpsertProcedureTypes(c.Request.Context(), items); err != nil {
		abortWithError(c, err)
		return
	}
	h.invalidateProcedures()

	c.JSON(http.StatusOK, gin.H{"upserted": len(items)})
}

// DeleteProcedure removes one procedure type by name.
func (h *Handler) DeleteProcedure(c *gin.Context) {
	deleted, err := h.store.DeleteProcedureType(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !deleted {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "procedure type not found"})
		return
	}
	h.invalidateProcedures()
	c.Status(http.StatusNoContent)
}

func (h *Handler) invalidateProcedures() {
	if h.cache != nil {
		h.cache.Invalidate(proceduresPath)
	}
}
