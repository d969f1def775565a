package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bank-reconciliation-engine/internal/models"
	service "bank-reconciliation-engine/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
)

type ReconciliationHandler struct {
	service *service.Service
}

func NewReconciliationHandler(s *service.Service) *ReconciliationHandler {
	return &ReconciliationHandler{service: s}
}

// respondError maps the engine's error taxonomy onto HTTP statuses.
// Conflicts carry the authoritative current state so the caller can refresh
// and retry deliberately.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *models.ValidationError
		configErr     *models.ConfigError
		notFoundErr   *models.NotFoundError
		conflictErr   *models.ConflictError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &configErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "current": conflictErr.Current})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func (h *ReconciliationHandler) CreateSession(c *gin.Context) {
	var payload struct {
		Name       string               `json:"name"`
		Type       string               `json:"type"`
		AccountIDs []uint               `json:"account_ids"`
		PeriodFrom string               `json:"period_from"` // "2006-01-02"
		PeriodTo   string               `json:"period_to"`
		Config     models.SessionConfig `json:"config"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	from, err := time.Parse("2006-01-02", payload.PeriodFrom)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_from, expected yyyy-mm-dd"})
		return
	}
	to, err := time.Parse("2006-01-02", payload.PeriodTo)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_to, expected yyyy-mm-dd"})
		return
	}

	sess, err := h.service.CreateSession(c.Request.Context(), service.CreateSessionRequest{
		Name:       payload.Name,
		Type:       models.ReconciliationType(payload.Type),
		AccountIDs: payload.AccountIDs,
		PeriodFrom: from,
		PeriodTo:   to,
		Config:     payload.Config,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// Processing runs asynchronously; the caller polls the session.
	go func(id uint) {
		_ = h.service.Process(context.Background(), id)
	}(sess.ID)

	c.JSON(http.StatusAccepted, gin.H{"message": "session created", "session": sess})
}

func (h *ReconciliationHandler) ListSessions(c *gin.Context) {
	sessions, err := h.service.ListSessions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *ReconciliationHandler) GetSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sess, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *ReconciliationHandler) ListMatches(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	matches, err := h.service.ListMatches(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (h *ReconciliationHandler) GetAnalytics(c *gin.Context) {
	analytics, err := h.service.Analytics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analytics": analytics})
}
