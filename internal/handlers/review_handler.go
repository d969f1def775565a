package handler

import (
	"net/http"
	"strconv"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/repository"
	"bank-reconciliation-engine/internal/services/review"

	"github.com/gin-gonic/gin"
)

type ReviewHandler struct {
	queue *review.Manager
}

func NewReviewHandler(queue *review.Manager) *ReviewHandler {
	return &ReviewHandler{queue: queue}
}

func (h *ReviewHandler) ListQueue(c *gin.Context) {
	filter := repository.QueueFilter{
		Status:   models.ReviewStatus(c.Query("status")),
		Priority: models.ReviewPriority(c.Query("priority")),
	}
	if raw := c.Query("session_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		filter.SessionID = uint(id)
	}

	items, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *ReviewHandler) CompleteReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var payload struct {
		Decision string `json:"decision"` // approved | rejected
		Notes    string `json:"notes"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	item, err := h.queue.CompleteReview(c.Request.Context(), id, models.MatchStatus(payload.Decision), payload.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "review completed", "item": item})
}

func (h *ReviewHandler) BulkApprove(c *gin.Context) {
	var payload struct {
		MatchIDs []uint `json:"match_ids"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(payload.MatchIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "match_ids must not be empty"})
		return
	}

	result, err := h.queue.BulkApprove(c.Request.Context(), payload.MatchIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
