package routes

import (
	"github.com/gin-gonic/gin"

	handler "bank-reconciliation-engine/internal/handlers"
	"bank-reconciliation-engine/internal/repository"
	service "bank-reconciliation-engine/internal/services/reconciliation"
	"bank-reconciliation-engine/internal/services/review"
	"bank-reconciliation-engine/internal/services/scoring"
)

func RegisterRoutes(r *gin.Engine, store repository.Store) {
	scorer := scoring.NewEngine(scoring.DefaultConfig())
	queue := review.NewManager(store)
	reconService := service.NewService(store, scorer, queue)

	reconHandler := handler.NewReconciliationHandler(reconService)
	reviewHandler := handler.NewReviewHandler(queue)

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	recon := api.Group("/reconciliation")
	recon.POST("/sessions", reconHandler.CreateSession)
	recon.GET("/sessions", reconHandler.ListSessions)
	recon.GET("/sessions/:id", reconHandler.GetSession)
	recon.GET("/sessions/:id/matches", reconHandler.ListMatches)
	recon.GET("/analytics", reconHandler.GetAnalytics)

	recon.POST("/matches/bulk-approve", reviewHandler.BulkApprove)
	recon.GET("/review-queue", reviewHandler.ListQueue)
	recon.POST("/review-queue/:id/complete", reviewHandler.CompleteReview)
}
