package handler

import (
	"github.com/epikoding/giftpool/internal/gift"
	"github.com/epikoding/giftpool/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the session API under /api. limiter may be nil.
func RegisterRoutes(r gin.IRouter, service *gift.Service, limiter *ratelimit.Limiter) {
	sessionHandler := NewSessionHandler(service)
	participantHandler := NewParticipantHandler(service)
	exportHandler := NewExportHandler(service)

	api := r.Group("/api")
	{
		// Sessions
		api.POST("/sessions", ratelimit.Middleware(limiter, ratelimit.ActionCreate), sessionHandler.Create)
		api.GET("/sessions/:sessionId", sessionHandler.Get)
		api.PUT("/sessions/:sessionId", sessionHandler.Update)
		api.DELETE("/sessions/:sessionId", sessionHandler.Delete)
		api.POST("/sessions/:sessionId/validate-organizer", sessionHandler.ValidateOrganizer)

		// Participants
		api.POST("/sessions/:sessionId/participants", ratelimit.Middleware(limiter, ratelimit.ActionJoin), participantHandler.Add)
		api.DELETE("/sessions/:sessionId/participants/:participantId", participantHandler.Remove)
		api.GET("/sessions/:sessionId/participants/check/:name", participantHandler.Check)

		// Export
		api.GET("/sessions/:sessionId/export", exportHandler.Export)
	}
}
