package handler

import (
	"net/http"
	"strconv"

	"github.com/epikoding/giftpool/internal/gift"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ParticipantHandler struct {
	service *gift.Service
}

func NewParticipantHandler(service *gift.Service) *ParticipantHandler {
	return &ParticipantHandler{service: service}
}

type AddParticipantRequest struct {
	Name         string           `json:"name" binding:"required,max=100"`
	Contribution *decimal.Decimal `json:"contribution" binding:"required"`
}

func (h *ParticipantHandler) Add(c *gin.Context) {
	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and contribution are required")
		return
	}

	p, err := h.service.AddParticipant(c.Request.Context(), c.Param("sessionId"), req.Name, *req.Contribution)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *ParticipantHandler) Remove(c *gin.Context) {
	participantID, err := strconv.ParseInt(c.Param("participantId"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid participant ID")
		return
	}

	var req SecretRequest
	_ = c.ShouldBindJSON(&req)

	removed, err := h.service.RemoveSessionParticipant(c.Request.Context(), c.Param("sessionId"), participantID, organizerSecret(c, req.OrganizerSecret))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "participant": removed})
}

func (h *ParticipantHandler) Check(c *gin.Context) {
	exists, err := h.service.ParticipantExists(c.Request.Context(), c.Param("sessionId"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}
