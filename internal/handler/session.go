package handler

import (
	"net/http"

	"github.com/epikoding/giftpool/internal/gift"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const secretHeader = "X-Organizer-Secret"

type SessionHandler struct {
	service *gift.Service
}

func NewSessionHandler(service *gift.Service) *SessionHandler {
	return &SessionHandler{service: service}
}

type CreateSessionRequest struct {
	OrganizerName         string           `json:"organizerName" binding:"required,max=100"`
	GiftName              string           `json:"giftName" binding:"required,max=255"`
	GiftLink              string           `json:"giftLink" binding:"omitempty,url"`
	GiftPrice             *decimal.Decimal `json:"giftPrice" binding:"required"`
	OrganizerContribution *decimal.Decimal `json:"organizerContribution" binding:"required"`
	ExpectedParticipants  int              `json:"expectedParticipants" binding:"required,min=1"`
	OrganizerSecret       string           `json:"organizerSecret" binding:"required,min=4,max=100"`
}

type UpdateSessionRequest struct {
	OrganizerSecret       string           `json:"organizerSecret"`
	GiftName              *string          `json:"giftName" binding:"omitempty,max=255"`
	GiftLink              *string          `json:"giftLink"`
	GiftPrice             *decimal.Decimal `json:"giftPrice"`
	OrganizerContribution *decimal.Decimal `json:"organizerContribution"`
}

type SecretRequest struct {
	OrganizerSecret string `json:"organizerSecret"`
}

// organizerSecret prefers the body field and falls back to the header.
func organizerSecret(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.GetHeader(secretHeader)
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "organizerName, giftName, giftPrice, organizerContribution, expectedParticipants and organizerSecret are required")
		return
	}

	id, err := h.service.CreateSession(c.Request.Context(), gift.CreateSessionInput{
		OrganizerName:         req.OrganizerName,
		GiftName:              req.GiftName,
		GiftLink:              req.GiftLink,
		GiftPrice:             *req.GiftPrice,
		OrganizerContribution: *req.OrganizerContribution,
		ExpectedParticipants:  req.ExpectedParticipants,
		OrganizerSecret:       req.OrganizerSecret,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"sessionId": id})
}

func (h *SessionHandler) Get(c *gin.Context) {
	view, err := h.service.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) ValidateOrganizer(c *gin.Context) {
	var req SecretRequest
	_ = c.ShouldBindJSON(&req)

	valid, err := h.service.ValidateOrganizer(c.Request.Context(), c.Param("sessionId"), organizerSecret(c, req.OrganizerSecret))
	if err != nil {
		respondError(c, err)
		return
	}
	if !valid {
		c.JSON(http.StatusForbidden, gin.H{"valid": false, "error": gift.ErrUnauthorized.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *SessionHandler) Update(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	err := h.service.UpdateSession(c.Request.Context(), c.Param("sessionId"), organizerSecret(c, req.OrganizerSecret), gift.UpdateSessionInput{
		GiftName:              req.GiftName,
		GiftLink:              req.GiftLink,
		GiftPrice:             req.GiftPrice,
		OrganizerContribution: req.OrganizerContribution,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	var req SecretRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.service.DeleteSession(c.Request.Context(), c.Param("sessionId"), organizerSecret(c, req.OrganizerSecret)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
