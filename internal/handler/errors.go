package handler

import (
	"errors"
	"net/http"

	"github.com/epikoding/giftpool/internal/gift"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// respondError maps a gift error to its HTTP status. Unexpected errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	var verr *gift.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, gift.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, gift.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, gift.ErrDuplicateName), errors.Is(err, gift.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Errorf("[Handler] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
