package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astroveda/consult/internal/dtos"
	"github.com/astroveda/consult/internal/httputil"
)

type AstrologerAPI interface {
	Profile(ctx context.Context, rawID string) (*dtos.AstrologerProfile, error)
}

type AstrologerHandler struct {
	astrologers AstrologerAPI
}

func NewAstrologerHandler(astrologers AstrologerAPI) *AstrologerHandler {
	return &AstrologerHandler{astrologers: astrologers}
}

// GetProfile handles GET /api/astrologers/:id
func (h *AstrologerHandler) GetProfile(c *gin.Context) {
	profile, err := h.astrologers.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
