package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astroveda/consult/internal/dtos"
	apperrors "github.com/astroveda/consult/internal/errors"
	"github.com/astroveda/consult/internal/httputil"
	"github.com/astroveda/consult/internal/middlewares"
)

// SessionAPI is the session service surface used by SessionHandler.
type SessionAPI interface {
	Start(ctx context.Context, userID int64, req dtos.StartSessionRequest) (*dtos.SessionResponse, error)
	Get(ctx context.Context, userID int64, rawID string) (*dtos.SessionResponse, error)
	ListActive(ctx context.Context, userID int64) ([]dtos.SessionResponse, error)
	End(ctx context.Context, userID int64, rawID string) (*dtos.SessionResponse, error)
}

type SessionHandler struct {
	sessions SessionAPI
}

func NewSessionHandler(sessions SessionAPI) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// StartSession handles POST /api/sessions/start
func (h *SessionHandler) StartSession(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		httputil.WriteError(c, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req dtos.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.WriteError(c, apperrors.New(apperrors.ErrCodeValidation, err.Error()))
		return
	}

	session, err := h.sessions.Start(c.Request.Context(), userID, req)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetSession handles GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		httputil.WriteError(c, apperrors.Unauthorized("Not authenticated"))
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListActiveSessions handles GET /api/sessions/active
func (h *SessionHandler) ListActiveSessions(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		httputil.WriteError(c, apperrors.Unauthorized("Not authenticated"))
		return
	}

	sessions, err := h.sessions.ListActive(c.Request.Context(), userID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// EndSession handles POST /api/sessions/:id/end
func (h *SessionHandler) EndSession(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		httputil.WriteError(c, apperrors.Unauthorized("Not authenticated"))
		return
	}

	session, err := h.sessions.End(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
