package middlewares

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/astroveda/consult/internal/errors"
	"github.com/astroveda/consult/internal/httputil"
	"github.com/astroveda/consult/internal/models"
	"github.com/astroveda/consult/internal/utils"
)

type wsAuthKey struct{}

// WebSocketAuthContext holds authenticated signaling connection data
type WebSocketAuthContext struct {
	UserID    int64
	SessionID string
	Role      string
}

// ParticipantChecker reports whether a user belongs to a session.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID int64, sessionID string) (bool, error)
}

// WebSocketAuthMiddleware authenticates signaling connections before the
// upgrade. Browsers cannot set headers on a WebSocket handshake, so the token
// travels in the query string. The path participant must be the token's user
// and a participant of the session.
func WebSocketAuthMiddleware(jwtSecret string, sessions ParticipantChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")
		pathUserID := models.ID(c.Param("user_id"))

		token := c.Query("token")
		if token == "" {
			token = bearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			log.Warn().Str("sessionId", sessionID).Msg("websocket auth: token missing")
			httputil.AbortWithError(c, apperrors.Unauthorized("authentication required"))
			return
		}

		claims, err := utils.ParseAccessToken(token, jwtSecret)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("websocket auth: invalid token")
			httputil.AbortWithError(c, apperrors.InvalidToken("invalid or expired token"))
			return
		}

		if !pathUserID.Equal(models.NewID(claims.UserID)) {
			log.Warn().
				Int64("userId", claims.UserID).
				Str("pathUserId", pathUserID.String()).
				Msg("websocket auth: participant mismatch")
			httputil.AbortWithError(c, apperrors.Forbidden("token does not match participant"))
			return
		}

		ok, err := sessions.IsParticipant(c.Request.Context(), claims.UserID, sessionID)
		if err != nil {
			httputil.AbortWithError(c, err)
			return
		}
		if !ok {
			log.Warn().
				Int64("userId", claims.UserID).
				Str("sessionId", sessionID).
				Msg("websocket auth: not a participant")
			httputil.AbortWithError(c, apperrors.Forbidden("not authorized for this session"))
			return
		}

		auth := &WebSocketAuthContext{
			UserID:    claims.UserID,
			SessionID: sessionID,
			Role:      claims.Role,
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), wsAuthKey{}, auth))

		log.Debug().
			Int64("userId", auth.UserID).
			Str("sessionId", sessionID).
			Msg("websocket auth: authenticated")

		c.Next()
	}
}

// GetWebSocketAuth retrieves authentication context from request
func GetWebSocketAuth(c *gin.Context) (*WebSocketAuthContext, error) {
	auth, ok := c.Request.Context().Value(wsAuthKey{}).(*WebSocketAuthContext)
	if !ok || auth == nil {
		return nil, errors.New("websocket authentication context not found")
	}
	return auth, nil
}
