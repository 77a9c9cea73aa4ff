package httputil

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/astroveda/consult/internal/dtos"
	apperrors "github.com/astroveda/consult/internal/errors"
)

// WriteError writes err as a {"detail","code"} body. Errors that are not
// AppErrors are logged and reported as internal errors.
func WriteError(c *gin.Context, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled error")
		appErr = apperrors.Internal("An unexpected error occurred")
	} else if appErr.Status() >= 500 {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	c.JSON(appErr.Status(), dtos.ErrorResponse{
		Detail: appErr.Message,
		Code:   string(appErr.Code),
	})
}

// AbortWithError writes the error and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	WriteError(c, err)
	c.Abort()
}
