package api

import (
	"errors"
	"net/http"

	"ImageInsightServer/analysis"
	"ImageInsightServer/auth"
	"ImageInsightServer/detection"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps domain errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var validation *auth.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, detection.ErrInvalidImage):
		return http.StatusBadRequest, "invalid image"
	case errors.Is(err, analysis.ErrCaptioner):
		return http.StatusBadGateway, "caption service unavailable"
	}
	return http.StatusInternalServerError, "internal server error"
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		s.log.Debug("request rejected",
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}
