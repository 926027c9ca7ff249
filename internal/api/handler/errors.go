package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/gin-gonic/gin"
)

var statusByKind = map[domain.Kind]int{
	domain.KindInvalid:            http.StatusBadRequest,
	domain.KindUnauthenticated:    http.StatusUnauthorized,
	domain.KindForbidden:          http.StatusForbidden,
	domain.KindNotEligible:        http.StatusForbidden,
	domain.KindCapacityExceeded:   http.StatusForbidden,
	domain.KindNotAvailable:       http.StatusForbidden,
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindPreconditionFailed: http.StatusConflict,
	domain.KindConflict:           http.StatusConflict,
	domain.KindUnavailable:        http.StatusServiceUnavailable,
}

var defaultMessages = map[domain.Kind]string{
	domain.KindInvalid:         "Invalid request",
	domain.KindUnauthenticated: "Unauthorized",
	domain.KindForbidden:       "Forbidden",
	domain.KindNotFound:        "Not found",
	domain.KindConflict:        "Conflict",
	domain.KindUnavailable:     "Service temporarily unavailable, retry later",
}

// HTTPStatus maps an error kind to the response status code
func HTTPStatus(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Internal errors are logged and
// replaced with fallback so storage details never reach the caller.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	kind := domain.KindOf(err)
	status := HTTPStatus(err)

	if status >= http.StatusInternalServerError {
		logger.Error(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
	}

	body := gin.H{
		"error": errorMessage(err, kind, fallback),
		"code":  kind.String(),
	}
	if current := domain.StatusOf(err); current != "" {
		body["status"] = current
	}
	c.AbortWithStatusJSON(status, body)
}

func errorMessage(err error, kind domain.Kind, fallback string) string {
	if kind == domain.KindInternal {
		return fallback
	}
	var tagged *domain.Error
	if errors.As(err, &tagged) && tagged.Msg != "" {
		return tagged.Msg
	}
	if msg, ok := defaultMessages[kind]; ok {
		return msg
	}
	return fallback
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": msg,
		"code":  domain.KindInvalid.String(),
	})
}
