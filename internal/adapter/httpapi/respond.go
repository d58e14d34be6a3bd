package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ifiokjr/verily/internal/platform/logger"
	"github.com/ifiokjr/verily/internal/shared"
)

// fail classifies err, logs it in full and aborts the request with the
// client-safe wire form.
func (s *server) fail(c *gin.Context, err error) {
	full := shared.Policy{Trusted: true}.Classify(err)
	out := full.Redact(s.policy)
	status := out.HTTPStatus()

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.LogAttrs(c.Request.Context(), level, "request failed",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		logger.ErrorAttr(err),
	)
	s.metrics.RecordError(full.Kind.String(), "http")

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, out)
}

// bind decodes and validates the JSON body into dst.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewMessage(shared.KindJSON, "request body is empty")
		}
		return err
	}
	return nil
}
