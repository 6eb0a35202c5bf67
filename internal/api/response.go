package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/logger"
)

// Response is the envelope every JSON endpoint returns.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{Success: false, Error: err, Code: code}
}

// respondError maps err onto a status and error code. Internal errors are
// logged and never echoed to the client; the client gets the request id to
// quote instead.
func (s *Server) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		ctx := c.Request.Context()
		logger.WithContext(ctx, s.log).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = "internal error"
		if id := logger.RequestID(ctx); id != "" {
			msg += " (request " + id + ")"
		}
	}
	c.JSON(status, NewErrorResponse(msg, apperr.Code(err)))
}
