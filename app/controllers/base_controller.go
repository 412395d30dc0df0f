package controllers

import (
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/logger"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message and kind.
func (c *BaseController) JSONError(status int, kind apperrors.Kind, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
		"kind":    kind,
	})
}

// JSONAppError maps an error to its status code and writes the error envelope.
func (c *BaseController) JSONAppError(err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Ctx.Request.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	} else {
		logger.Warn("request rejected",
			zap.String("path", c.Ctx.Request.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	c.JSONError(status, kind, err.Error())
}

// credential 读取调用方凭证：优先 Authorization: Bearer，其次 X-OpenAI-Key
func (c *BaseController) credential() string {
	authHeader := strings.TrimSpace(c.Ctx.Input.Header("Authorization"))
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if key := strings.TrimSpace(parts[1]); key != "" {
				return key
			}
		}
	}
	return strings.TrimSpace(c.Ctx.Input.Header("X-OpenAI-Key"))
}
