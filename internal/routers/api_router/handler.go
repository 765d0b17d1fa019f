// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"context"

	"github.com/haierkeys/doc-link-service/internal/app"
	"github.com/haierkeys/doc-link-service/internal/middleware"
	apperrors "github.com/haierkeys/doc-link-service/pkg/errors"
	"github.com/haierkeys/doc-link-service/pkg/logger"

	"go.uber.org/zap"
)

// Handler 基础 Handler 结构体，封装 App Container
// 所有 API Handler 都应该嵌入此结构体以获得依赖注入能力
type Handler struct {
	App *app.App
}

// NewHandler 创建基础 Handler 实例
func NewHandler(a *app.App) *Handler {
	return &Handler{App: a}
}

// logError 记录带 Trace ID 的错误日志
// 调用方输入导致的错误降级为 Warn
func (h *Handler) logError(ctx context.Context, method string, err error) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
	}
	if apperrors.IsInternal(err) {
		h.App.Logger().Error(method, fields...)
		return
	}
	h.App.Logger().Warn(method, fields...)
}
