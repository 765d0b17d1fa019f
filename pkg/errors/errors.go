// Package errors 将服务内部错误映射为统一的响应码
package errors

import (
	"context"
	"errors"

	"github.com/haierkeys/doc-link-service/internal/domain"
	pkgapp "github.com/haierkeys/doc-link-service/pkg/app"
	"github.com/haierkeys/doc-link-service/pkg/code"
	"github.com/haierkeys/doc-link-service/pkg/doclink"
	"github.com/haierkeys/doc-link-service/pkg/workerpool"

	"github.com/gin-gonic/gin"
)

// ToCode 把错误转换为响应码
// 已经是 *code.Code 的错误原样返回，未知错误归为 Failed 并附带错误信息
func ToCode(err error) *code.Code {
	if err == nil {
		return code.Success
	}

	var c *code.Code
	if errors.As(err, &c) {
		return c
	}

	switch {
	case errors.Is(err, doclink.ErrInvalidInput):
		return code.ErrorLinkInvalidInput.WithDetails(err.Error())
	case errors.Is(err, doclink.ErrUnparsableCredential):
		return code.ErrorLinkUnparsable.WithDetails(err.Error())
	case errors.Is(err, doclink.ErrSignerFailure):
		return code.ErrorLinkSigner
	case errors.Is(err, domain.ErrConversationNotFound):
		return code.ErrorConversationNotFound
	case errors.Is(err, workerpool.ErrWorkerPoolFull), errors.Is(err, workerpool.ErrWorkerPoolClosed):
		return code.ErrorTaskQueueFull
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, workerpool.ErrTaskCancelled):
		return code.ErrorRequestTimeout
	}
	return code.Failed.WithDetails(err.Error())
}

// IsInternal 判断错误是否应按服务端错误记录日志
func IsInternal(err error) bool {
	if err == nil {
		return false
	}
	var c *code.Code
	if errors.As(err, &c) {
		return c.Code() == code.ErrorDBQuery.Code() || c.Code() == code.ErrorServerInternal.Code()
	}
	return !errors.Is(err, doclink.ErrInvalidInput) && !errors.Is(err, doclink.ErrUnparsableCredential)
}

// ErrorResponse 将错误写为统一响应，trace id 由响应结构从上下文中带出
func ErrorResponse(c *gin.Context, err error) {
	pkgapp.NewResponse(c).ToResponse(ToCode(err))
}
