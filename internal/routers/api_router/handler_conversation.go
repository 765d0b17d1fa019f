package api_router

import (
	"context"

	"github.com/haierkeys/doc-link-service/internal/app"
	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/internal/dto"
	pkgapp "github.com/haierkeys/doc-link-service/pkg/app"
	"github.com/haierkeys/doc-link-service/pkg/code"
	apperrors "github.com/haierkeys/doc-link-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConversationHandler 会话 API 路由处理器
// 会话级刷新在 Worker Pool 中执行，限制同时进行的签发批次
type ConversationHandler struct {
	*Handler
}

// NewConversationHandler 创建 ConversationHandler 实例
func NewConversationHandler(a *app.App) *ConversationHandler {
	return &ConversationHandler{
		Handler: NewHandler(a),
	}
}

// Refresh 刷新请求体中会话的全部链接
// @Summary 刷新会话链接
// @Description 刷新会话中所有消息携带的文档链接，返回新的会话副本与统计
// @Tags 会话
// @Param X-Subject-ID header string true "调用方 ID"
// @Accept json
// @Produce json
// @Param params body dto.ConversationRefreshRequest true "会话"
// @Success 200 {object} pkgapp.Res{data=domain.ConversationRefresh} "成功"
// @Router /api/conversations/refresh [post]
func (h *ConversationHandler) Refresh(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.ConversationRefreshRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("ConversationHandler.Refresh.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	subjectID, role := pkgapp.GetSubject(c)
	ctx := c.Request.Context()

	var result domain.ConversationRefresh
	err := h.App.SubmitTask(ctx, func(ctx context.Context) error {
		result = h.App.DocumentLinkService.RefreshConversation(ctx, params.Conversation, subjectID, role)
		return nil
	})
	if err != nil {
		h.logError(ctx, "ConversationHandler.Refresh", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponse(code.SuccessConversationRefreshed.WithData(result))
}

// Get 获取会话
// @Summary 获取会话
// @Tags 会话
// @Param X-Subject-ID header string true "调用方 ID"
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} pkgapp.Res{data=domain.Conversation} "成功"
// @Router /api/conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	subjectID, _ := pkgapp.GetSubject(c)
	ctx := c.Request.Context()

	conversation, err := h.App.ConversationService.Get(ctx, c.Param("id"), subjectID)
	if err != nil {
		h.logError(ctx, "ConversationHandler.Get", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponse(code.Success.WithData(conversation))
}

// Save 保存会话
// @Summary 保存会话
// @Description 创建或覆盖调用方的会话，会话归属始终为调用方
// @Tags 会话
// @Param X-Subject-ID header string true "调用方 ID"
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param params body dto.ConversationSaveRequest true "会话内容"
// @Success 200 {object} pkgapp.Res{data=domain.Conversation} "成功"
// @Router /api/conversations/{id} [put]
func (h *ConversationHandler) Save(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.ConversationSaveRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("ConversationHandler.Save.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	subjectID, _ := pkgapp.GetSubject(c)
	ctx := c.Request.Context()

	saved, err := h.App.ConversationService.Save(ctx, &domain.Conversation{
		ID:        c.Param("id"),
		SubjectID: subjectID,
		Title:     params.Title,
		Messages:  params.Messages,
	})
	if err != nil {
		h.logError(ctx, "ConversationHandler.Save", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponse(code.SuccessConversationSaved.WithData(saved))
}

// List 列出调用方的会话
// @Summary 会话列表
// @Tags 会话
// @Param X-Subject-ID header string true "调用方 ID"
// @Produce json
// @Param params query dto.ConversationListRequest true "查询参数"
// @Success 200 {object} pkgapp.Res{data=pkgapp.ListRes{list=[]domain.Conversation}} "成功"
// @Router /api/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.ConversationListRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("ConversationHandler.List.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	subjectID, _ := pkgapp.GetSubject(c)
	ctx := c.Request.Context()

	list, err := h.App.ConversationService.List(ctx, subjectID, params.Limit)
	if err != nil {
		h.logError(ctx, "ConversationHandler.List", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponseList(code.Success, list, len(list))
}

// RefreshStored 刷新已保存会话的链接
// @Summary 刷新已保存会话
// @Description 加载会话并刷新全部链接，有链接变化时写回存储；同一会话的并发刷新会被合并
// @Tags 会话
// @Param X-Subject-ID header string true "调用方 ID"
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} pkgapp.Res{data=domain.ConversationRefresh} "成功"
// @Router /api/conversations/{id}/refresh [post]
func (h *ConversationHandler) RefreshStored(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	subjectID, role := pkgapp.GetSubject(c)
	ctx := c.Request.Context()
	id := c.Param("id")

	var result *domain.ConversationRefresh
	err := h.App.SubmitTask(ctx, func(ctx context.Context) error {
		var err error
		result, err = h.App.ConversationService.RefreshStored(ctx, id, subjectID, role)
		return err
	})
	if err != nil {
		h.logError(ctx, "ConversationHandler.RefreshStored", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponse(code.SuccessConversationRefreshed.WithData(result))
}
