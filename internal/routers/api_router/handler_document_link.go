package api_router

import (
	"strings"

	"github.com/haierkeys/doc-link-service/internal/app"
	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/internal/dto"
	pkgapp "github.com/haierkeys/doc-link-service/pkg/app"
	"github.com/haierkeys/doc-link-service/pkg/code"
	"github.com/haierkeys/doc-link-service/pkg/doclink"
	apperrors "github.com/haierkeys/doc-link-service/pkg/errors"
	"github.com/haierkeys/doc-link-service/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DocumentLinkHandler 文档链接 API 路由处理器
// 使用 App Container 注入依赖
type DocumentLinkHandler struct {
	*Handler
}

// NewDocumentLinkHandler 创建 DocumentLinkHandler 实例
func NewDocumentLinkHandler(a *app.App) *DocumentLinkHandler {
	return &DocumentLinkHandler{
		Handler: NewHandler(a),
	}
}

// Issue 签发文档链接
// @Summary 签发文档链接
// @Description 为调用方签发一个短期有效的文档下载链接，可附带页码锚点
// @Tags 文档链接
// @Param X-Subject-ID header string true "调用方 ID"
// @Accept json
// @Produce json
// @Param params body dto.LinkIssueRequest true "签发参数"
// @Success 200 {object} pkgapp.Res{data=dto.LinkIssueResponse} "成功"
// @Router /api/documents/link [post]
func (h *DocumentLinkHandler) Issue(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.LinkIssueRequest{}

	// 参数绑定和验证
	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("DocumentLinkHandler.Issue.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	var ttl = h.App.Signer.DefaultTTL()
	if params.TTL != "" {
		d, err := util.ParseDuration(params.TTL)
		if err != nil || d <= 0 {
			response.ToResponse(code.ErrorInvalidParams.WithDetails("ttl must be a positive duration such as 30m, 1h or 1d"))
			return
		}
		ttl = d
	}

	subjectID, role := pkgapp.GetSubject(c)
	ctx := c.Request.Context()

	link, err := h.App.DocumentLinkService.Issue(ctx, params.DocumentPath, subjectID, role, ttl)
	if err != nil {
		h.logError(ctx, "DocumentLinkHandler.Issue", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	if params.Page != nil {
		link = doclink.WithPage(link, *params.Page)
	}

	expiresAt, _ := doclink.ExpiresAt(link)
	response.ToResponse(code.SuccessLinkIssued.WithData(dto.LinkIssueResponse{
		URL:       link,
		ExpiresAt: expiresAt,
	}))
}

// RefreshLink 刷新单个链接
// @Summary 刷新单个文档链接
// @Description 链接已过期或即将过期时重新签发，保留页码锚点；未过期的链接原样返回
// @Tags 文档链接
// @Param X-Subject-ID header string true "调用方 ID"
// @Accept json
// @Produce json
// @Param params body dto.LinkRefreshRequest true "待刷新链接"
// @Success 200 {object} pkgapp.Res{data=domain.RefreshResult} "成功"
// @Router /api/documents/link/refresh [post]
func (h *DocumentLinkHandler) RefreshLink(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.LinkRefreshRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("DocumentLinkHandler.RefreshLink.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}
	if strings.TrimSpace(params.Link.URL) == "" {
		response.ToResponse(code.ErrorInvalidParams.WithDetails("link.url is required"))
		return
	}

	subjectID, role := pkgapp.GetSubject(c)
	res := h.App.DocumentLinkService.RefreshLink(c.Request.Context(), params.Link, subjectID, role)

	response.ToResponse(refreshCode(res).WithData(res))
}

// RefreshMany 批量刷新链接
// @Summary 批量刷新文档链接
// @Description 逐个独立刷新链接，结果顺序与输入一致，单个失败不影响其他链接
// @Tags 文档链接
// @Param X-Subject-ID header string true "调用方 ID"
// @Accept json
// @Produce json
// @Param params body dto.LinksRefreshRequest true "待刷新链接列表"
// @Success 200 {object} pkgapp.Res{data=dto.LinksRefreshResponse} "成功"
// @Router /api/documents/links/refresh [post]
func (h *DocumentLinkHandler) RefreshMany(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.LinksRefreshRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("DocumentLinkHandler.RefreshMany.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	subjectID, role := pkgapp.GetSubject(c)
	results := h.App.DocumentLinkService.RefreshMany(c.Request.Context(), params.Links, subjectID, role)

	refreshed := 0
	for _, r := range results {
		if r.Refreshed {
			refreshed++
		}
	}

	response.ToResponse(code.Success.WithData(dto.LinksRefreshResponse{
		Results:   results,
		Refreshed: refreshed,
	}))
}

// Inspect 查看链接声明
// @Summary 查看文档链接
// @Description 不校验签名地解析链接声明与过期状态，verify 为 true 时额外校验签名
// @Tags 文档链接
// @Param X-Subject-ID header string true "调用方 ID"
// @Accept json
// @Produce json
// @Param params body dto.LinkInspectRequest true "链接"
// @Success 200 {object} pkgapp.Res{data=dto.LinkInspectResponse} "成功"
// @Router /api/documents/link/inspect [post]
func (h *DocumentLinkHandler) Inspect(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.LinkInspectRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("DocumentLinkHandler.Inspect.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	svc := h.App.DocumentLinkService
	claims, ok := svc.ExtractClaims(params.URL)
	if !ok {
		response.ToResponse(code.ErrorLinkUnparsable.WithData(dto.LinkInspectResponse{Expired: true}))
		return
	}

	out := dto.LinkInspectResponse{
		Expired: svc.IsExpired(params.URL),
		Claims:  claims,
	}
	if page, ok := doclink.PageFromURL(params.URL); ok {
		out.Page = &page
	}

	if params.Verify {
		_, err := h.App.Signer.Verify(params.URL)
		verified := err == nil
		out.Verified = &verified
		if !verified {
			response.ToResponse(code.ErrorLinkInvalidSignature.WithDetails(err.Error()).WithData(out))
			return
		}
	}

	response.ToResponse(code.Success.WithData(out))
}

// refreshCode 将单个链接的刷新结果映射为响应码
func refreshCode(res domain.RefreshResult) *code.Code {
	switch {
	case res.Success && res.Refreshed:
		return code.SuccessLinkRefreshed
	case res.Success:
		return code.SuccessLinkUnchanged
	}

	switch res.ErrorKind {
	case doclink.KindUnparsableCredential:
		return code.ErrorLinkUnparsable
	case doclink.KindSignerFailure:
		return code.ErrorLinkSigner
	case doclink.KindCancelled:
		return code.ErrorRequestTimeout
	}
	return code.Failed
}
