package routers

import (
	"time"

	"github.com/haierkeys/doc-link-service/internal/app"
	"github.com/haierkeys/doc-link-service/internal/middleware"
	"github.com/haierkeys/doc-link-service/internal/routers/api_router"
	"github.com/haierkeys/doc-link-service/pkg/limiter"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// IssueRoute 签发接口路径，按配置限流
const IssueRoute = "/api/documents/link"

// newMethodLimiter 按配置创建签发接口的令牌桶
func newMethodLimiter(cfg *app.AppConfig) limiter.Face {
	l := limiter.NewMethodLimiter()
	if rate := int64(cfg.Link.IssueRate); rate > 0 {
		l.AddBuckets(limiter.BucketRule{
			Key:          IssueRoute,
			FillInterval: time.Second,
			Capacity:     rate,
			Quantum:      rate,
		})
	}
	return l
}

// NewRouter 创建对外 API 路由
// uni 为 nil 时校验错误不翻译
func NewRouter(appContainer *app.App, uni *ut.UniversalTranslator) *gin.Engine {

	// 获取配置
	cfg := appContainer.Config()
	lg := appContainer.Logger()

	r := gin.New()
	r.Use(middleware.TraceWithConfig(middleware.TraceConfig{Enabled: cfg.Tracer.Enabled, Header: cfg.Tracer.Header})) // Trace ID 中间件
	r.Use(middleware.AppInfo(app.Name, appContainer.Version().Version))
	r.Use(middleware.LangWithTranslator(uni))
	r.Use(middleware.AccessLogWithLogger(lg))
	r.Use(middleware.RecoveryWithLogger(lg))

	api := r.Group("/api")
	{
		api.Use(middleware.ContextTimeout(cfg.GetContextTimeout()))
		api.Use(middleware.RateLimiter(newMethodLimiter(cfg)))

		healthHandler := api_router.NewHealthHandler(appContainer)
		versionHandler := api_router.NewVersionHandler(appContainer)

		// 无需身份的接口
		api.GET("/health", healthHandler.Check)
		api.GET("/version", versionHandler.ServerVersion)

		// 创建 Handlers（注入 App Container）
		linkHandler := api_router.NewDocumentLinkHandler(appContainer)
		conversationHandler := api_router.NewConversationHandler(appContainer)

		auth := api.Group("", middleware.IdentityWithConfig(middleware.IdentityConfig{DefaultRole: cfg.Link.DefaultRole}))

		auth.POST("/documents/link", linkHandler.Issue)
		auth.POST("/documents/link/refresh", linkHandler.RefreshLink)
		auth.POST("/documents/link/inspect", linkHandler.Inspect)
		auth.POST("/documents/links/refresh", linkHandler.RefreshMany)

		auth.POST("/conversations/refresh", conversationHandler.Refresh)
		auth.GET("/conversations", conversationHandler.List)
		auth.GET("/conversations/:id", conversationHandler.Get)
		auth.PUT("/conversations/:id", conversationHandler.Save)
		auth.POST("/conversations/:id/refresh", conversationHandler.RefreshStored)
	}

	r.NoRoute(middleware.NoFound())

	return r
}
