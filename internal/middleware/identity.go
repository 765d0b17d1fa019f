package middleware

import (
	"strings"

	"github.com/haierkeys/doc-link-service/pkg/app"
	"github.com/haierkeys/doc-link-service/pkg/code"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderSubjectID 上游身份层写入的调用方 ID
	HeaderSubjectID = "X-Subject-ID"
	// HeaderSubjectRole 上游身份层写入的调用方角色
	HeaderSubjectRole = "X-Subject-Role"
)

// IdentityConfig 身份中间件配置
type IdentityConfig struct {
	// DefaultRole 请求未携带角色时使用
	DefaultRole string
}

// IdentityWithConfig 读取上游身份层传入的调用方身份
// 本服务不做用户认证，缺少调用方 ID 的请求直接拒绝
func IdentityWithConfig(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := strings.TrimSpace(c.GetHeader(HeaderSubjectID))
		if subjectID == "" {
			app.NewResponse(c).ToResponse(code.ErrorInvalidIdentity)
			c.Abort()
			return
		}

		role := strings.TrimSpace(c.GetHeader(HeaderSubjectRole))
		if role == "" {
			role = cfg.DefaultRole
		}

		c.Set(app.ContextKeySubjectID, subjectID)
		c.Set(app.ContextKeyRole, role)
		c.Next()
	}
}
