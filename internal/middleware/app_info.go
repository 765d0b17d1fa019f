package middleware

import (
	"github.com/gin-gonic/gin"
)

// AppInfo 在响应头中返回服务名称与版本
func AppInfo(name, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("app_name", name)
		c.Set("app_version", version)
		c.Header("X-App-Version", version)

		c.Next()
	}
}
