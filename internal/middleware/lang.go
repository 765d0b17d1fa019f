package middleware

import (
	"strings"

	"github.com/haierkeys/doc-link-service/pkg/app"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// LangWithTranslator 创建语言中间件
// 语言取自 lang 查询参数或 lang 请求头，只作用于当前请求
func LangWithTranslator(uni *ut.UniversalTranslator) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := c.Query("lang")
		if lang == "" {
			lang = c.GetHeader("lang")
		}
		lang = strings.ToLower(strings.ReplaceAll(lang, "-", "_"))

		if strings.HasPrefix(lang, "zh") {
			c.Set(app.ContextKeyLang, "zh_cn")
		} else if lang != "" {
			c.Set(app.ContextKeyLang, "en")
		}

		if uni != nil {
			trans, found := uni.GetTranslator(strings.SplitN(lang, "_", 2)[0])
			if !found {
				trans, _ = uni.GetTranslator("en")
			}
			c.Set(app.ContextKeyTrans, trans)
		}

		c.Next()
	}
}
