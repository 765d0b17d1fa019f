package app

import (
	"strings"

	"github.com/haierkeys/doc-link-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// Context keys shared with the middleware chain
// 中间件与处理器共享的上下文键
const (
	ContextKeyLang      = "lang"
	ContextKeyTrans     = "trans"
	ContextKeySubjectID = "subject_id"
	ContextKeyRole      = "subject_role"
	ContextKeyTraceID   = "trace_id"
)

// VersionInfo version information // 版本信息
type VersionInfo struct {
	Version   string `json:"version"`
	GitTag    string `json:"gitTag"`
	BuildTime string `json:"buildTime"`
}

type Response struct {
	Ctx *gin.Context
}

// ListRes 列表响应
type ListRes struct {
	List  interface{} `json:"list"`  // Data list // 数据清单
	Total int         `json:"total"` // Item count // 数量
}

// Res is the unified response structure: Code/Status/Msg/Data
// Res 是统一的响应结构：Code/Status/Msg/Data
type Res struct {
	Code    int         `json:"code"`
	Status  bool        `json:"status"`
	Message interface{} `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"traceId,omitempty"`
}

func NewResponse(ctx *gin.Context) *Response {
	return &Response{
		Ctx: ctx,
	}
}

// GetRequestIP 获取ip
func GetRequestIP(c *gin.Context) string {
	reqIP := c.ClientIP()
	if reqIP == "::1" {
		reqIP = "127.0.0.1"
	}
	return reqIP
}

// GetSubject 获取身份中间件写入的调用方身份
func GetSubject(c *gin.Context) (subjectID, role string) {
	return c.GetString(ContextKeySubjectID), c.GetString(ContextKeyRole)
}

// GetLang 获取本次请求的语言
func GetLang(c *gin.Context) string {
	if l := c.GetString(ContextKeyLang); l != "" {
		return l
	}
	return code.GetGlobalDefaultLang()
}

// ToResponse 输出到浏览器：统一使用 Res，根据情况设置 Details
func (r *Response) ToResponse(codeObj *code.Code) {
	content := r.build(codeObj)
	content.Data = codeObj.Data()
	r.send(codeObj.StatusCode(), content)
}

// ToResponseList 输出列表响应，使用 ListRes 作为 Data
func (r *Response) ToResponseList(codeObj *code.Code, list interface{}, total int) {
	content := r.build(codeObj)
	content.Data = ListRes{List: list, Total: total}
	r.send(codeObj.StatusCode(), content)
}

func (r *Response) build(codeObj *code.Code) Res {
	r.Ctx.Set("status_code", codeObj.StatusCode())

	content := Res{
		Code:    codeObj.Code(),
		Status:  codeObj.Status(),
		Message: codeObj.Lang.Message(GetLang(r.Ctx)),
		TraceID: r.Ctx.GetString(ContextKeyTraceID),
	}
	if codeObj.HaveDetails() {
		content.Details = strings.Join(codeObj.Details(), ",")
	}
	return content
}

func (r *Response) send(statusCode int, content interface{}) {
	r.Ctx.JSON(statusCode, content)
}
