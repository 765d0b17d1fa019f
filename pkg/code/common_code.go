package code

import "net/http"

var (
	Failed  = NewError(0, lang{en: "Failed", zh_cn: "失败"})
	Success = NewSuss(1, lang{en: "Success", zh_cn: "成功"})

	SuccessLinkIssued            = NewSuss(101, lang{en: "Document link issued", zh_cn: "文档链接已签发"})
	SuccessLinkRefreshed         = NewSuss(102, lang{en: "Document link refreshed", zh_cn: "文档链接已刷新"})
	SuccessLinkUnchanged         = NewSuss(103, lang{en: "Document link still valid", zh_cn: "文档链接仍然有效"})
	SuccessConversationSaved     = NewSuss(104, lang{en: "Conversation saved", zh_cn: "会话已保存"})
	SuccessConversationRefreshed = NewSuss(105, lang{en: "Conversation links refreshed", zh_cn: "会话链接已刷新"})

	ErrorServerInternal  = NewError(500, lang{en: "Internal server error", zh_cn: "服务器内部错误"}).WithHTTPStatus(http.StatusInternalServerError)
	ErrorInvalidParams   = NewError(501, lang{en: "Invalid parameters", zh_cn: "参数错误"})
	ErrorNotFoundAPI     = NewError(502, lang{en: "API not found", zh_cn: "接口不存在"}).WithHTTPStatus(http.StatusNotFound)
	ErrorTooManyRequests = NewError(503, lang{en: "Too many requests", zh_cn: "请求过多"}).WithHTTPStatus(http.StatusTooManyRequests)
	ErrorRequestTimeout  = NewError(504, lang{en: "Request timed out", zh_cn: "请求超时"})
	ErrorDBQuery         = NewError(505, lang{en: "Database query failed", zh_cn: "数据库查询失败"})
	ErrorInvalidIdentity = NewError(506, lang{en: "Missing subject identity", zh_cn: "缺少调用方身份"}).WithHTTPStatus(http.StatusUnauthorized)
	ErrorTaskQueueFull   = NewError(507, lang{en: "Refresh queue is busy, retry later", zh_cn: "刷新队列繁忙，请稍后重试"})

	ErrorLinkInvalidInput      = NewError(601, lang{en: "Document path and subject are required", zh_cn: "文档路径与调用方不能为空"})
	ErrorLinkSigner            = NewError(602, lang{en: "Document link signer unavailable", zh_cn: "文档链接签名不可用"})
	ErrorLinkUnparsable        = NewError(603, lang{en: "Not a recognised document link", zh_cn: "无法识别的文档链接"})
	ErrorLinkInvalidSignature  = NewError(604, lang{en: "Document link signature or expiry invalid", zh_cn: "文档链接签名或有效期无效"})
	ErrorConversationNotFound  = NewError(611, lang{en: "Conversation not found", zh_cn: "会话不存在"})
	ErrorConversationForbidden = NewError(612, lang{en: "Conversation belongs to another subject", zh_cn: "会话属于其他用户"}).WithHTTPStatus(http.StatusForbidden)
)
