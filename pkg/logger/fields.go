package logger

// 统一的日志字段命名常量
// 用于确保整个项目中日志字段命名的一致性，便于日志查询和分析
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldSubject 请求主体 ID 字段
	FieldSubject = "subjectId"

	// FieldRole 访问角色字段
	FieldRole = "role"

	// FieldPath 文档路径字段
	FieldPath = "documentPath"

	// FieldConversation 会话 ID 字段
	FieldConversation = "conversationId"

	// FieldKind 错误类型字段
	FieldKind = "kind"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldError 错误信息字段
	FieldError = "error"
)
