// Package service implements the business logic layer
// Package service 实现业务逻辑层
package service

// ServiceConfig service layer configuration
// ServiceConfig 服务层配置
type ServiceConfig struct {
	Link LinkServiceConfig // Link related config // 链接相关配置
}

// LinkServiceConfig document link service configuration
// LinkServiceConfig 文档链接服务配置
type LinkServiceConfig struct {
	RefreshWindow      string // Refresh links expiring within this window (e.g., 5m, 0 for strict expiry) // 在此窗口内即将过期的链接也会刷新（支持格式：5m、0 表示仅刷新已过期链接）
	RefreshConcurrency int    // Per-call signing concurrency // 单次刷新的签名并发数
}
