// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/haierkeys/doc-link-service/internal/dao"
	"github.com/haierkeys/doc-link-service/internal/service"
	"github.com/haierkeys/doc-link-service/pkg/doclink"
	"github.com/haierkeys/doc-link-service/pkg/util"
	"github.com/haierkeys/doc-link-service/pkg/workerpool"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultLinkTokenKey 内置的签名密钥占位值，首次生成配置时会被替换为随机值
const DefaultLinkTokenKey = "doc-link-service-Link-Token"

// AppConfig 应用配置
type AppConfig struct {
	File     string         `yaml:"-"` // 配置文件路径，不序列化
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database dao.Config     `yaml:"database"`
	App      AppSettings    `yaml:"app"`
	Security SecurityConfig `yaml:"security"`
	Link     LinkConfig     `yaml:"link"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string `yaml:"level" default:"info"`
	// File 日志文件路径
	File string `yaml:"file" default:"storage/logs/log.log"`
	// Production 是否启用 JSON 输出
	Production bool `yaml:"production" default:"true"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// RunMode 运行模式
	RunMode string `yaml:"run-mode" default:"release"`
	// HttpPort HTTP 端口
	HttpPort string `yaml:"http-port" default:":9100"`
	// ReadTimeout 读取超时（秒）
	ReadTimeout int `yaml:"read-timeout" default:"60"`
	// WriteTimeout 写入超时（秒）
	WriteTimeout int `yaml:"write-timeout" default:"60"`
	// PrivateHttpListen 私有 HTTP 监听地址，提供 metrics 与 pprof
	PrivateHttpListen string `yaml:"private-http-listen" default:":9101"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// LinkTokenKey 文档链接签名密钥，需与文档流式下载端一致
	LinkTokenKey string `yaml:"link-token-key" default:"doc-link-service-Link-Token"`
}

// LinkConfig 文档链接配置
type LinkConfig struct {
	// BaseURL 链接前缀，为空时签发相对链接
	BaseURL string `yaml:"base-url"`
	// TTL 链接有效期，支持格式：30m、1h、1d
	TTL string `yaml:"ttl" default:"30m"`
	// RefreshWindow 在此窗口内即将过期的链接也会刷新，0 表示仅刷新已过期链接
	RefreshWindow string `yaml:"refresh-window" default:"5m"`
	// DefaultRole 请求未携带角色时使用的角色
	DefaultRole string `yaml:"default-role" default:"viewer"`
	// RefreshConcurrency 单次刷新的签名并发数
	RefreshConcurrency int `yaml:"refresh-concurrency" default:"8"`
	// IssueRate 签发接口每秒允许的请求数，0 表示不限流
	IssueRate int `yaml:"issue-rate" default:"100"`
}

// AppSettings 应用设置
type AppSettings struct {
	// DefaultContextTimeout 默认上下文超时时间（秒）
	DefaultContextTimeout int `yaml:"default-context-timeout" default:"60"`
	// Lang 默认响应语言：en、zh_cn
	Lang string `yaml:"lang" default:"en"`
	// ConversationRetention 会话保留时长，超过后由清理任务删除，0 表示永久保留
	ConversationRetention string `yaml:"conversation-retention" default:"0"`

	// Worker Pool 配置
	WorkerPoolMaxWorkers int `yaml:"worker-pool-max-workers" default:"16"`
	WorkerPoolQueueSize  int `yaml:"worker-pool-queue-size" default:"256"`
}

// TracerConfig 请求追踪配置
type TracerConfig struct {
	// Enabled 是否启用追踪
	Enabled bool `yaml:"enabled" default:"true"`
	// Header 追踪 ID 请求头名称，默认 X-Trace-ID
	Header string `yaml:"header" default:"X-Trace-ID"`
}

// LoadConfig 从文件加载配置
// 返回配置实例和配置文件的绝对路径
func LoadConfig(f string) (*AppConfig, string, error) {
	realpath, err := filepath.Abs(f)
	if err != nil {
		return nil, "", err
	}
	realpath = filepath.Clean(realpath)

	c := new(AppConfig)
	c.File = realpath

	// 设置默认值
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "set default config failed")
	}

	file, err := os.ReadFile(realpath)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "read config file failed")
	}

	if err := yaml.Unmarshal(file, c); err != nil {
		return nil, realpath, errors.Wrap(err, "parse config file failed")
	}

	// 默认值只在解析前填充一次，配置中显式写入的 false 与 0 不会被覆盖
	if err := c.Validate(); err != nil {
		return nil, realpath, err
	}

	return c, realpath, nil
}

// Validate 校验配置中的时长字段
func (c *AppConfig) Validate() error {
	if _, err := util.ParseDuration(c.Link.TTL); err != nil {
		return errors.Wrapf(err, "invalid link.ttl %q", c.Link.TTL)
	}
	window, err := util.ParseDuration(c.Link.RefreshWindow)
	if err != nil || window < 0 {
		return errors.Errorf("invalid link.refresh-window %q", c.Link.RefreshWindow)
	}
	if ttl := c.GetLinkTTL(); window > 0 && window >= ttl {
		return errors.Errorf("link.refresh-window %q must be shorter than link.ttl %s", c.Link.RefreshWindow, ttl)
	}
	if c.App.ConversationRetention != "" {
		if d, err := util.ParseDuration(c.App.ConversationRetention); err != nil || d < 0 {
			return errors.Errorf("invalid app.conversation-retention %q", c.App.ConversationRetention)
		}
	}
	return nil
}

// Save 保存配置到文件
func (c *AppConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config failed")
	}

	if err := os.WriteFile(c.File, data, 0644); err != nil {
		return errors.Wrap(err, "write config file failed")
	}
	return nil
}

// GetWorkerPoolConfig 获取 Worker Pool 配置
func (c *AppConfig) GetWorkerPoolConfig() workerpool.Config {
	cfg := workerpool.DefaultConfig()

	if c.App.WorkerPoolMaxWorkers > 0 {
		cfg.MaxWorkers = c.App.WorkerPoolMaxWorkers
	}
	if c.App.WorkerPoolQueueSize > 0 {
		cfg.QueueSize = c.App.WorkerPoolQueueSize
	}
	return cfg
}

// GetLinkTTL 获取链接有效期
func (c *AppConfig) GetLinkTTL() time.Duration {
	return util.ParseDurationOr(c.Link.TTL, doclink.DefaultTTL)
}

// GetSignerConfig 获取签名器配置
func (c *AppConfig) GetSignerConfig() doclink.SignerConfig {
	return doclink.SignerConfig{
		SecretKey:   c.Security.LinkTokenKey,
		BaseURL:     c.Link.BaseURL,
		DefaultTTL:  c.GetLinkTTL(),
		DefaultRole: c.Link.DefaultRole,
	}
}

// GetServiceConfig 获取服务层配置
func (c *AppConfig) GetServiceConfig() *service.ServiceConfig {
	return &service.ServiceConfig{
		Link: service.LinkServiceConfig{
			RefreshWindow:      c.Link.RefreshWindow,
			RefreshConcurrency: c.Link.RefreshConcurrency,
		},
	}
}

// GetContextTimeout 获取请求上下文超时
func (c *AppConfig) GetContextTimeout() time.Duration {
	return time.Duration(c.App.DefaultContextTimeout) * time.Second
}

// GetConversationRetention 获取会话保留时长，0 表示不清理
func (c *AppConfig) GetConversationRetention() time.Duration {
	return util.ParseDurationOr(c.App.ConversationRetention, 0)
}

// IsDefaultLinkTokenKey 是否仍在使用内置的签名密钥或密钥为空
func (c *AppConfig) IsDefaultLinkTokenKey() bool {
	return c.Security.LinkTokenKey == "" || c.Security.LinkTokenKey == DefaultLinkTokenKey
}
