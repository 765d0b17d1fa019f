package cmd

import (
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/haierkeys/doc-link-service/pkg/util"

	"github.com/radovskyb/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	dir     string // Project root directory // 项目根目录
	port    string // Startup port // 启动端口
	runMode string // Startup mode // 启动模式
	config  string // Specified configuration file path // 指定要使用的配置文件路径
}

// configCandidates 未指定配置文件时依次查找
var configCandidates = []string{
	"config/config-dev.yaml",
	"config.yaml",
	"config/config.yaml",
}

// findConfig 按顺序查找已存在的配置文件，找不到时返回空
func findConfig() string {
	for _, p := range configCandidates {
		if util.IsExist(p) {
			return p
		}
	}
	return ""
}

// emptyLinkTokenKey 内置配置中留空的签名密钥
const emptyLinkTokenKey = `link-token-key: ""`

// writeDefaultConfig 写出内置默认配置，签名密钥替换为随机值
func writeDefaultConfig(path string) error {
	content := strings.Replace(configDefault, emptyLinkTokenKey, `link-token-key: "`+util.GetRandomString(32)+`"`, 1)

	if err := util.EnsureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// serverHolder 配置热加载时替换当前运行的 Server
type serverHolder struct {
	mu sync.Mutex
	s  *Server
}

func (h *serverHolder) get() *Server {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s
}

func (h *serverHolder) set(s *Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s = s
}

func init() {
	runEnv := new(runFlags)

	var runCommand = &cobra.Command{
		Use:   "run [-c config_file] [-d working_dir] [-p port]",
		Short: "Run service",
		Run: func(cmd *cobra.Command, args []string) {
			if len(runEnv.dir) > 0 {
				err := os.Chdir(runEnv.dir)
				if err != nil {
					bootstrapLogger.Error("failed to change the current working directory", zap.Error(err))
				}
				bootstrapLogger.Info("working directory changed", zap.String("dir", runEnv.dir))
			}

			if len(runEnv.config) <= 0 {
				runEnv.config = findConfig()
			}
			if len(runEnv.config) <= 0 {
				bootstrapLogger.Warn("config file not found, creating default config")
				runEnv.config = "config/config.yaml"

				if err := writeDefaultConfig(runEnv.config); err != nil {
					bootstrapLogger.Error("config file auto create error", zap.Error(err))
					return
				}
				bootstrapLogger.Info("config file auto create successfully", zap.String("path", runEnv.config))
			}

			s, err := NewServer(runEnv)
			if err != nil {
				bootstrapLogger.Error("api service start err", zap.Error(err))
				return
			}

			holder := &serverHolder{s: s}

			w := watcher.New()

			// 每个监听周期至多接收 1 个事件
			w.SetMaxEvents(1)

			// 只通知写入事件
			w.FilterOps(watcher.Write)

			go func() {
				for {
					select {
					case event := <-w.Event:
						current := holder.get()
						current.logger.Info("config watcher change", zap.String("event", event.Op.String()), zap.String("file", event.Path))

						// 旧服务完全关闭后再启动，端口与数据库连接先释放
						current.sc.SendCloseSignal(nil)
						if err := current.sc.WaitClosed(); err != nil {
							current.logger.Error("service shutdown before reload failed", zap.Error(err))
						}

						next, err := NewServer(runEnv)
						if err != nil {
							bootstrapLogger.Error("service start err", zap.Error(err))
							continue
						}
						holder.set(next)

					case err := <-w.Error:
						holder.get().logger.Error("config watcher error", zap.Error(err))
					case <-w.Closed:
						bootstrapLogger.Info("config watcher closed")
						return
					}
				}
			}()

			if err := w.Add(runEnv.config); err != nil {
				s.logger.Error("config watcher file error", zap.Error(err))
			}

			go func() {
				if err := w.Start(time.Second * 5); err != nil {
					holder.get().logger.Error("config watcher start error", zap.Error(err))
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			w.Close()

			current := holder.get()
			current.logger.Info("Received shutdown signal, initiating graceful shutdown...")
			current.sc.SendCloseSignal(nil)

			// 等待所有关闭处理器完成（包括 App Container 的优雅关闭）
			if err := current.sc.WaitClosed(); err != nil {
				current.logger.Error("Shutdown completed with error", zap.Error(err))
			} else {
				current.logger.Info("Service has been shut down gracefully.")
			}
		},
	}

	rootCmd.AddCommand(runCommand)
	fs := runCommand.Flags()
	fs.StringVarP(&runEnv.dir, "dir", "d", "", "run dir")
	fs.StringVarP(&runEnv.port, "port", "p", "", "run port, overrides server.http-port")
	fs.StringVarP(&runEnv.runMode, "mode", "m", "", "run mode")
	fs.StringVarP(&runEnv.config, "config", "c", "", "config file")
}
