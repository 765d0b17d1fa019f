package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	internalApp "github.com/haierkeys/doc-link-service/internal/app"
	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/internal/service"
	"github.com/haierkeys/doc-link-service/pkg/doclink"
	"github.com/haierkeys/doc-link-service/pkg/util"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// linkFlags link 子命令共用参数
type linkFlags struct {
	config  string // 配置文件路径
	secret  string // 覆盖 security.link-token-key
	baseURL string // 覆盖 link.base-url
	subject string // 调用方 ID
	role    string // 调用方角色
}

// loadLinkConfig 加载配置，找不到配置文件时使用默认值
// 命令行参数优先于配置文件
func loadLinkConfig(f *linkFlags) (*internalApp.AppConfig, error) {
	path := f.config
	if path == "" {
		path = findConfig()
	}

	var cfg *internalApp.AppConfig
	if path != "" {
		c, _, err := internalApp.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = new(internalApp.AppConfig)
		if err := defaults.Set(cfg); err != nil {
			return nil, errors.Wrap(err, "set default config failed")
		}
	}

	if f.secret != "" {
		cfg.Security.LinkTokenKey = f.secret
	}
	if f.baseURL != "" {
		cfg.Link.BaseURL = f.baseURL
	}
	if cfg.IsDefaultLinkTokenKey() {
		bootstrapLogger.Warn("using default link signing key, links will not verify at the stream endpoint")
	}
	return cfg, nil
}

// newLinkService 按配置创建签名器与链接服务，不需要数据库
func newLinkService(cfg *internalApp.AppConfig) (doclink.Signer, service.DocumentLinkService) {
	signer := doclink.NewSigner(cfg.GetSignerConfig())
	return signer, service.NewDocumentLinkService(signer, bootstrapLogger, nil, cfg.GetServiceConfig())
}

// writeJSON 以缩进格式输出 JSON
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// inspectOutput link inspect 输出
type inspectOutput struct {
	URL       string            `json:"url"`
	Expired   bool              `json:"expired"`
	Claims    domain.LinkClaims `json:"claims"`
	Page      *int              `json:"page,omitempty"`
	Verified  *bool             `json:"verified,omitempty"`
	VerifyErr string            `json:"verify_error,omitempty"`
}

func init() {
	flags := new(linkFlags)

	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Issue, inspect and refresh document links",
	}

	pf := linkCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "config file")
	pf.StringVar(&flags.secret, "secret", "", "signing key, overrides security.link-token-key")
	pf.StringVar(&flags.baseURL, "base-url", "", "link prefix, overrides link.base-url")

	var (
		documentPath string
		ttl          string
		page         int
	)
	issueCmd := &cobra.Command{
		Use:   "issue --path <document_path> --subject <id> [--role r] [--ttl 30m] [--page n]",
		Short: "Issue a signed document link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadLinkConfig(flags)
			if err != nil {
				return err
			}

			var d time.Duration
			if ttl != "" {
				if d, err = util.ParseDuration(ttl); err != nil || d <= 0 {
					return errors.Errorf("invalid --ttl %q", ttl)
				}
			}

			_, svc := newLinkService(cfg)
			link, err := svc.Issue(cmd.Context(), documentPath, flags.subject, flags.role, d)
			if err != nil {
				return err
			}
			if page > 0 {
				link = doclink.WithPage(link, page)
			}

			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&documentPath, "path", "", "document path")
	issueCmd.Flags().StringVar(&flags.subject, "subject", "", "subject id")
	issueCmd.Flags().StringVar(&flags.role, "role", "", "access role, defaults to link.default-role")
	issueCmd.Flags().StringVar(&ttl, "ttl", "", "lifetime such as 30m, 1h or 1d, defaults to link.ttl")
	issueCmd.Flags().IntVar(&page, "page", 0, "page anchor")
	_ = issueCmd.MarkFlagRequired("path")
	_ = issueCmd.MarkFlagRequired("subject")

	var verify bool
	inspectCmd := &cobra.Command{
		Use:   "inspect <url> [--verify]",
		Short: "Decode a link's claims and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadLinkConfig(flags)
			if err != nil {
				return err
			}

			signer, svc := newLinkService(cfg)
			rawURL := args[0]

			claims, ok := svc.ExtractClaims(rawURL)
			if !ok {
				return errors.Wrap(doclink.ErrUnparsableCredential, "not a recognised document link")
			}

			out := inspectOutput{
				URL:     rawURL,
				Expired: svc.IsExpired(rawURL),
				Claims:  *claims,
			}
			if p, ok := doclink.PageFromURL(rawURL); ok {
				out.Page = &p
			}
			if verify {
				_, err := signer.Verify(rawURL)
				verified := err == nil
				out.Verified = &verified
				if err != nil {
					out.VerifyErr = err.Error()
				}
			}

			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	inspectCmd.Flags().BoolVar(&verify, "verify", false, "also verify signature and expiry with the configured key")

	var input, output string
	refreshCmd := &cobra.Command{
		Use:   "refresh-conversation [-f conversation.json] [-o out.json] --subject <id>",
		Short: "Refresh expired links in a conversation JSON document",
		Long:  "Reads a conversation as JSON from a file or stdin, refreshes its document links and writes the result with refresh stats.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadLinkConfig(flags)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return errors.Wrap(err, "open input")
				}
				defer f.Close()
				r = f
			}

			var conversation domain.Conversation
			if err := json.NewDecoder(r).Decode(&conversation); err != nil {
				return errors.Wrap(err, "decode conversation")
			}

			_, svc := newLinkService(cfg)
			result := svc.RefreshConversation(cmd.Context(), conversation, flags.subject, flags.role)

			bootstrapLogger.Info("conversation refreshed",
				zap.String("conversationId", conversation.ID),
				zap.Int("total", result.Stats.Total),
				zap.Int("refreshed", result.Stats.Refreshed),
				zap.Int("skipped", result.Stats.Skipped),
				zap.Int("failed", result.Stats.Failed))

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrap(err, "create output")
				}
				defer f.Close()
				w = f
			}
			return writeJSON(w, result)
		},
	}
	refreshCmd.Flags().StringVarP(&input, "file", "f", "", "input file, stdin when empty or -")
	refreshCmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty or -")
	refreshCmd.Flags().StringVar(&flags.subject, "subject", "", "caller subject id, falls back to each link's own subject")
	refreshCmd.Flags().StringVar(&flags.role, "role", "", "caller role, falls back to each link's own role")

	linkCmd.AddCommand(issueCmd, inspectCmd, refreshCmd)
	rootCmd.AddCommand(linkCmd)
}
