package service

import (
	"context"
	"slices"
	"time"

	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/pkg/doclink"
	"github.com/haierkeys/doc-link-service/pkg/logger"
	"github.com/haierkeys/doc-link-service/pkg/metrics"
	"github.com/haierkeys/doc-link-service/pkg/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRefreshWindow links expiring within this window are reissued
// DefaultRefreshWindow 在此窗口内即将过期的链接会被重新签发
const DefaultRefreshWindow = 5 * time.Minute

// DefaultRefreshConcurrency 单次刷新的默认签名并发数
const DefaultRefreshConcurrency = 8

// DocumentLinkService defines the link issuance and refresh interface
// DocumentLinkService 定义文档链接签发与刷新接口
type DocumentLinkService interface {
	// Issue issues a signed link for a document
	// Issue 为文档签发带签名的链接
	Issue(ctx context.Context, documentPath, subjectID, role string, ttl time.Duration) (string, error)

	// IsExpired reports whether a link's exp is missing, unreadable or passed
	// IsExpired 判断链接是否已过期（无法解析视为过期）
	IsExpired(rawURL string) bool

	// ExtractClaims returns the reissue inputs, false when the link is not recognised
	// ExtractClaims 返回重新签发所需的声明，无法识别时返回 false
	ExtractClaims(rawURL string) (*domain.LinkClaims, bool)

	// RefreshLink reissues a single link when it is expired or close to expiry
	// RefreshLink 在链接过期或即将过期时重新签发
	RefreshLink(ctx context.Context, link domain.DocumentLink, subjectID, role string) domain.RefreshResult

	// RefreshMany refreshes links independently, keeping input order
	// RefreshMany 逐个独立刷新链接，保持输入顺序
	RefreshMany(ctx context.Context, links []domain.DocumentLink, subjectID, role string) []domain.RefreshResult

	// RefreshConversation refreshes every link in a conversation's messages
	// RefreshConversation 刷新会话中所有消息携带的链接
	RefreshConversation(ctx context.Context, conversation domain.Conversation, subjectID, role string) domain.ConversationRefresh
}

// documentLinkService implementation of DocumentLinkService interface
// documentLinkService 实现 DocumentLinkService 接口
type documentLinkService struct {
	signer        doclink.Signer   // Link signer // 链接签名器
	logger        *zap.Logger      // Logger // 日志器
	metrics       *metrics.Metrics // Metrics, may be nil // 指标，可为 nil
	refreshWindow time.Duration    // Refresh window // 刷新窗口
	concurrency   int              // Signing concurrency // 签名并发数
	now           func() time.Time // Clock // 时钟
}

// NewDocumentLinkService creates DocumentLinkService instance
// NewDocumentLinkService 创建 DocumentLinkService 实例
func NewDocumentLinkService(signer doclink.Signer, lg *zap.Logger, m *metrics.Metrics, config *ServiceConfig) DocumentLinkService {
	return newDocumentLinkService(signer, lg, m, config, time.Now)
}

func newDocumentLinkService(signer doclink.Signer, lg *zap.Logger, m *metrics.Metrics, config *ServiceConfig, now func() time.Time) *documentLinkService {
	if lg == nil {
		lg = zap.NewNop()
	}

	s := &documentLinkService{
		signer:        signer,
		logger:        lg,
		metrics:       m,
		refreshWindow: DefaultRefreshWindow,
		concurrency:   DefaultRefreshConcurrency,
		now:           now,
	}

	if config != nil {
		if config.Link.RefreshWindow != "" {
			if window, err := util.ParseDuration(config.Link.RefreshWindow); err == nil && window >= 0 {
				s.refreshWindow = window
			} else {
				lg.Warn("invalid link refresh window, using default",
					zap.String("refreshWindow", config.Link.RefreshWindow),
					zap.Duration("default", DefaultRefreshWindow))
			}
		}
		if config.Link.RefreshConcurrency > 0 {
			s.concurrency = config.Link.RefreshConcurrency
		}
	}

	// 刷新窗口必须小于新链接的有效期，否则刚签发的链接也会被判定为即将过期
	if signer != nil && s.refreshWindow > 0 && s.refreshWindow >= signer.DefaultTTL() {
		lg.Warn("link refresh window not shorter than link ttl, using strict expiry",
			zap.Duration("refreshWindow", s.refreshWindow),
			zap.Duration("ttl", signer.DefaultTTL()))
		s.refreshWindow = 0
	}

	return s
}

// Issue issues a signed link
// Issue 签发链接
func (s *documentLinkService) Issue(ctx context.Context, documentPath, subjectID, role string, ttl time.Duration) (string, error) {
	link, err := s.signer.Issue(documentPath, subjectID, role, ttl)
	s.metrics.LinkIssued(err)
	if err != nil {
		s.logger.Warn("document link issue failed",
			zap.String(logger.FieldPath, documentPath),
			zap.String(logger.FieldSubject, subjectID),
			zap.String(logger.FieldKind, doclink.ErrorKind(err)),
			zap.Error(err))
		return "", err
	}
	return link, nil
}

// IsExpired 判断链接是否已过期
// 仅用于避免无谓的重新签发，真正的校验由流式下载端完成
func (s *documentLinkService) IsExpired(rawURL string) bool {
	return doclink.IsExpired(rawURL, s.now())
}

// ExtractClaims 提取重新签发所需的声明
func (s *documentLinkService) ExtractClaims(rawURL string) (*domain.LinkClaims, bool) {
	claims, err := doclink.DecodeClaims(rawURL)
	if err != nil {
		return nil, false
	}

	out := &domain.LinkClaims{
		DocumentPath: claims.DocumentPath,
		SubjectID:    claims.SubjectID(),
		Role:         claims.Role,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, true
}

// RefreshLink 刷新单个链接
func (s *documentLinkService) RefreshLink(ctx context.Context, link domain.DocumentLink, subjectID, role string) domain.RefreshResult {
	res := domain.RefreshResult{
		OriginalURL:  link.URL,
		DocumentPath: link.DocumentPath,
		Page:         pageAnchor(link),
	}

	if err := ctx.Err(); err != nil {
		s.metrics.LinkRefresh(metrics.OutcomeCancelled)
		return failed(res, doclink.KindCancelled, err)
	}

	claims, err := doclink.DecodeClaims(link.URL)
	if err != nil {
		s.metrics.LinkRefresh(metrics.OutcomeUnparsable)
		return failed(res, doclink.KindUnparsableCredential, err)
	}
	if res.DocumentPath == "" {
		res.DocumentPath = claims.DocumentPath
	}

	// Fresh links are returned untouched
	// 未到刷新窗口的链接原样返回
	if !doclink.ExpiresWithin(link.URL, s.now(), s.refreshWindow) {
		s.metrics.LinkRefresh(metrics.OutcomeUnchanged)
		res.Success = true
		res.RefreshedURL = link.URL
		return res
	}

	// The caller's identity is authoritative, the stale claims only fill gaps
	// 以调用方身份为准，旧声明仅用于补全
	if subjectID == "" {
		subjectID = claims.SubjectID()
	}
	if role == "" {
		role = claims.Role
	}

	refreshed, err := s.signer.Issue(res.DocumentPath, subjectID, role, s.signer.DefaultTTL())
	s.metrics.LinkIssued(err)
	if err != nil {
		s.metrics.LinkRefresh(metrics.OutcomeFailed)
		s.logger.Warn("document link refresh failed, keeping original",
			zap.String(logger.FieldPath, res.DocumentPath),
			zap.String(logger.FieldSubject, subjectID),
			zap.Error(err))
		return failed(res, doclink.ErrorKind(err), err)
	}

	if res.Page != nil {
		refreshed = doclink.WithPage(refreshed, *res.Page)
	}

	s.metrics.LinkRefresh(metrics.OutcomeRefreshed)
	res.Success = true
	res.Refreshed = true
	res.RefreshedURL = refreshed
	return res
}

// RefreshMany 批量刷新链接
// 每个链接独立处理，输出顺序与输入一致，单个失败不影响其他链接
func (s *documentLinkService) RefreshMany(ctx context.Context, links []domain.DocumentLink, subjectID, role string) []domain.RefreshResult {
	results := make([]domain.RefreshResult, len(links))
	if len(links) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range links {
		g.Go(func() error {
			results[i] = s.RefreshLink(ctx, links[i], subjectID, role)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// linkPosition 链接在会话中的位置
type linkPosition struct {
	message int
	link    int
}

// RefreshConversation 刷新会话中的所有链接
// 返回新的会话值，不修改也不持有调用方传入的会话；未变化的消息原样保留
func (s *documentLinkService) RefreshConversation(ctx context.Context, conversation domain.Conversation, subjectID, role string) domain.ConversationRefresh {
	start := time.Now()
	out := domain.ConversationRefresh{Conversation: conversation}

	var positions []linkPosition
	var links []domain.DocumentLink
	for mi := range conversation.Messages {
		for li, link := range conversation.Messages[mi].DocumentLinks {
			positions = append(positions, linkPosition{message: mi, link: li})
			links = append(links, link)
		}
	}

	out.Stats.Total = len(links)
	if len(links) == 0 {
		s.metrics.ConversationRefresh(false, time.Since(start))
		return out
	}

	results := s.RefreshMany(ctx, links, subjectID, role)
	refreshedAt := s.now()

	// Copy-on-write: only messages holding a changed link get new slices
	// 写时复制：只有包含变更链接的消息才会复制
	var messages []domain.Message
	copied := make(map[int]bool)

	for i, res := range results {
		switch {
		case res.ErrorKind == doclink.KindUnparsableCredential:
			out.Stats.Skipped++
			continue
		case !res.Success:
			out.Stats.Failed++
			continue
		case !res.Changed():
			out.Stats.Unchanged++
			continue
		}

		out.Stats.Refreshed++
		if messages == nil {
			messages = slices.Clone(conversation.Messages)
		}

		pos := positions[i]
		if !copied[pos.message] {
			messages[pos.message].DocumentLinks = slices.Clone(messages[pos.message].DocumentLinks)
			copied[pos.message] = true
		}

		stamp := refreshedAt
		entry := &messages[pos.message].DocumentLinks[pos.link]
		entry.URL = res.RefreshedURL
		entry.RefreshedAt = &stamp
	}

	if messages != nil {
		out.Conversation.Messages = messages
		out.Refreshed = true
	}

	elapsed := time.Since(start)
	s.metrics.ConversationRefresh(out.Refreshed, elapsed)
	s.logger.Debug("conversation links refreshed",
		zap.String(logger.FieldConversation, conversation.ID),
		zap.Int("total", out.Stats.Total),
		zap.Int("refreshed", out.Stats.Refreshed),
		zap.Int("skipped", out.Stats.Skipped),
		zap.Int("failed", out.Stats.Failed),
		zap.Duration(logger.FieldDuration, elapsed))

	return out
}

// pageAnchor 读取链接的页码锚点，优先使用链接字段，其次使用 URL 中的 #page=
func pageAnchor(link domain.DocumentLink) *int {
	if link.Page != nil {
		page := *link.Page
		return &page
	}
	if page, ok := doclink.PageFromURL(link.URL); ok {
		return &page
	}
	return nil
}

// failed 标记刷新失败，调用方应继续使用原链接
func failed(res domain.RefreshResult, kind string, err error) domain.RefreshResult {
	res.Success = false
	res.Refreshed = false
	res.RefreshedURL = ""
	res.ErrorKind = kind
	res.Error = err.Error()
	return res
}
