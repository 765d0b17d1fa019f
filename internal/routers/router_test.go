package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haierkeys/doc-link-service/internal/app"
	"github.com/haierkeys/doc-link-service/internal/dao"
	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/internal/middleware"
	"github.com/haierkeys/doc-link-service/internal/service"
	"github.com/haierkeys/doc-link-service/pkg/code"
	"github.com/haierkeys/doc-link-service/pkg/doclink"

	"github.com/creasty/defaults"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// apiRes 统一响应结构，data 延迟解码
type apiRes struct {
	Code    int             `json:"code"`
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details string          `json:"details"`
	TraceID string          `json:"traceId"`
}

func newTestApp(t *testing.T, mutate func(*app.AppConfig)) *app.App {
	t.Helper()

	cfg := &app.AppConfig{}
	require.NoError(t, defaults.Set(cfg))
	cfg.Database.Path = filepath.Join(t.TempDir(), "db.sqlite3")
	cfg.Security.LinkTokenKey = testSecret
	cfg.Link.BaseURL = "https://docs.example.com"
	if mutate != nil {
		mutate(cfg)
	}

	db, err := dao.NewDBEngine(cfg.Database, false)
	require.NoError(t, err)

	a, err := app.NewApp(cfg, zap.NewNop(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func doJSON(t *testing.T, r http.Handler, method, path, subject string, body any) (*httptest.ResponseRecorder, apiRes) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set(middleware.HeaderSubjectID, subject)
		req.Header.Set(middleware.HeaderSubjectRole, "analyst")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var res apiRes
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w, res
}

func pastSigner(offset time.Duration) doclink.Signer {
	return doclink.NewSigner(doclink.SignerConfig{
		SecretKey: testSecret,
		BaseURL:   "https://docs.example.com",
	}, doclink.WithClock(func() time.Time { return time.Now().Add(offset) }))
}

func TestRouter_IssueAndInspect(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	w, res := doJSON(t, r, http.MethodPost, "/api/documents/link", "u1", map[string]any{
		"document_path": "/manuals/engine.pdf",
		"page":          7,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, code.SuccessLinkIssued.Code(), res.Code, res.Details)
	assert.NotEmpty(t, w.Header().Get(middleware.DefaultTraceIDHeader))

	var issued struct {
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &issued))
	assert.True(t, strings.HasPrefix(issued.URL, "https://docs.example.com/api/documents/stream/"))
	assert.True(t, strings.HasSuffix(issued.URL, "#page=7"))
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), issued.ExpiresAt, 5*time.Second)

	_, res = doJSON(t, r, http.MethodPost, "/api/documents/link/inspect", "u1", map[string]any{
		"url":    issued.URL,
		"verify": true,
	})
	require.Equal(t, code.Success.Code(), res.Code, res.Details)

	var inspected struct {
		Expired  bool              `json:"expired"`
		Claims   domain.LinkClaims `json:"claims"`
		Page     *int              `json:"page"`
		Verified *bool             `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &inspected))
	assert.False(t, inspected.Expired)
	assert.Equal(t, "/manuals/engine.pdf", inspected.Claims.DocumentPath)
	assert.Equal(t, "u1", inspected.Claims.SubjectID)
	assert.Equal(t, "analyst", inspected.Claims.Role)
	require.NotNil(t, inspected.Page)
	assert.Equal(t, 7, *inspected.Page)
	require.NotNil(t, inspected.Verified)
	assert.True(t, *inspected.Verified)
}

func TestRouter_IssueValidation(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	_, res := doJSON(t, r, http.MethodPost, "/api/documents/link", "u1", map[string]any{})
	assert.Equal(t, code.ErrorInvalidParams.Code(), res.Code)

	_, res = doJSON(t, r, http.MethodPost, "/api/documents/link", "u1", map[string]any{
		"document_path": "/a.pdf",
		"ttl":           "soon",
	})
	assert.Equal(t, code.ErrorInvalidParams.Code(), res.Code)
}

func TestRouter_MissingIdentity(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	w, res := doJSON(t, r, http.MethodPost, "/api/documents/link", "", map[string]any{"document_path": "/a.pdf"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, code.ErrorInvalidIdentity.Code(), res.Code)

	// 健康检查无需身份
	w, res = doJSON(t, r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, code.Success.Code(), res.Code)
}

func TestRouter_RefreshLink(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	expired, err := pastSigner(-2*time.Hour).Issue("/reports/q3.pdf", "u1", "viewer", time.Minute)
	require.NoError(t, err)
	expired = doclink.WithPage(expired, 3)

	_, res := doJSON(t, r, http.MethodPost, "/api/documents/link/refresh", "u1", map[string]any{
		"link": domain.DocumentLink{URL: expired, DocumentPath: "/reports/q3.pdf"},
	})
	require.Equal(t, code.SuccessLinkRefreshed.Code(), res.Code, res.Details)

	var result domain.RefreshResult
	require.NoError(t, json.Unmarshal(res.Data, &result))
	assert.True(t, result.Success)
	assert.True(t, result.Refreshed)
	assert.NotEqual(t, expired, result.RefreshedURL)
	assert.True(t, strings.HasSuffix(result.RefreshedURL, "#page=3"))

	// 未过期链接原样返回
	_, res = doJSON(t, r, http.MethodPost, "/api/documents/link/refresh", "u1", map[string]any{
		"link": domain.DocumentLink{URL: result.RefreshedURL},
	})
	assert.Equal(t, code.SuccessLinkUnchanged.Code(), res.Code)

	_, res = doJSON(t, r, http.MethodPost, "/api/documents/link/refresh", "u1", map[string]any{
		"link": domain.DocumentLink{URL: "https://example.com/not-a-link"},
	})
	assert.Equal(t, code.ErrorLinkUnparsable.Code(), res.Code)
	require.NoError(t, json.Unmarshal(res.Data, &result))
	assert.False(t, result.Success)
	assert.Equal(t, doclink.KindUnparsableCredential, result.ErrorKind)
}

func TestRouter_RefreshManyKeepsOrder(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	expired, err := pastSigner(-time.Hour).Issue("/a.pdf", "u1", "viewer", time.Minute)
	require.NoError(t, err)
	fresh, err := pastSigner(0).Issue("/b.pdf", "u1", "viewer", time.Hour)
	require.NoError(t, err)

	links := []domain.DocumentLink{{URL: expired}, {URL: "garbage"}, {URL: fresh}}
	_, res := doJSON(t, r, http.MethodPost, "/api/documents/links/refresh", "u1", map[string]any{"links": links})
	require.Equal(t, code.Success.Code(), res.Code, res.Details)

	var out struct {
		Results   []domain.RefreshResult `json:"results"`
		Refreshed int                    `json:"refreshed"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &out))
	require.Len(t, out.Results, 3)
	assert.Equal(t, 1, out.Refreshed)
	for i, l := range links {
		assert.Equal(t, l.URL, out.Results[i].OriginalURL)
	}
	assert.True(t, out.Results[0].Refreshed)
	assert.False(t, out.Results[1].Success)
	assert.True(t, out.Results[2].Success)
	assert.False(t, out.Results[2].Refreshed)
}

func TestRouter_ConversationLifecycle(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	expired, err := pastSigner(-time.Hour).Issue("/a.pdf", "u1", "viewer", time.Minute)
	require.NoError(t, err)

	_, res := doJSON(t, r, http.MethodPut, "/api/conversations/c1", "u1", map[string]any{
		"title": "Quarterly review",
		"messages": []domain.Message{
			{Role: "assistant", Content: "see attached", DocumentLinks: []domain.DocumentLink{{URL: expired, DocumentPath: "/a.pdf"}}},
		},
	})
	require.Equal(t, code.SuccessConversationSaved.Code(), res.Code, res.Details)

	// 其他调用方不可读取
	w, res := doJSON(t, r, http.MethodGet, "/api/conversations/c1", "u2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, code.ErrorConversationForbidden.Code(), res.Code)

	_, res = doJSON(t, r, http.MethodGet, "/api/conversations/missing", "u1", nil)
	assert.Equal(t, code.ErrorConversationNotFound.Code(), res.Code)

	_, res = doJSON(t, r, http.MethodPost, "/api/conversations/c1/refresh", "u1", nil)
	require.Equal(t, code.SuccessConversationRefreshed.Code(), res.Code, res.Details)

	var refreshed domain.ConversationRefresh
	require.NoError(t, json.Unmarshal(res.Data, &refreshed))
	assert.True(t, refreshed.Refreshed)
	assert.Equal(t, 1, refreshed.Stats.Refreshed)

	_, res = doJSON(t, r, http.MethodGet, "/api/conversations/c1", "u1", nil)
	require.Equal(t, code.Success.Code(), res.Code)
	var stored domain.Conversation
	require.NoError(t, json.Unmarshal(res.Data, &stored))
	require.Len(t, stored.Messages, 1)
	link := stored.Messages[0].DocumentLinks[0]
	assert.NotEqual(t, expired, link.URL)
	assert.NotNil(t, link.RefreshedAt)

	_, res = doJSON(t, r, http.MethodGet, "/api/conversations?limit=10", "u1", nil)
	require.Equal(t, code.Success.Code(), res.Code)
	var list struct {
		List  []domain.Conversation `json:"list"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "Quarterly review", list.List[0].Title)
}

func TestRouter_InlineConversationRefresh(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	expired, err := pastSigner(-time.Hour).Issue("/a.pdf", "u1", "viewer", time.Minute)
	require.NoError(t, err)

	conversation := domain.Conversation{
		ID: "inline",
		Messages: []domain.Message{
			{Role: "assistant", DocumentLinks: []domain.DocumentLink{{URL: expired}, {URL: "not-a-link"}}},
			{Role: "user", Content: "thanks"},
		},
	}
	_, res := doJSON(t, r, http.MethodPost, "/api/conversations/refresh", "u1", map[string]any{"conversation": conversation})
	require.Equal(t, code.SuccessConversationRefreshed.Code(), res.Code, res.Details)

	var out domain.ConversationRefresh
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.True(t, out.Refreshed)
	assert.Equal(t, domain.RefreshStats{Total: 2, Refreshed: 1, Skipped: 1}, out.Stats)
	assert.Equal(t, "not-a-link", out.Conversation.Messages[0].DocumentLinks[1].URL)
	assert.Equal(t, "thanks", out.Conversation.Messages[1].Content)
}

// deadlineLinks 截止时间到达后返回已完成的部分刷新
type deadlineLinks struct {
	service.DocumentLinkService
}

func (d deadlineLinks) RefreshConversation(ctx context.Context, conversation domain.Conversation, subjectID, role string) domain.ConversationRefresh {
	<-ctx.Done()
	out := domain.ConversationRefresh{Conversation: conversation, Refreshed: true}
	out.Conversation.Title = "partial"
	out.Stats = domain.RefreshStats{Total: 2, Refreshed: 1, Failed: 1}
	return out
}

func TestRouter_ConversationRefreshDeadlineReturnsPartial(t *testing.T) {
	a := newTestApp(t, nil)
	a.DocumentLinkService = deadlineLinks{a.DocumentLinkService}
	r := NewRouter(a, nil)

	body, err := json.Marshal(map[string]any{"conversation": domain.Conversation{ID: "c1"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/conversations/refresh", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderSubjectID, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var res apiRes
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	require.Equal(t, code.SuccessConversationRefreshed.Code(), res.Code, res.Details)

	var out domain.ConversationRefresh
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.True(t, out.Refreshed)
	assert.Equal(t, "partial", out.Conversation.Title)
	assert.Equal(t, 1, out.Stats.Failed)
}

func TestRouter_IssueRateLimited(t *testing.T) {
	r := NewRouter(newTestApp(t, func(c *app.AppConfig) { c.Link.IssueRate = 1 }), nil)

	_, res := doJSON(t, r, http.MethodPost, "/api/documents/link", "u1", map[string]any{"document_path": "/a.pdf"})
	require.Equal(t, code.SuccessLinkIssued.Code(), res.Code)

	w, res := doJSON(t, r, http.MethodPost, "/api/documents/link", "u1", map[string]any{"document_path": "/a.pdf"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, code.ErrorTooManyRequests.Code(), res.Code)
}

func TestRouter_NoRoute(t *testing.T) {
	r := NewRouter(newTestApp(t, nil), nil)

	w, res := doJSON(t, r, http.MethodGet, "/api/nothing-here", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, code.ErrorNotFoundAPI.Code(), res.Code)
}

func TestPrivateRouter_Metrics(t *testing.T) {
	a := newTestApp(t, nil)
	r := NewRouter(a, nil)
	_, res := doJSON(t, r, http.MethodPost, "/api/documents/link", "u1", map[string]any{"document_path": "/a.pdf"})
	require.Equal(t, code.SuccessLinkIssued.Code(), res.Code)

	private := NewPrivateRouterWithLogger("release", zap.NewNop(), a.Registry)
	w := httptest.NewRecorder()
	private.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `doclink_links_issued_total{result="ok"} 1`)
	assert.Contains(t, w.Body.String(), "doclink_worker_pool_queued")

	w = httptest.NewRecorder()
	private.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
