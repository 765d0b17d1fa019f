package dao

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/haierkeys/doc-link-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDao(t *testing.T) *Dao {
	t.Helper()
	cfg := Config{
		Type:        "sqlite",
		Path:        filepath.Join(t.TempDir(), "db", "test.sqlite3"),
		AutoMigrate: true,
	}
	db, err := NewDBEngine(cfg, false)
	require.NoError(t, err)

	d := New(db, cfg, nil)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestConversationRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDao(t))

	page := 5
	conversation := &domain.Conversation{
		SubjectID: "u1",
		Title:     "Engine room",
		Messages: []domain.Message{
			{
				Role:    "assistant",
				Content: "See page 5.",
				DocumentLinks: []domain.DocumentLink{
					{URL: "/api/documents/stream/a.b.c#page=5", DocumentPath: "/manuals/engine.pdf", Page: &page},
				},
				Metadata: json.RawMessage(`{"source":"search"}`),
			},
			{Role: "user", Content: "Thanks"},
		},
	}

	// 1. 新建会话自动分配 ID
	require.NoError(t, repo.Save(ctx, conversation))
	assert.NotEmpty(t, conversation.ID)
	assert.False(t, conversation.CreatedAt.IsZero())

	got, err := repo.Get(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.SubjectID)
	assert.Equal(t, "Engine room", got.Title)
	require.Len(t, got.Messages, 2)
	require.Len(t, got.Messages[0].DocumentLinks, 1)
	assert.Equal(t, 5, *got.Messages[0].DocumentLinks[0].Page)
	assert.JSONEq(t, `{"source":"search"}`, string(got.Messages[0].Metadata))

	// 2. 覆盖保存
	conversation.Title = "Engine room (updated)"
	conversation.Messages = conversation.Messages[:1]
	require.NoError(t, repo.Save(ctx, conversation))

	got, err = repo.Get(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "Engine room (updated)", got.Title)
	assert.Len(t, got.Messages, 1)
}

func TestConversationRepository_NotFound(t *testing.T) {
	repo := NewConversationRepository(newTestDao(t))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestConversationRepository_ListBySubject(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDao(t)).(*conversationRepository)

	base := time.Unix(1_760_000_000, 0)
	for i, id := range []string{"c1", "c2", "c3"} {
		at := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return at }
		require.NoError(t, repo.Save(ctx, &domain.Conversation{ID: id, SubjectID: "u1"}))
	}
	require.NoError(t, repo.Save(ctx, &domain.Conversation{ID: "other", SubjectID: "u2"}))

	list, err := repo.ListBySubject(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c3", list[0].ID)
	assert.Equal(t, "c2", list[1].ID)
	assert.NotNil(t, list[0].Messages)
}

func TestNewDBEngine_UnsupportedType(t *testing.T) {
	_, err := NewDBEngine(Config{Type: "oracle"}, false)
	assert.Error(t, err)
}

func TestConversationRepository_DeleteUpdatedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDao(t)).(*conversationRepository)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	require.NoError(t, repo.Save(ctx, &domain.Conversation{ID: "old", SubjectID: "u1"}))
	repo.now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, repo.Save(ctx, &domain.Conversation{ID: "new", SubjectID: "u1"}))

	n, err := repo.DeleteUpdatedBefore(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	_, err = repo.Get(ctx, "new")
	assert.NoError(t, err)
}
