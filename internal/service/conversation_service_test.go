package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/pkg/code"
	"github.com/haierkeys/doc-link-service/pkg/writequeue"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConversationRepo struct {
	domain.ConversationRepository
	mu      sync.Mutex
	items   map[string]domain.Conversation
	saves   int
	saveErr error
}

func newMockConversationRepo(items ...domain.Conversation) *mockConversationRepo {
	m := &mockConversationRepo{items: map[string]domain.Conversation{}}
	for _, c := range items {
		m.items[c.ID] = c
	}
	return m
}

func (m *mockConversationRepo) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return &c, nil
}

func (m *mockConversationRepo) Save(ctx context.Context, conversation *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	if conversation.ID == "" {
		conversation.ID = "generated"
	}
	m.items[conversation.ID] = *conversation
	return nil
}

func (m *mockConversationRepo) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Conversation
	for _, c := range m.items {
		if c.SubjectID == subjectID && len(out) < limit {
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockConversationRepo) DeleteUpdatedBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.items {
		if c.UpdatedAt.Before(before) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func TestConversationService_RefreshStored(t *testing.T) {
	clock := newTestClock()
	links, signer := newTestService(t, clock, "0")
	ctx := context.Background()

	expired, err := signer.Issue("/manuals/engine.pdf", "u1", "engineer", time.Second)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	repo := newMockConversationRepo(domain.Conversation{
		ID:        "c1",
		SubjectID: "u1",
		Messages: []domain.Message{
			{Role: "assistant", DocumentLinks: []domain.DocumentLink{{URL: expired, DocumentPath: "/manuals/engine.pdf"}}},
		},
	})
	svc := NewConversationService(repo, links, nil, nil)

	// 1. 过期链接被刷新并写回
	out, err := svc.RefreshStored(ctx, "c1", "u1", "engineer")
	require.NoError(t, err)
	assert.True(t, out.Refreshed)
	assert.Equal(t, 1, repo.saves)

	stored, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.NotEqual(t, expired, stored.Messages[0].DocumentLinks[0].URL)
	assert.NotNil(t, stored.Messages[0].DocumentLinks[0].RefreshedAt)

	// 2. 再次刷新没有变化，不写回
	out, err = svc.RefreshStored(ctx, "c1", "u1", "engineer")
	require.NoError(t, err)
	assert.False(t, out.Refreshed)
	assert.Equal(t, 1, repo.saves)
}

func TestConversationService_Errors(t *testing.T) {
	clock := newTestClock()
	links, signer := newTestService(t, clock, "0")
	ctx := context.Background()

	expired, err := signer.Issue("/a.pdf", "u1", "crew", time.Second)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	repo := newMockConversationRepo(domain.Conversation{
		ID:        "c1",
		SubjectID: "u1",
		Messages:  []domain.Message{{DocumentLinks: []domain.DocumentLink{{URL: expired}}}},
	})
	svc := NewConversationService(repo, links, nil, nil)

	_, err = svc.Get(ctx, "missing", "u1")
	assert.ErrorIs(t, err, code.ErrorConversationNotFound)

	_, err = svc.Get(ctx, "c1", "someone-else")
	assert.ErrorIs(t, err, code.ErrorConversationForbidden)

	_, err = svc.RefreshStored(ctx, "c1", "someone-else", "crew")
	assert.ErrorIs(t, err, code.ErrorConversationForbidden)

	repo.saveErr = errors.New("disk full")
	_, err = svc.RefreshStored(ctx, "c1", "u1", "crew")
	assert.ErrorIs(t, err, code.ErrorDBQuery)

	_, err = svc.Save(ctx, &domain.Conversation{ID: "c1", SubjectID: "intruder"})
	assert.ErrorIs(t, err, code.ErrorConversationForbidden)
}

func TestConversationService_SaveAndList(t *testing.T) {
	clock := newTestClock()
	links, _ := newTestService(t, clock, "0")
	ctx := context.Background()

	created := time.Unix(1_700_000_000, 0)
	repo := newMockConversationRepo(domain.Conversation{ID: "c1", SubjectID: "u1", CreatedAt: created})
	svc := NewConversationService(repo, links, nil, nil)

	saved, err := svc.Save(ctx, &domain.Conversation{ID: "c1", SubjectID: "u1", Title: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, created, saved.CreatedAt, "created_at carried over from the stored row")

	saved, err = svc.Save(ctx, &domain.Conversation{SubjectID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "generated", saved.ID)

	list, err := svc.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Title)
}

func TestConversationService_ConcurrentRefreshCoalesced(t *testing.T) {
	clock := newTestClock()
	links, signer := newTestService(t, clock, "0")
	ctx := context.Background()

	expired, err := signer.Issue("/a.pdf", "u1", "crew", time.Second)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	repo := newMockConversationRepo(domain.Conversation{
		ID:       "c1",
		Messages: []domain.Message{{DocumentLinks: []domain.DocumentLink{{URL: expired, DocumentPath: "/a.pdf"}}}},
	})
	svc := NewConversationService(repo, links, nil, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RefreshStored(ctx, "c1", "u1", "crew")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 刷新后的链接不再过期，无论是否合并都只会写回一次
	assert.Equal(t, 1, repo.saves)
}

func TestConversationService_WriteQueue(t *testing.T) {
	clock := newTestClock()
	links, signer := newTestService(t, clock, "0")
	ctx := context.Background()

	expired, err := signer.Issue("/a.pdf", "u1", "crew", time.Second)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	repo := newMockConversationRepo(domain.Conversation{
		ID:        "c1",
		SubjectID: "u1",
		Messages:  []domain.Message{{DocumentLinks: []domain.DocumentLink{{URL: expired, DocumentPath: "/a.pdf"}}}},
	})
	queue := writequeue.New(nil, nil)
	svc := NewConversationService(repo, links, queue, nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.RefreshStored(ctx, "c1", "u1", "crew")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Save(ctx, &domain.Conversation{ID: "c2", SubjectID: "u1", Title: "other"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.NotEqual(t, expired, stored.Messages[0].DocumentLinks[0].URL)

	require.NoError(t, queue.Shutdown(ctx))
	_, err = svc.Save(ctx, &domain.Conversation{ID: "c1", SubjectID: "u1"})
	assert.ErrorIs(t, err, code.ErrorServerInternal)
}

// blockingLinks 在截止时间前只完成部分刷新
type blockingLinks struct {
	DocumentLinkService
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	sawErr  error
	calls   int
}

func (b *blockingLinks) RefreshConversation(ctx context.Context, conversation domain.Conversation, subjectID, role string) domain.ConversationRefresh {
	b.calls++
	b.once.Do(func() { close(b.entered) })
	select {
	case <-ctx.Done():
	case <-b.release:
	}
	b.sawErr = ctx.Err()

	out := domain.ConversationRefresh{Conversation: conversation, Refreshed: true}
	out.Conversation.Title = "partially refreshed"
	out.Stats = domain.RefreshStats{Total: 2, Refreshed: 1, Failed: 1}
	return out
}

func TestConversationService_RefreshStoredDeadlineKeepsPartial(t *testing.T) {
	repo := newMockConversationRepo(domain.Conversation{ID: "c1", SubjectID: "u1"})
	links := &blockingLinks{entered: make(chan struct{}), release: make(chan struct{})}
	queue := writequeue.New(nil, nil)
	defer queue.Shutdown(context.Background())
	svc := NewConversationService(repo, links, queue, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := svc.RefreshStored(ctx, "c1", "u1", "crew")
	require.NoError(t, err)
	assert.ErrorIs(t, links.sawErr, context.DeadlineExceeded)
	assert.True(t, out.Refreshed)
	assert.Equal(t, 1, out.Stats.Refreshed)
	assert.Equal(t, 1, out.Stats.Failed)

	// 已刷新的部分写回存储
	stored, err := repo.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "partially refreshed", stored.Title)
	assert.Equal(t, 1, repo.saves)
}

func TestConversationService_RefreshStoredIgnoresFirstCallerCancel(t *testing.T) {
	repo := newMockConversationRepo(domain.Conversation{ID: "c1", SubjectID: "u1"})
	links := &blockingLinks{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewConversationService(repo, links, nil, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.RefreshStored(firstCtx, "c1", "u1", "crew")
	}()
	<-links.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = svc.RefreshStored(context.Background(), "c1", "u1", "crew")
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	time.Sleep(10 * time.Millisecond)
	close(links.release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.NoError(t, links.sawErr)
	assert.Equal(t, 1, links.calls)
	assert.Equal(t, 1, repo.saves)
}

func TestConversationService_SavePublicStaysPublic(t *testing.T) {
	repo := newMockConversationRepo(domain.Conversation{ID: "shared", Title: "handbook"})
	svc := NewConversationService(repo, nil, nil, nil)

	saved, err := svc.Save(context.Background(), &domain.Conversation{ID: "shared", SubjectID: "u1", Title: "edited"})
	require.NoError(t, err)
	assert.Empty(t, saved.SubjectID)

	// 其他调用方仍可读取
	got, err := svc.Get(context.Background(), "shared", "u2")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Title)
}

func TestConversationService_Cleanup(t *testing.T) {
	now := time.Now()
	repo := newMockConversationRepo(
		domain.Conversation{ID: "old", UpdatedAt: now.Add(-48 * time.Hour)},
		domain.Conversation{ID: "recent", UpdatedAt: now.Add(-time.Hour)},
	)
	svc := NewConversationService(repo, nil, nil, nil)

	n, err := svc.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, repo.items, 2)

	n, err = svc.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, ok := repo.items["recent"]
	assert.True(t, ok)
}
