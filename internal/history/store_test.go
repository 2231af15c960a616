package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"gongzi-quiz-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// fakeRemote stores problem items per collection. gate, when set, blocks Save until closed.
type fakeRemote struct {
	mu       sync.Mutex
	items    map[string][]domain.ProblemHistoryItem
	seq      int
	loadErr  error
	saveErr  error
	gate     chan struct{}
	deleted  []string
	saveHits int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{items: make(map[string][]domain.ProblemHistoryItem)}
}

func (r *fakeRemote) Save(_ context.Context, collection string, item domain.ProblemHistoryItem) (string, error) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveHits++
	if r.saveErr != nil {
		return "", r.saveErr
	}
	r.seq++
	id := fmt.Sprintf("remote-%d", r.seq)
	r.items[collection] = append(r.items[collection], item.WithHistoryID(id))
	return id, nil
}

func (r *fakeRemote) LoadAll(_ context.Context, collection string) ([]domain.ProblemHistoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	out := append([]domain.ProblemHistoryItem(nil), r.items[collection]...)
	sortNewestFirst(out)
	return out, nil
}

func (r *fakeRemote) Delete(_ context.Context, _ string, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return true, nil
}

func problem(id string, ts int64, attempt string) domain.ProblemHistoryItem {
	return domain.ProblemHistoryItem{ID: id, Timestamp: ts, Solution: "s", UserAttempt: attempt, IsIncorrectAttempt: true}
}

var alice = &domain.Identity{ID: "u1", DisplayName: "Alice"}

func assertNewestFirst(t *testing.T, items []domain.ProblemHistoryItem) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Timestamp, items[i].Timestamp, "list not sorted at %d", i)
	}
}

func TestAppendSameTemporaryIDKeepsOneEntry(t *testing.T) {
	ctx := context.Background()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), nil)

	<-store.Append(ctx, nil, problem("temp-1", 100, "first"))
	<-store.Append(ctx, nil, problem("temp-1", 100, "second"))

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "temp-1", items[0].ID)
	assert.Equal(t, "second", items[0].UserAttempt)
}

func TestAppendDuplicateReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), nil)

	<-store.Append(ctx, nil, problem("a", 300, "a"))
	<-store.Append(ctx, nil, problem("b", 200, "b"))
	<-store.Append(ctx, nil, problem("c", 100, "c"))
	<-store.Append(ctx, nil, problem("b", 200, "b2"))

	items := store.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "b", items[1].ID)
	assert.Equal(t, "b2", items[1].UserAttempt)
}

func TestMutationsKeepNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), nil)

	for i, ts := range []int64{50, 10, 70, 30, 90, 20} {
		<-store.Append(ctx, nil, problem(fmt.Sprintf("p%d", i), ts, ""))
		assertNewestFirst(t, store.Items())
	}
	<-store.Remove(ctx, nil, "p2")
	<-store.Remove(ctx, nil, "missing")
	items := store.Items()
	assert.Len(t, items, 5)
	assertNewestFirst(t, items)
}

func TestAppendAssignsTemporaryIDAndResolvesRemoteID(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), remote)

	res := <-store.Append(ctx, alice, problem("", 100, "x"))
	require.NoError(t, res.Err)
	assert.Contains(t, res.Value.LocalID, ProblemKind.IDPrefix)
	assert.Equal(t, "remote-1", res.Value.RemoteID)

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "remote-1", items[0].ID)
}

func TestRemoteSaveFailureKeepsTemporaryID(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.saveErr = errors.New("offline")
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), remote)

	res := <-store.Append(ctx, alice, problem("temp-9", 100, "x"))
	assert.Error(t, res.Err)
	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "temp-9", items[0].ID)
	assert.Equal(t, 1, remote.saveHits)
}

func TestResolutionAfterRemoveIsNoop(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), remote)

	pending := store.Append(ctx, alice, problem("temp-1", 100, "x"))
	<-store.Remove(ctx, nil, "temp-1")
	close(remote.gate)

	res := <-pending
	require.NoError(t, res.Err)
	store.Wait()
	assert.Empty(t, store.Items())
}

func TestAnonymousStaysLocal(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), remote)

	res := <-store.Append(ctx, nil, problem("", 100, "x"))
	require.NoError(t, res.Err)
	assert.Empty(t, res.Value.RemoteID)
	assert.Equal(t, 0, remote.saveHits)
}

func TestLoadFallsBackToLocalCacheOnRemoteFailure(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	seed := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, nil)
	<-seed.Append(ctx, nil, problem("l1", 100, "x"))
	<-seed.Append(ctx, nil, problem("l2", 200, "y"))

	remote := newFakeRemote()
	remote.loadErr = errors.New("unreachable")
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, remote)

	loaded := store.Load(ctx, alice)
	assert.Equal(t, SourceLocal, loaded.Source)
	assert.Error(t, loaded.RemoteErr)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "l2", loaded.Items[0].ID)
}

func TestLoadFallsBackWhenRemoteEmpty(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	seed := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, nil)
	<-seed.Append(ctx, nil, problem("l1", 100, "x"))

	store := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, newFakeRemote())
	loaded := store.Load(ctx, alice)
	assert.Equal(t, SourceLocal, loaded.Source)
	assert.NoError(t, loaded.RemoteErr)
	assert.Len(t, loaded.Items, 1)
}

func TestLoadPrefersRemote(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.items[ProblemKind.Collection("u1")] = []domain.ProblemHistoryItem{
		problem("r1", 100, ""), problem("r2", 300, ""),
	}
	cache := newMapCache()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, remote)

	loaded := store.Load(ctx, alice)
	assert.Equal(t, SourceRemote, loaded.Source)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "r2", loaded.Items[0].ID)
	assert.Contains(t, cache.data[ProblemKind.CacheKey], "r2")
}

func TestCorruptCacheLoadsEmpty(t *testing.T) {
	cache := newMapCache()
	cache.data[ProblemKind.CacheKey] = "{not json"
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, nil)

	loaded := store.Load(context.Background(), nil)
	assert.Equal(t, SourceLocal, loaded.Source)
	assert.Empty(t, loaded.Items)
}

func TestLocalCacheIsCapped(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, nil)
	for i := 0; i < ProblemKind.LocalCap+5; i++ {
		<-store.Append(ctx, nil, problem(fmt.Sprintf("p%d", i), int64(i), ""))
	}
	assert.Len(t, store.Items(), ProblemKind.LocalCap+5)

	reloaded := NewStore[domain.ProblemHistoryItem](ProblemKind, cache, nil).Load(ctx, nil)
	require.Len(t, reloaded.Items, ProblemKind.LocalCap)
	assert.Equal(t, fmt.Sprintf("p%d", ProblemKind.LocalCap+4), reloaded.Items[0].ID)
}

func TestRemovePropagatesToRemote(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), remote)

	res := <-store.Append(ctx, alice, problem("", 100, ""))
	require.NoError(t, res.Err)

	del := <-store.Remove(ctx, alice, res.Value.RemoteID)
	require.NoError(t, del.Err)
	assert.True(t, del.Value)
	assert.Equal(t, []string{res.Value.RemoteID}, remote.deleted)
	assert.Empty(t, store.Items())
}

func TestLoadKeepsItemsStillBeingSaved(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.items[ProblemKind.Collection("u1")] = []domain.ProblemHistoryItem{problem("r1", 100, "")}
	remote.gate = make(chan struct{})
	store := NewStore[domain.ProblemHistoryItem](ProblemKind, newMapCache(), remote)

	pending := store.Append(ctx, alice, problem("temp-1", 200, "x"))
	assert.Equal(t, 1, store.Pending())

	loaded := store.Load(ctx, alice)
	assert.Equal(t, SourceRemote, loaded.Source)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "temp-1", loaded.Items[0].ID)

	close(remote.gate)
	res := <-pending
	require.NoError(t, res.Err)
	store.Wait()
	assert.Zero(t, store.Pending())

	items := store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, res.Value.RemoteID, items[0].ID)
}
