// Package history reconciles an optimistic in-memory history list with a bounded
// local cache and a best-effort remote store.
package history

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"gongzi-quiz-service/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Source tells callers which store served a Load.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Loaded is the result of Store.Load. RemoteErr is set when the remote store failed
// and the items came from the local cache instead.
type Loaded[T any] struct {
	Items     []T
	Source    Source
	RemoteErr error
}

// Persisted correlates a local (possibly temporary) id with the id the remote store assigned.
// RemoteID is empty when the item was kept local only.
type Persisted struct {
	LocalID  string
	RemoteID string
}

// Store holds one history list. All mutations are serialised on mu; remote calls run
// in the background and re-enter through the same lock.
type Store[T Item[T]] struct {
	kind   Kind
	cache  LocalCache
	remote Remote[T]
	logger *log.Logger
	newID  func() string

	mu    sync.Mutex
	items []T
	// inflight holds appended items whose remote save has not settled, keyed by local id.
	inflight map[string]inflightItem[T]

	pending     errgroup.Group
	outstanding atomic.Int64
}

type inflightItem[T any] struct {
	item       T
	collection string
}

// NewStore builds a store. remote may be nil, in which case everything stays local.
func NewStore[T Item[T]](kind Kind, cache LocalCache, remote Remote[T]) *Store[T] {
	return &Store[T]{
		kind:     kind,
		cache:    cache,
		remote:   remote,
		logger:   log.Default(),
		newID:    uuid.NewString,
		inflight: make(map[string]inflightItem[T]),
	}
}

// SetLogger replaces the default logger.
func (s *Store[T]) SetLogger(l *log.Logger) {
	s.logger = l
}

// Kind returns the collection description.
func (s *Store[T]) Kind() Kind {
	return s.kind
}

// Items returns a copy of the in-memory list, newest first.
func (s *Store[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Pending counts remote calls that have not settled yet.
func (s *Store[T]) Pending() int {
	return int(s.outstanding.Load())
}

// Load refreshes the in-memory list. With an identity the remote store wins; a remote
// failure or an empty remote result falls back to the local cache. Items of the same
// collection still being saved stay in the list.
func (s *Store[T]) Load(ctx context.Context, ident *domain.Identity) Loaded[T] {
	var res Loaded[T]
	collection := ""
	if ident != nil && s.remote != nil {
		collection = s.kind.Collection(ident.ID)
		items, err := s.remote.LoadAll(ctx, collection)
		switch {
		case err != nil:
			s.logger.Printf("history %s: remote load failed, using local cache: %v", s.kind.Name, err)
			res.RemoteErr = err
		case len(items) > 0:
			res.Items, res.Source = items, SourceRemote
		}
	}
	if res.Source == "" {
		res.Items, res.Source = s.readCache(ctx), SourceLocal
	}

	s.mu.Lock()
	s.items = nil
	for _, item := range res.Items {
		s.upsertLocked(item)
	}
	for id, f := range s.inflight {
		if collection != "" && f.collection == collection && s.indexLocked(id) < 0 {
			s.upsertLocked(f.item)
		}
	}
	s.sortLocked()
	s.writeCacheLocked(ctx)
	res.Items = make([]T, len(s.items))
	copy(res.Items, s.items)
	s.mu.Unlock()
	return res
}

// Append inserts item immediately and, when ident is set, persists it remotely in the
// background. An item without an id gets a temporary one, swapped for the remote id
// once the save succeeds. The returned channel yields exactly one result.
func (s *Store[T]) Append(ctx context.Context, ident *domain.Identity, item T) <-chan domain.Result[Persisted] {
	if item.HistoryID() == "" {
		item = item.WithHistoryID(s.kind.IDPrefix + s.newID())
	}
	localID := item.HistoryID()

	remoteLeg := ident != nil && s.remote != nil
	collection := ""
	if remoteLeg {
		collection = s.kind.Collection(ident.ID)
	}

	s.mu.Lock()
	s.upsertLocked(item)
	s.sortLocked()
	s.writeCacheLocked(ctx)
	if remoteLeg {
		s.inflight[localID] = inflightItem[T]{item: item, collection: collection}
	}
	s.mu.Unlock()

	out := make(chan domain.Result[Persisted], 1)
	if !remoteLeg {
		out <- domain.Ok(Persisted{LocalID: localID})
		close(out)
		return out
	}

	bg := context.WithoutCancel(ctx)
	s.outstanding.Add(1)
	s.pending.Go(func() error {
		defer close(out)
		defer s.outstanding.Add(-1)
		remoteID, err := s.remote.Save(bg, collection, item)
		if err != nil {
			s.logger.Printf("history %s: remote save of %s failed: %v", s.kind.Name, localID, err)
			s.mu.Lock()
			delete(s.inflight, localID)
			s.mu.Unlock()
			out <- domain.Err[Persisted](err)
			return nil
		}
		s.resolve(bg, localID, remoteID)
		out <- domain.Ok(Persisted{LocalID: localID, RemoteID: remoteID})
		return nil
	})
	return out
}

// Remove drops id locally at once and, when ident is set, deletes it remotely in the
// background. The channel reports whether the remote store removed it (or, without a
// remote leg, whether the item was present locally).
func (s *Store[T]) Remove(ctx context.Context, ident *domain.Identity, id string) <-chan domain.Result[bool] {
	s.mu.Lock()
	delete(s.inflight, id)
	found := s.indexLocked(id) >= 0
	if found {
		kept := s.items[:0]
		for _, item := range s.items {
			if item.HistoryID() != id {
				kept = append(kept, item)
			}
		}
		s.items = kept
	}
	s.writeCacheLocked(ctx)
	s.mu.Unlock()

	out := make(chan domain.Result[bool], 1)
	if ident == nil || s.remote == nil {
		out <- domain.Ok(found)
		close(out)
		return out
	}

	bg := context.WithoutCancel(ctx)
	collection := s.kind.Collection(ident.ID)
	s.outstanding.Add(1)
	s.pending.Go(func() error {
		defer close(out)
		defer s.outstanding.Add(-1)
		deleted, err := s.remote.Delete(bg, collection, id)
		if err != nil {
			s.logger.Printf("history %s: remote delete of %s failed: %v", s.kind.Name, id, err)
			out <- domain.Err[bool](err)
			return nil
		}
		out <- domain.Ok(deleted)
		return nil
	})
	return out
}

// Wait blocks until every outstanding remote call has finished.
func (s *Store[T]) Wait() {
	_ = s.pending.Wait()
}

// resolve swaps a temporary id for the remote one. It is a no-op when the item was
// removed while the save was in flight.
func (s *Store[T]) resolve(ctx context.Context, localID, remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, localID)

	idx := s.indexLocked(localID)
	if idx < 0 || localID == remoteID {
		return
	}
	if other := s.indexLocked(remoteID); other >= 0 {
		s.items = append(s.items[:idx], s.items[idx+1:]...)
	} else {
		s.items[idx] = s.items[idx].WithHistoryID(remoteID)
	}
	s.sortLocked()
	s.writeCacheLocked(ctx)
}

// upsertLocked replaces an item with the same id in place, or prepends a new one.
func (s *Store[T]) upsertLocked(item T) {
	if idx := s.indexLocked(item.HistoryID()); idx >= 0 {
		s.items[idx] = item
		return
	}
	s.items = append([]T{item}, s.items...)
}

func (s *Store[T]) indexLocked(id string) int {
	for i, item := range s.items {
		if item.HistoryID() == id {
			return i
		}
	}
	return -1
}

func (s *Store[T]) sortLocked() {
	sortNewestFirst(s.items)
}

func (s *Store[T]) writeCacheLocked(ctx context.Context) {
	if s.cache == nil {
		return
	}
	n := len(s.items)
	if s.kind.LocalCap > 0 && n > s.kind.LocalCap {
		n = s.kind.LocalCap
	}
	recent := make([]T, n)
	copy(recent, s.items[:n])
	if err := writeJSON(ctx, s.cache, s.kind.CacheKey, recent); err != nil {
		s.logger.Printf("history %s: local cache write failed: %v", s.kind.Name, err)
	}
}

// readCache never fails: unreadable or corrupt cache content counts as empty.
func (s *Store[T]) readCache(ctx context.Context) []T {
	if s.cache == nil {
		return nil
	}
	var items []T
	if _, err := readJSON(ctx, s.cache, s.kind.CacheKey, &items); err != nil {
		s.logger.Printf("history %s: local cache unreadable, treating as empty: %v", s.kind.Name, err)
		return nil
	}
	return items
}

func sortNewestFirst[T Item[T]](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].HistoryTimestamp() > items[j].HistoryTimestamp()
	})
}
