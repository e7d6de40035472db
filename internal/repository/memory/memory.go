package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	goCache "github.com/patrickmn/go-cache"

	"github.com/splax/sitepress/internal/repository"
)

type item struct {
	value     []byte
	updatedAt time.Time
}

// Repository is an in-process key/value store for development and tests.
type Repository struct {
	cache *goCache.Cache
	now   func() time.Time
}

var _ repository.KV = (*Repository)(nil)

// New constructs an empty store. Entries never expire.
func New() *Repository {
	return &Repository{
		cache: goCache.New(goCache.NoExpiration, 0),
		now:   time.Now,
	}
}

// Get fetches the document stored under key.
func (r *Repository) Get(_ context.Context, key string) ([]byte, error) {
	raw, ok := r.cache.Get(key)
	if !ok {
		return nil, repository.ErrNotFound
	}
	it := raw.(item)
	return cloneBytes(it.value), nil
}

// Put replaces the document stored under key.
func (r *Repository) Put(_ context.Context, key string, value []byte) error {
	r.cache.Set(key, item{value: cloneBytes(value), updatedAt: r.now().UTC()}, goCache.NoExpiration)
	return nil
}

// PutIfAbsent stores the document only when key is unset.
func (r *Repository) PutIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	if err := r.cache.Add(key, item{value: cloneBytes(value), updatedAt: r.now().UTC()}, goCache.NoExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes the document stored under key.
func (r *Repository) Delete(_ context.Context, key string) error {
	r.cache.Delete(key)
	return nil
}

// List returns every entry whose key starts with prefix, ordered by key.
func (r *Repository) List(_ context.Context, prefix string) ([]repository.Entry, error) {
	entries := make([]repository.Entry, 0)
	for key, raw := range r.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		it := raw.Object.(item)
		entries = append(entries, repository.Entry{Key: key, Value: cloneBytes(it.value), UpdatedAt: it.updatedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
