package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-login/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const activityCacheKeyPrefix = "go-login::activity::v1"

// CachedActivityStore serves activity pages through a repository cache.
// Writes go to the base store and evict every page key read since the
// last write.
type CachedActivityStore struct {
	base  activityStore
	cache repositorycache.CacheService

	mu   sync.Mutex
	keys map[string]struct{}
}

type activityStore interface {
	core.ActivitySink
	core.ActivityReader
}

func NewCachedActivityStore(base activityStore, cacheService repositorycache.CacheService) (*CachedActivityStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base activity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: activity cache service is required")
	}
	return &CachedActivityStore{
		base:  base,
		cache: cacheService,
		keys:  map[string]struct{}{},
	}, nil
}

// ActivityCacheKey returns the cache key for a filtered page:
// go-login::activity::v1::<slot>::<federated_id>::<action>::<status>::<since>::<until>::<page>::<per_page>
// with each segment URL-path escaped after paging defaults are applied.
func ActivityCacheKey(filter core.ActivityFilter) string {
	page, perPage := normalizePaging(filter)
	slot := "*"
	if filter.Slot != nil {
		slot = strconv.Itoa(int(*filter.Slot))
	}
	segments := []string{
		slot,
		strings.TrimSpace(filter.FederatedID),
		strings.TrimSpace(filter.Action),
		strings.TrimSpace(filter.Status),
		formatBound(filter.Since),
		formatBound(filter.Until),
		strconv.Itoa(page),
		strconv.Itoa(perPage),
	}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{activityCacheKeyPrefix}, segments...), "::")
}

func (s *CachedActivityStore) ListActivity(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	key := ActivityCacheKey(filter)
	s.track(key)

	page, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.ActivityPage, error) {
		fetched, fetchErr := s.base.ListActivity(ctx, filter)
		if fetchErr != nil {
			return core.ActivityPage{}, fetchErr
		}
		return cloneActivityPage(fetched), nil
	})
	if err != nil {
		return core.ActivityPage{}, err
	}
	return cloneActivityPage(page), nil
}

func (s *CachedActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	if err := s.base.Record(ctx, entry); err != nil {
		return err
	}
	return s.evict(ctx)
}

// Prune forwards to the base store when it supports retention and evicts
// cached pages afterwards.
func (s *CachedActivityStore) Prune(ctx context.Context, policy core.ActivityRetentionPolicy) (int, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	pruner, ok := s.base.(core.ActivityRetentionPruner)
	if !ok {
		return 0, nil
	}
	deleted, err := pruner.Prune(ctx, policy)
	if err != nil {
		return deleted, err
	}
	if deleted > 0 {
		if err := s.evict(ctx); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func (s *CachedActivityStore) track(key string) {
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
}

func (s *CachedActivityStore) evict(ctx context.Context) error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.keys))
	for key := range s.keys {
		keys = append(keys, key)
	}
	s.keys = map[string]struct{}{}
	s.mu.Unlock()

	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func formatBound(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func cloneActivityPage(page core.ActivityPage) core.ActivityPage {
	cloned := page
	cloned.Items = make([]core.ActivityEntry, 0, len(page.Items))
	for _, item := range page.Items {
		item.Metadata = copyAnyMap(item.Metadata)
		cloned.Items = append(cloned.Items, item)
	}
	return cloned
}
