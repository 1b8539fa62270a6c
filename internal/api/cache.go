package api

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
)

// sessionCache keeps recently produced or loaded sessions in memory in
// front of the store
type sessionCache struct {
	recent *lru.Cache[string, *pipeline.Session]
	store  SessionStore
}

func newSessionCache(size int, store SessionStore) *sessionCache {
	if size <= 0 {
		size = 1
	}
	recent, _ := lru.New[string, *pipeline.Session](size)
	return &sessionCache{recent: recent, store: store}
}

func (c *sessionCache) add(s *pipeline.Session) {
	c.recent.Add(s.ID, s)
}

// get returns nil, nil when neither the cache nor the store has the session
func (c *sessionCache) get(ctx context.Context, id string) (*pipeline.Session, error) {
	if s, ok := c.recent.Get(id); ok {
		return s, nil
	}
	if c.store == nil {
		return nil, nil
	}

	s, err := c.store.Get(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	c.recent.Add(id, s)
	return s, nil
}
