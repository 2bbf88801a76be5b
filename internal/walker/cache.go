package walker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"datagate/internal/metrics"
	"datagate/internal/permissions"
)

// AccessChecker resolves the fields of one stored item a caller may use.
// engine.ItemAccess implements it.
type AccessChecker interface {
	CheckFieldAccess(ctx context.Context, collection, item string, action permissions.Action) ([]string, error)
}

type AccessKey struct {
	Collection string
	Item       string
	Action     permissions.Action
}

// String quotes every part, so distinct keys never share a flight.
func (k AccessKey) String() string {
	return fmt.Sprintf("%q %q %q", k.Collection, k.Item, k.Action)
}

type accessResult struct {
	fields []string
}

// Cache memoizes access lookups for one walk. Concurrent lookups of the
// same key share a single call to the checker.
type Cache struct {
	checker AccessChecker
	group   singleflight.Group

	mu   sync.Mutex
	done map[AccessKey]accessResult
}

func NewCache(checker AccessChecker) *Cache {
	return &Cache{checker: checker, done: make(map[AccessKey]accessResult)}
}

// Fields returns the allowed fields for key, or nil when nothing is
// granted. A canceled ctx returns ctx.Err() without waiting for the
// lookup in flight; the shared lookup itself outlives any one caller.
func (c *Cache) Fields(ctx context.Context, key AccessKey) ([]string, error) {
	lookupCtx := context.WithoutCancel(ctx)
	c.mu.Lock()
	res, ok := c.done[key]
	c.mu.Unlock()
	if ok {
		metrics.AccessChecks.WithLabelValues(string(key.Action), "hit").Inc()
		return res.fields, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		c.mu.Lock()
		res, ok := c.done[key]
		c.mu.Unlock()
		if ok {
			return res.fields, nil
		}
		metrics.AccessChecks.WithLabelValues(string(key.Action), "miss").Inc()
		fields, err := c.checker.CheckFieldAccess(lookupCtx, key.Collection, key.Item, key.Action)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.done[key] = accessResult{fields: fields}
		c.mu.Unlock()
		return fields, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		fields, _ := r.Val.([]string)
		return fields, nil
	}
}

// Len returns the number of resolved keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}
