package walker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagate/internal/permissions"
)

type blockingAccess struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (b *blockingAccess) CheckFieldAccess(ctx context.Context, collection, item string, action permissions.Action) ([]string, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	return []string{"title"}, nil
}

func newBlockingAccess() *blockingAccess {
	return &blockingAccess{started: make(chan struct{}), release: make(chan struct{})}
}

func TestCache_CoalescesConcurrentLookups(t *testing.T) {
	access := newBlockingAccess()
	cache := NewCache(access)
	key := AccessKey{Collection: "articles", Item: "1", Action: permissions.ActionRead}

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fields, err := cache.Fields(context.Background(), key)
			assert.NoError(t, err)
			results[i] = fields
		}()
	}

	<-access.started
	time.Sleep(20 * time.Millisecond)
	close(access.release)
	wg.Wait()

	assert.Equal(t, int32(1), access.calls.Load())
	for _, fields := range results {
		assert.Equal(t, []string{"title"}, fields)
	}

	fields, err := cache.Fields(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, fields)
	assert.Equal(t, int32(1), access.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCache_CanceledCallerDoesNotWait(t *testing.T) {
	access := newBlockingAccess()
	cache := NewCache(access)
	key := AccessKey{Collection: "articles", Item: "1", Action: permissions.ActionRead}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Fields(ctx, key)
		done <- err
	}()

	<-access.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(access.release)
}

func TestCache_SharedLookupOutlivesCanceledCaller(t *testing.T) {
	access := newBlockingAccess()
	cache := NewCache(access)
	key := AccessKey{Collection: "articles", Item: "1", Action: permissions.ActionRead}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cache.Fields(ctx, key)
		first <- err
	}()
	<-access.started

	type result struct {
		fields []string
		err    error
	}
	second := make(chan result, 1)
	go func() {
		fields, err := cache.Fields(context.Background(), key)
		second <- result{fields, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(access.release)

	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, []string{"title"}, r.fields)
	assert.Equal(t, int32(1), access.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestAccessKey_StringIsUnambiguous(t *testing.T) {
	a := AccessKey{Collection: "a|b", Item: "c", Action: permissions.ActionRead}
	b := AccessKey{Collection: "a", Item: "b|c", Action: permissions.ActionRead}
	assert.NotEqual(t, a.String(), b.String())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	access := newBlockingAccess()
	access.err = errors.New("db down")
	close(access.release)
	cache := NewCache(access)
	key := AccessKey{Collection: "articles", Item: "1", Action: permissions.ActionRead}

	_, err := cache.Fields(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	access.err = nil
	fields, err := cache.Fields(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, fields)
}

func TestWalk_CanceledContext(t *testing.T) {
	access := newBlockingAccess()
	w := newWalker(access, permissions.NewSet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.Walk(ctx, map[string]any{"id": 1, "title": "x"}, "articles", Outbound, Options{})
		done <- err
	}()

	<-access.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(access.release)
}
