package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute, nil), mr
}

func TestCacheFetchPopulatesAndServes(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()
	var loads int32
	load := func(context.Context) (Product, error) {
		atomic.AddInt32(&loads, 1)
		return Product{ID: id, Name: "Harina", Price: dec("950.00"), Version: 3}, nil
	}

	first, err := cache.Fetch(ctx, id, load)
	require.NoError(t, err)
	require.True(t, mr.Exists(productKey(id)))

	second, err := cache.Fetch(ctx, id, load)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&loads))
	require.Equal(t, first.Name, second.Name)
	require.True(t, first.Price.Equal(second.Price))
	require.Equal(t, 3, second.Version)

	cache.Invalidate(ctx, id)
	require.False(t, mr.Exists(productKey(id)))
	_, err = cache.Fetch(ctx, id, load)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestCacheDoesNotStoreMisses(t *testing.T) {
	cache, mr := newTestCache(t)
	id := uuid.New()
	_, err := cache.Fetch(context.Background(), id, func(context.Context) (Product, error) {
		return Product{}, ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists(productKey(id)))
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache(t)
	id := uuid.New()
	release := make(chan struct{})
	var loads int32
	load := func(context.Context) (Product, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return Product{ID: id, Name: "Polenta"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := cache.Fetch(context.Background(), id, load)
			assert.NoError(t, err)
			assert.Equal(t, "Polenta", p.Name)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var cache *Cache
	p, err := cache.Fetch(context.Background(), uuid.New(), func(context.Context) (Product, error) {
		return Product{Name: "Direct"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "Direct", p.Name)
	cache.Invalidate(context.Background(), uuid.New())
}

func TestServiceGetUsesCacheAndInvalidatesOnWrite(t *testing.T) {
	repo := newMemoryRepo()
	cache, mr := newTestCache(t)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, productRequest("Lentejas", "LEN-1"))
	require.NoError(t, err)
	_, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(productKey(p.ID)))

	_, err = svc.Update(ctx, p.ID, UpdateProductRequest{Name: ptr("Lentejas secas")})
	require.NoError(t, err)
	require.False(t, mr.Exists(productKey(p.ID)))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Lentejas secas", got.Name)
}
