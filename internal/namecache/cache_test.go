package namecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	upserts int
	readErr error
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]Entry{}}
}

func (s *memStore) CachedName(_ context.Context, kind Kind, id string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return Entry{}, false, s.readErr
	}
	e, ok := s.entries[string(kind)+":"+id]
	return e, ok, nil
}

func (s *memStore) UpsertCachedName(_ context.Context, kind Kind, id, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.entries[string(kind)+":"+id] = Entry{Name: name, UpdatedAt: at}
	return nil
}

type countingFetcher struct {
	mu         sync.Mutex
	userCalls  int
	groupCalls int
	name       string
	err        error
}

func (f *countingFetcher) GroupMemberName(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	return f.name, f.err
}

func (f *countingFetcher) GroupName(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupCalls++
	return f.name, f.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func bootstrap(t *testing.T, store Store, fetcher Fetcher) (*Cache, *clock) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	clk := &clock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	return New(logger.Sugar(), store, fetcher, WithClock(clk.Now)), clk
}

func TestDecide(t *testing.T) {
	now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	ttl := 7 * 24 * time.Hour

	require.Equal(t, Refresh, Decide(Entry{}, false, now, ttl))
	require.Equal(t, Refresh, Decide(Entry{Name: "", UpdatedAt: now}, true, now, ttl))
	require.Equal(t, UseCached, Decide(Entry{Name: "Alice", UpdatedAt: now.Add(-time.Hour)}, true, now, ttl))
	require.Equal(t, UseCached, Decide(Entry{Name: "Alice", UpdatedAt: now.Add(-ttl + time.Second)}, true, now, ttl))
	require.Equal(t, Refresh, Decide(Entry{Name: "Alice", UpdatedAt: now.Add(-ttl)}, true, now, ttl))
}

func TestResolveTwiceWithinTTLFetchesOnce(t *testing.T) {
	store := newMemStore()
	fetcher := &countingFetcher{name: "Alice"}
	c, clk := bootstrap(t, store, fetcher)

	require.Equal(t, "Alice", c.UserName(context.Background(), "Cgroup", "Ualice"))
	clk.Advance(6 * 24 * time.Hour)
	require.Equal(t, "Alice", c.UserName(context.Background(), "Cgroup", "Ualice"))

	require.Equal(t, 1, fetcher.userCalls)
	require.Equal(t, 1, store.upserts)
}

func TestResolveRefreshesAfterTTL(t *testing.T) {
	store := newMemStore()
	fetcher := &countingFetcher{name: "Alice"}
	c, clk := bootstrap(t, store, fetcher)

	c.UserName(context.Background(), "Cgroup", "Ualice")
	clk.Advance(7 * 24 * time.Hour)
	fetcher.name = "Alice Chen"

	require.Equal(t, "Alice Chen", c.UserName(context.Background(), "Cgroup", "Ualice"))
	require.Equal(t, 2, fetcher.userCalls)
	require.Len(t, store.entries, 1)
}

func TestResolveGroupTTL(t *testing.T) {
	store := newMemStore()
	fetcher := &countingFetcher{name: "Book Club"}
	c, clk := bootstrap(t, store, fetcher)

	c.GroupName(context.Background(), "Cgroup")
	clk.Advance(13 * 24 * time.Hour)
	c.GroupName(context.Background(), "Cgroup")
	require.Equal(t, 1, fetcher.groupCalls)

	clk.Advance(24 * time.Hour)
	c.GroupName(context.Background(), "Cgroup")
	require.Equal(t, 2, fetcher.groupCalls)
}

func TestResolveServesStaleOnFetchFailure(t *testing.T) {
	store := newMemStore()
	fetcher := &countingFetcher{name: "Alice"}
	c, clk := bootstrap(t, store, fetcher)

	c.UserName(context.Background(), "Cgroup", "Ualice")
	clk.Advance(30 * 24 * time.Hour)
	fetcher.err = errors.New("503 service unavailable")

	require.Equal(t, "Alice", c.UserName(context.Background(), "Cgroup", "Ualice"))
}

func TestResolveFallbackWithoutEntry(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("404 not found")}
	c, _ := bootstrap(t, newMemStore(), fetcher)

	require.Equal(t, "U1234567…", c.UserName(context.Background(), "Cgroup", "U1234567890abcdef"))
}

func TestResolveEmptyNameFallsBack(t *testing.T) {
	store := newMemStore()
	c, _ := bootstrap(t, store, &countingFetcher{name: ""})

	require.Equal(t, "Ushort", c.UserName(context.Background(), "Cgroup", "Ushort"))
	require.Zero(t, store.upserts)
}

func TestResolveStoreReadErrorStillFetches(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("db down")
	fetcher := &countingFetcher{name: "Alice"}
	c, _ := bootstrap(t, store, fetcher)

	require.Equal(t, "Alice", c.UserName(context.Background(), "Cgroup", "Ualice"))
	require.Equal(t, 1, fetcher.userCalls)
}

func TestFallback(t *testing.T) {
	require.Equal(t, "U123", Fallback("U123"))
	require.Equal(t, "U1234567", Fallback("U1234567"))
	require.Equal(t, "U1234567…", Fallback("U12345678"))
}
