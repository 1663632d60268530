package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"riskgate/internal/ledger"
	"riskgate/internal/logger"
	"riskgate/internal/metrics"
	"riskgate/internal/store"

	"github.com/go-redis/redismock/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// brokenStore fails every call.
type brokenStore struct{ calls int }

func (s *brokenStore) Get(context.Context, string) (string, bool, error) {
	s.calls++
	return "", false, fmt.Errorf("%w: quota exceeded", store.ErrUnavailable)
}

func (s *brokenStore) Set(context.Context, string, string) error {
	s.calls++
	return fmt.Errorf("%w: quota exceeded", store.ErrUnavailable)
}

func (s *brokenStore) Remove(context.Context, string) error {
	s.calls++
	return errors.New("connection reset")
}

// ctxStore refuses calls whose context is already done, like a network client.
type ctxStore struct{ *store.MemoryStore }

func (s ctxStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s ctxStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func (s ctxStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Remove(ctx, key)
}

// stalledStore blocks until the call's context ends.
type stalledStore struct{}

func (stalledStore) Get(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func (stalledStore) Set(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledStore) Remove(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func newLedger(kv store.KeyValueStore, clock *fakeClock) *ledger.Ledger {
	return ledger.New(kv, ledger.Options{Now: clock.Now, Logger: logger.Discard()})
}

func TestRecordFailure_PromotesOnThirdAttempt(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l := newLedger(store.NewMemoryStore(), clock)

	assert.False(t, l.RecordFailure(ctx, "client-a", "challenge_failed"))
	assert.False(t, l.RecordFailure(ctx, "client-a", "challenge_failed"))
	assert.False(t, l.IsBlacklisted(ctx, "client-a"))

	failures := l.Failures(ctx)
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Count)
	assert.Len(t, failures[0].Attempts, 2)
	assert.Equal(t, clock.Now(), failures[0].FirstAttempt)

	assert.True(t, l.RecordFailure(ctx, "client-a", "automation_detected"))
	assert.True(t, l.IsBlacklisted(ctx, "client-a"))
	assert.Empty(t, l.Failures(ctx))

	entries := l.Entries(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "client-a", entries[0].ClientID)
	assert.Equal(t, "automation_detected", entries[0].Reason)
	assert.Equal(t, clock.Now().Add(24*time.Hour), entries[0].ExpiresAt)
}

func TestRecordFailure_ClientsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(store.NewMemoryStore(), newClock())

	l.RecordFailure(ctx, "client-a", "x")
	l.RecordFailure(ctx, "client-a", "x")
	l.RecordFailure(ctx, "client-b", "x")

	assert.False(t, l.IsBlacklisted(ctx, "client-a"))
	assert.False(t, l.IsBlacklisted(ctx, "client-b"))
	assert.False(t, l.RecordFailure(ctx, "", "x"))
}

func TestRecordFailure_CustomLimit(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l := ledger.New(store.NewMemoryStore(), ledger.Options{
		MaxFailedAttempts: 1,
		BlacklistDuration: time.Hour,
		Now:               clock.Now,
		Logger:            logger.Discard(),
	})

	assert.True(t, l.RecordFailure(ctx, "client-a", "known_bot"))
	clock.Advance(time.Hour + time.Second)
	assert.False(t, l.IsBlacklisted(ctx, "client-a"))
}

func TestIsBlacklisted_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	kv := store.NewMemoryStore()
	l := newLedger(kv, clock)

	for i := 0; i < 3; i++ {
		l.RecordFailure(ctx, "client-a", "challenge_failed")
	}

	clock.Advance(24 * time.Hour)
	assert.True(t, l.IsBlacklisted(ctx, "client-a"), "expiry instant is still blacklisted")

	clock.Advance(time.Millisecond)
	assert.False(t, l.IsBlacklisted(ctx, "client-a"))
	assert.Empty(t, l.Entries(ctx), "expired entry removed on read")
	assert.Zero(t, kv.Len())
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l := newLedger(store.NewMemoryStore(), clock)

	for i := 0; i < 3; i++ {
		l.RecordFailure(ctx, "old", "x")
	}
	clock.Advance(12 * time.Hour)
	for i := 0; i < 3; i++ {
		l.RecordFailure(ctx, "new", "x")
	}

	clock.Advance(13 * time.Hour)
	assert.Equal(t, 1, l.CleanupExpired(ctx))
	assert.Equal(t, 0, l.CleanupExpired(ctx))

	entries := l.Entries(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ClientID)
}

func TestMalformedData(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, ledger.BlacklistKey, "{not json"))
	require.NoError(t, kv.Set(ctx, ledger.FailuresKey, "[1,2,3]"))
	l := newLedger(kv, newClock())

	assert.False(t, l.IsBlacklisted(ctx, "client-a"))
	assert.Empty(t, l.Entries(ctx))
	assert.Empty(t, l.Failures(ctx))

	l.RecordFailure(ctx, "client-a", "x")
	raw, ok, err := kv.Get(ctx, ledger.FailuresKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"client-a"`)
	assert.False(t, l.Degraded())
}

func TestStorageFailure_FallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	broken := &brokenStore{}
	m := metrics.New()
	l := ledger.New(broken, ledger.Options{Now: newClock().Now, Logger: logger.Discard(), Metrics: m})

	assert.NotPanics(t, func() {
		for i := 0; i < 3; i++ {
			l.RecordFailure(ctx, "client-a", "challenge_failed")
		}
	})

	assert.True(t, l.Degraded())
	assert.True(t, l.IsBlacklisted(ctx, "client-a"))
	assert.Equal(t, 1, broken.calls, "no further calls once degraded")
	expected := `
# HELP riskgate_storage_degraded_total Times the ledger switched to in-memory mode after a storage failure
# TYPE riskgate_storage_degraded_total counter
riskgate_storage_degraded_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "riskgate_storage_degraded_total"))
}

func TestCancelledCallerKeepsPersistentStore(t *testing.T) {
	kv := ctxStore{store.NewMemoryStore()}
	l := newLedger(kv, newClock())
	for i := 0; i < 3; i++ {
		l.RecordFailure(context.Background(), "client-a", "automation_detected")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, l.IsBlacklisted(cancelled, "client-a"))
	assert.False(t, l.RecordFailure(cancelled, "client-b", "x"))
	assert.False(t, l.Degraded())

	assert.True(t, l.IsBlacklisted(context.Background(), "client-a"))
	_, ok, _ := kv.Get(context.Background(), ledger.FailuresKey)
	assert.True(t, ok)
}

func TestStoreTimeoutDegrades(t *testing.T) {
	l := ledger.New(stalledStore{}, ledger.Options{StoreTimeout: 10 * time.Millisecond, Logger: logger.Discard()})

	assert.False(t, l.IsBlacklisted(context.Background(), "client-a"))
	assert.True(t, l.Degraded())
}

func TestRedisBackedLedger(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	l := newLedger(store.NewRedisStore(db, "test:"), newClock())

	mock.ExpectGet("test:" + ledger.BlacklistKey).RedisNil()
	assert.False(t, l.IsBlacklisted(ctx, "client-a"))

	mock.ExpectGet("test:" + ledger.FailuresKey).SetErr(errors.New("connection refused"))
	assert.False(t, l.RecordFailure(ctx, "client-a", "x"))
	assert.True(t, l.Degraded())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIPBlocklist(t *testing.T) {
	b, err := ledger.NewIPBlocklist([]string{"104.164.173.0/24", "203.0.113.7", "2001:db8::/32"})
	require.NoError(t, err)
	l := ledger.New(nil, ledger.Options{BlockedIPs: b, Logger: logger.Discard()})

	tests := []struct {
		ip   string
		want bool
	}{
		{"104.164.173.50", true},
		{"104.164.174.1", false},
		{"8.8.8.8", false},
		{"203.0.113.7", true},
		{"::ffff:203.0.113.7", true},
		{"2001:db8::1", true},
		{"2001:db9::1", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.IsIPBlocked(tt.ip), tt.ip)
	}
	assert.Equal(t, 3, b.Len())
}

func TestIPBlocklist_MappedPrefix(t *testing.T) {
	b, err := ledger.NewIPBlocklist([]string{"::ffff:10.0.0.0/104"})
	require.NoError(t, err)

	assert.True(t, b.Contains("10.20.30.40"))
	assert.True(t, b.Contains("::ffff:10.20.30.40"))
	assert.False(t, b.Contains("11.0.0.1"))
}

func TestIPBlocklist_InvalidEntries(t *testing.T) {
	b, err := ledger.NewIPBlocklist([]string{"10.0.0.0/8", "999.1.1.1", "1.2.3.0/33"})
	require.Error(t, err)
	assert.Equal(t, 1, b.Len())
	assert.True(t, b.Contains("10.1.2.3"))
}

func TestConcurrentFailures(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(store.NewMemoryStore(), ledger.Options{MaxFailedAttempts: 100, Logger: logger.Discard()})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordFailure(ctx, "client-a", "x")
		}()
	}
	wg.Wait()

	failures := l.Failures(ctx)
	require.Len(t, failures, 1)
	assert.Equal(t, 50, failures[0].Count)
}
