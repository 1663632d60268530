package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"riskgate/internal/metrics"
	"riskgate/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxFailedAttempts = 3
	DefaultBlacklistDuration = 24 * time.Hour
	DefaultStoreTimeout      = 2 * time.Second
)

// Options configures a Ledger. Zero values take the package defaults.
type Options struct {
	MaxFailedAttempts int
	BlacklistDuration time.Duration
	BlockedIPs        *IPBlocklist
	Now               func() time.Time
	Logger            *logrus.Logger
	Metrics           *metrics.Metrics

	// StoreTimeout bounds each storage call. Calls are detached from the caller's
	// cancellation so an abandoned request cannot fail the store.
	StoreTimeout time.Duration
}

// Ledger tracks failed attempts per client and promotes repeat offenders to a
// time-limited blacklist. When the backing store fails the ledger switches to an
// in-process store for the rest of its life; no operation returns storage errors.
type Ledger struct {
	mu       sync.Mutex
	kv       store.KeyValueStore
	fallback *store.MemoryStore
	degraded bool

	maxAttempts int
	duration    time.Duration
	timeout     time.Duration
	blocked     *IPBlocklist
	now         func() time.Time
	logger      *logrus.Logger
	metrics     *metrics.Metrics
}

// New returns a ledger over kv. A nil kv keeps all state in memory.
func New(kv store.KeyValueStore, opts Options) *Ledger {
	l := &Ledger{
		kv:          kv,
		fallback:    store.NewMemoryStore(),
		maxAttempts: opts.MaxFailedAttempts,
		duration:    opts.BlacklistDuration,
		timeout:     opts.StoreTimeout,
		blocked:     opts.BlockedIPs,
		now:         opts.Now,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if l.kv == nil {
		l.kv = l.fallback
	}
	if l.maxAttempts <= 0 {
		l.maxAttempts = DefaultMaxFailedAttempts
	}
	if l.duration <= 0 {
		l.duration = DefaultBlacklistDuration
	}
	if l.timeout <= 0 {
		l.timeout = DefaultStoreTimeout
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = logrus.StandardLogger()
	}
	return l
}

// Degraded reports whether the ledger has fallen back to in-memory storage.
func (l *Ledger) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

// RecordFailure appends a failed attempt for clientID. It reports whether this
// attempt promoted the client to the blacklist.
func (l *Ledger) RecordFailure(ctx context.Context, clientID, reason string) bool {
	if clientID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	fails := l.loadFailures(ctx)
	rec := fails[clientID]
	rec.ClientID = clientID
	if rec.Count == 0 {
		rec.FirstAttempt = now
	}
	rec.Count++
	rec.Attempts = append(rec.Attempts, Attempt{Reason: reason, Timestamp: now})

	if rec.Count < l.maxAttempts {
		fails[clientID] = rec
		l.save(ctx, FailuresKey, fails)
		return false
	}

	list := l.loadBlacklist(ctx)
	list[clientID] = BlacklistEntry{
		ClientID:  clientID,
		Reason:    reason,
		Attempts:  rec.Attempts,
		AddedAt:   now,
		ExpiresAt: now.Add(l.duration),
	}
	delete(fails, clientID)
	l.save(ctx, BlacklistKey, list)
	l.save(ctx, FailuresKey, fails)

	l.metrics.Promotion()
	l.logger.WithFields(logrus.Fields{
		"client_id":  clientID,
		"reason":     reason,
		"attempts":   rec.Count,
		"expires_at": now.Add(l.duration).Format(time.RFC3339),
	}).Info("Client blacklisted")
	return true
}

// IsBlacklisted reports whether clientID has an active entry. An expired entry is
// removed as a side effect.
func (l *Ledger) IsBlacklisted(ctx context.Context, clientID string) bool {
	if clientID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.loadBlacklist(ctx)
	entry, ok := list[clientID]
	if !ok {
		return false
	}
	if entry.Active(l.now()) {
		return true
	}
	delete(list, clientID)
	l.save(ctx, BlacklistKey, list)
	return false
}

// CleanupExpired removes every entry whose expiry has passed and returns how many
// were removed.
func (l *Ledger) CleanupExpired(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	list := l.loadBlacklist(ctx)
	removed := 0
	for id, entry := range list {
		if entry.ExpiresAt.Before(now) {
			delete(list, id)
			removed++
		}
	}
	if removed > 0 {
		l.save(ctx, BlacklistKey, list)
		l.logger.WithField("removed", removed).Debug("Expired blacklist entries removed")
	}
	return removed
}

// IsIPBlocked reports whether ip matches a static blocklist entry.
func (l *Ledger) IsIPBlocked(ip string) bool {
	return l.blocked.Contains(ip)
}

// Entries returns the blacklist sorted by client id, expired entries included.
func (l *Ledger) Entries(ctx context.Context) []BlacklistEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.loadBlacklist(ctx)
	out := make([]BlacklistEntry, 0, len(list))
	for id, entry := range list {
		entry.ClientID = id
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Failures returns pending failure records sorted by client id.
func (l *Ledger) Failures(ctx context.Context) []FailureRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	fails := l.loadFailures(ctx)
	out := make([]FailureRecord, 0, len(fails))
	for id, rec := range fails {
		rec.ClientID = id
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (l *Ledger) loadBlacklist(ctx context.Context) blacklist {
	m, err := decode[blacklist](l.read(ctx, BlacklistKey))
	if err != nil {
		l.logger.WithError(err).WithField("key", BlacklistKey).Warn("Discarding unreadable ledger data")
	}
	return m
}

func (l *Ledger) loadFailures(ctx context.Context) failures {
	m, err := decode[failures](l.read(ctx, FailuresKey))
	if err != nil {
		l.logger.WithError(err).WithField("key", FailuresKey).Warn("Discarding unreadable ledger data")
	}
	return m
}

func (l *Ledger) active() store.KeyValueStore {
	if l.degraded {
		return l.fallback
	}
	return l.kv
}

func (l *Ledger) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
}

func (l *Ledger) read(ctx context.Context, key string) string {
	sctx, cancel := l.storeContext(ctx)
	defer cancel()
	raw, ok, err := l.active().Get(sctx, key)
	if err != nil {
		l.degrade(err)
		raw, ok, _ = l.fallback.Get(ctx, key)
	}
	if !ok {
		return ""
	}
	return raw
}

func (l *Ledger) save(ctx context.Context, key string, value any) {
	var (
		raw string
		err error
	)
	switch v := value.(type) {
	case blacklist:
		if len(v) == 0 {
			l.remove(ctx, key)
			return
		}
		raw, err = encode(v)
	case failures:
		if len(v) == 0 {
			l.remove(ctx, key)
			return
		}
		raw, err = encode(v)
	}
	if err != nil {
		l.logger.WithError(err).WithField("key", key).Error("Failed to encode ledger data")
		return
	}
	sctx, cancel := l.storeContext(ctx)
	defer cancel()
	if err := l.active().Set(sctx, key, raw); err != nil {
		l.degrade(err)
		_ = l.fallback.Set(ctx, key, raw)
	}
}

func (l *Ledger) remove(ctx context.Context, key string) {
	sctx, cancel := l.storeContext(ctx)
	defer cancel()
	if err := l.active().Remove(sctx, key); err != nil {
		l.degrade(err)
		_ = l.fallback.Remove(ctx, key)
	}
}

// degrade switches to the in-memory store. Only the first call logs.
func (l *Ledger) degrade(err error) {
	if l.degraded {
		return
	}
	l.degraded = true
	l.metrics.Degraded()

	entry := l.logger.WithError(err)
	if !errors.Is(err, store.ErrUnavailable) && !errors.Is(err, context.DeadlineExceeded) {
		entry = entry.WithField("unexpected", true)
	}
	entry.Warn("Ledger storage unavailable, continuing in memory")
}
