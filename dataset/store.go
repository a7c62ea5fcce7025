// Package dataset implements the in-process, time-bounded cache of upstream
// result sets. A producer stores one fetched payload as an immutable
// snapshot; callers then narrow it with filtered, sorted, paginated queries
// instead of re-fetching from the origin.
package dataset

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DUROUXG/MCP-OIE/idgen"
)

// Store owns the mapping from dataset ID to snapshot. Snapshots are
// immutable once stored; the live map is guarded by mu because the sweeper
// runs on its own goroutine.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*snapshot

	defaultTTL    time.Duration
	sweepInterval time.Duration
	newID         idgen.Generator
	now           func() time.Time
	logger        *slog.Logger

	createdAt time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	started   bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator sets a custom generator for dataset IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// WithClock sets a custom clock function (for deterministic tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// WithDefaultTTL overrides the default snapshot time-to-live.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultTTL = d
		}
	}
}

// WithSweepInterval overrides how often the background sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// New creates an empty Store. Call Start to launch the background sweeper
// and Close to stop it and clear all snapshots.
func New(opts ...Option) *Store {
	s := &Store{
		snapshots:     make(map[string]*snapshot),
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		newID:         idgen.Prefixed("ds_", idgen.Default),
		now:           time.Now,
		logger:        slog.Default(),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.createdAt = s.now()
	return s
}

// Store ingests a raw upstream payload as a new snapshot and returns its
// metadata. It never fails: malformed payloads degrade through Normalize
// and summary derivation skips whatever it cannot interpret.
func (s *Store) Store(kind string, rawItems []any, opts *StoreOptions) *Metadata {
	if opts == nil {
		opts = &StoreOptions{}
	}
	ttl := s.defaultTTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	items := Normalize(rawItems)

	// Baseline order: identity descending (newest first). Queries without an
	// explicit sort rely on this for stable pagination.
	sort.SliceStable(items, func(i, j int) bool {
		a := resolveIdentity(items[i], opts.IdentityField)
		b := resolveIdentity(items[j], opts.IdentityField)
		return compareValues(a, b) > 0
	})

	now := s.now()
	sn := &snapshot{
		id:            s.newID(),
		kind:          kind,
		scopeID:       opts.ScopeID,
		scopeName:     opts.ScopeName,
		createdAt:     now,
		expiresAt:     now.Add(ttl),
		identityField: opts.IdentityField,
		items:         items,
		summary:       buildSummary(kind, items),
	}

	s.mu.Lock()
	s.snapshots[sn.id] = sn
	s.mu.Unlock()

	s.logger.Debug("dataset stored",
		"dataset_id", sn.id, "kind", kind, "items", len(items), "ttl", ttl)
	return sn.metadata()
}

// GetItem returns the full untruncated record whose resolved identity equals
// itemID. Identities are not guaranteed unique; the first match in the
// snapshot's current order wins. Returns ErrDatasetNotFound for an unknown
// or expired dataset and ErrItemNotFound for a missing item.
func (s *Store) GetItem(datasetID string, itemID any) (Record, error) {
	sn := s.liveSnapshot(datasetID)
	if sn == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}

	want := identityKey(itemID)
	for _, rec := range sn.items {
		if identityKey(resolveIdentity(rec, sn.identityField)) == want {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %v in dataset %s", ErrItemNotFound, itemID, datasetID)
}

// Metadata returns a snapshot's metadata, or nil if the dataset is unknown
// or expired.
func (s *Store) Metadata(datasetID string) *Metadata {
	sn := s.liveSnapshot(datasetID)
	if sn == nil {
		return nil
	}
	return sn.metadata()
}

// List sweeps expired snapshots, then returns metadata for all remaining
// ones, newest first.
func (s *Store) List() []*Metadata {
	s.Sweep()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Metadata, 0, len(s.snapshots))
	for _, sn := range s.snapshots {
		out = append(out, sn.metadata())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete removes a snapshot immediately regardless of expiry. It reports
// whether anything was removed.
func (s *Store) Delete(datasetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[datasetID]; !ok {
		return false
	}
	delete(s.snapshots, datasetID)
	return true
}

// Sweep evicts every expired snapshot and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sn := range s.snapshots {
		if sn.expired(now) {
			delete(s.snapshots, id)
			removed++
		}
	}
	return removed
}

// Stats reports live snapshot and item counts per kind.
func (s *Store) Stats() *Stats {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &Stats{
		ByKind:        make(map[string]int),
		UptimeSeconds: int64(now.Sub(s.createdAt) / time.Second),
	}
	for _, sn := range s.snapshots {
		if sn.expired(now) {
			continue
		}
		st.Datasets++
		st.Items += len(sn.items)
		st.ByKind[sn.kind]++
	}
	return st
}

// Start launches the periodic eviction sweeper. Non-blocking; safe to call
// once per Store.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		s.started = true
		go s.sweepLoop()
	})
}

// Close stops the sweeper and clears all snapshots. The store must not be
// used afterwards.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
	s.mu.Lock()
	s.snapshots = make(map[string]*snapshot)
	s.mu.Unlock()
	return nil
}

func (s *Store) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("dataset sweep evicted snapshots", "count", n)
			}
		}
	}
}

// liveSnapshot returns the snapshot for id, or nil if it is unknown or
// expired. An expired snapshot discovered here is evicted lazily so the
// 1ms-TTL case behaves the same with or without a sweep tick.
func (s *Store) liveSnapshot(id string) *snapshot {
	now := s.now()

	s.mu.RLock()
	sn, ok := s.snapshots[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if !sn.expired(now) {
		return sn
	}

	s.mu.Lock()
	// Re-check under the write lock: another caller may have replaced or
	// removed the entry in between.
	if cur, ok := s.snapshots[id]; ok && cur == sn {
		delete(s.snapshots, id)
	}
	s.mu.Unlock()
	return nil
}
