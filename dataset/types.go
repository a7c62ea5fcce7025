package dataset

import "time"

// Dataset kinds select summary and preview shaping rules. Anything else is
// treated as KindGeneric.
const (
	KindMessages       = "messages"
	KindLogEntries     = "log-entries"
	KindConnectionLogs = "connection-logs"
	KindEvents         = "events"
	KindGeneric        = "generic"
)

// Pagination bounds for query results.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// DefaultTTL is how long a snapshot stays reachable unless the store call
// overrides it.
const DefaultTTL = 30 * time.Minute

// DefaultSweepInterval is how often the background sweeper evicts expired
// snapshots. Kept shorter than DefaultTTL so memory stays bounded without
// read traffic.
const DefaultSweepInterval = 5 * time.Minute

// StoreOptions carries per-call ingestion settings. All fields are optional.
type StoreOptions struct {
	ScopeID   string        // upstream resource tag, carried through verbatim
	ScopeName string        // human-readable scope tag
	TTL       time.Duration // overrides DefaultTTL when > 0
	// IdentityField is the primary field consulted for item identity.
	// Resolution falls back to "id", then literal 0.
	IdentityField string
}

// Metadata describes a stored snapshot without its item bodies.
type Metadata struct {
	ID         string    `json:"dataset_id"`
	Kind       string    `json:"kind"`
	ScopeID    string    `json:"scope_id,omitempty"`
	ScopeName  string    `json:"scope_name,omitempty"`
	TotalCount int       `json:"total_count"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Summary    *Summary  `json:"summary"`
}

// Summary is the read-only aggregate derived once at store time.
type Summary struct {
	TotalCount    int            `json:"total_count"`
	DateRange     *DateRange     `json:"date_range,omitempty"`
	Preview       []Record       `json:"preview"`
	StatusCounts  map[string]int `json:"status_counts,omitempty"`
	LevelCounts   map[string]int `json:"level_counts,omitempty"`
	OutcomeCounts map[string]int `json:"outcome_counts,omitempty"`
	ErrorCount    int            `json:"error_count,omitempty"`
}

// DateRange bounds the date-bearing values observed across a snapshot.
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// QueryRequest narrows and orders a snapshot's items.
type QueryRequest struct {
	DatasetID string `json:"dataset_id"`
	// IDs keeps only items whose resolved identity is in this set.
	IDs []any `json:"ids,omitempty"`
	// Filters are ANDed. Text-on-text matches case-insensitive substring;
	// anything else requires equality.
	Filters map[string]any `json:"filters,omitempty"`
	// Search keeps items where any field value contains this string,
	// case-insensitively.
	Search string `json:"search,omitempty"`
	// SortBy orders by a field; items missing it sort after all others.
	SortBy string `json:"sort_by,omitempty"`
	// SortOrder is "asc" or "desc" (default "desc").
	SortOrder string `json:"sort_order,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// Page is one window of a filtered, sorted result set.
type Page struct {
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
	TotalCount int      `json:"total_count"`
	HasNext    bool     `json:"has_next"`
	HasPrev    bool     `json:"has_prev"`
	Items      []Record `json:"items"`
}

// Stats reports live store contents for operator tooling.
type Stats struct {
	Datasets      int            `json:"datasets"`
	Items         int            `json:"items"`
	ByKind        map[string]int `json:"by_kind"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

// snapshot is one ingested dataset. Items are immutable after creation;
// queries only ever build new slices over them.
type snapshot struct {
	id            string
	kind          string
	scopeID       string
	scopeName     string
	createdAt     time.Time
	expiresAt     time.Time
	identityField string
	items         []Record
	summary       *Summary
}

func (sn *snapshot) expired(now time.Time) bool {
	return !now.Before(sn.expiresAt)
}

func (sn *snapshot) metadata() *Metadata {
	total := len(sn.items)
	return &Metadata{
		ID:         sn.id,
		Kind:       sn.kind,
		ScopeID:    sn.scopeID,
		ScopeName:  sn.scopeName,
		TotalCount: total,
		PageSize:   DefaultPageSize,
		TotalPages: totalPages(total, DefaultPageSize),
		CreatedAt:  sn.createdAt,
		ExpiresAt:  sn.expiresAt,
		Summary:    sn.summary,
	}
}

func totalPages(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
