// Package model holds the plain data types shared across the urlshort
// core: the URL mapping, the counter row, the circuit-breaker state, click
// events, aggregation windows, and daily summaries described in spec §3.
package model

import "time"

// Mapping is the persistent record binding a short code to a target URL.
// Identity is ShortCode; it is globally unique across non-tombstoned rows.
type Mapping struct {
	ShortCode      string     `json:"shortCode" db:"short_code"`
	LongURL        string     `json:"longUrl" db:"long_url"`
	LongURLHash    string     `json:"longUrlHash" db:"long_url_hash"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	UserID         *string    `json:"userId,omitempty" db:"user_id"`
	IsCustomAlias  bool       `json:"isCustomAlias" db:"is_custom_alias"`
	IsDeleted      bool       `json:"isDeleted" db:"is_deleted"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty" db:"last_accessed_at"`
	AccessCount    int64      `json:"accessCount" db:"access_count"`
}

// Expired reports whether the mapping's expiry has passed as of now.
func (m *Mapping) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// CounterRow is the singleton id_counter row: current-value, last-updated.
type CounterRow struct {
	CounterID    int       `db:"counter_id"`
	CurrentValue int64     `db:"current_value"`
	LastUpdated  time.Time `db:"last_updated"`
}

// CounterRange is the in-process reservation: start <= cursor <= end.
type CounterRange struct {
	Start  int64
	End    int64
	Cursor int64
}

// Exhausted reports whether the range has no IDs left to hand out.
func (r *CounterRange) Exhausted() bool {
	return r.Cursor >= r.End
}

// BreakerState enumerates the ID service's tri-state FSM per spec §3.
type BreakerState int

const (
	BreakerCounter BreakerState = iota
	BreakerHash
	BreakerUnavailable
)

func (s BreakerState) String() string {
	switch s {
	case BreakerCounter:
		return "counter"
	case BreakerHash:
		return "hash"
	case BreakerUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ClickEvent is the canonical click wire payload (spec §6).
type ClickEvent struct {
	EventID     string    `json:"eventId"`
	ShortCode   string    `json:"shortCode"`
	Timestamp   time.Time `json:"timestamp"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	Referrer    string    `json:"referrer,omitempty"`
	CountryCode string    `json:"countryCode,omitempty"`
	Region      string    `json:"region,omitempty"`
	City        string    `json:"city,omitempty"`
	DeviceType  string    `json:"deviceType,omitempty"`
	Browser     string    `json:"browser,omitempty"`
	OS          string    `json:"os,omitempty"`
}

// WindowKey identifies one tumbling aggregation window for one short code.
type WindowKey struct {
	ShortCode   string
	WindowStart time.Time
}

// WindowAggregate accumulates click counts for one WindowKey in memory.
type WindowAggregate struct {
	Key         WindowKey
	WindowSize  time.Duration
	ClickCount  int64
	UniqueIPs   map[string]struct{}
	Referrers   map[string]int64
	Countries   map[string]int64
	Devices     map[string]int64
	Browsers    map[string]int64
	LastEventAt time.Time
	SeenEvents  map[string]struct{} // event-id dedup within this window's lifetime
}

// WindowEnd returns the exclusive end of the tumbling window.
func (w *WindowAggregate) WindowEnd() time.Time {
	return w.Key.WindowStart.Add(w.WindowSize)
}

// NewWindowAggregate creates an empty aggregate for a key.
func NewWindowAggregate(key WindowKey, size time.Duration) *WindowAggregate {
	return &WindowAggregate{
		Key:        key,
		WindowSize: size,
		UniqueIPs:  make(map[string]struct{}),
		Referrers:  make(map[string]int64),
		Countries:  make(map[string]int64),
		Devices:    make(map[string]int64),
		Browsers:   make(map[string]int64),
		SeenEvents: make(map[string]struct{}),
	}
}

// Add folds one click event into the aggregate. Returns false if the
// event-id was already seen in this window (at-least-once redelivery).
func (w *WindowAggregate) Add(ev ClickEvent) bool {
	if _, dup := w.SeenEvents[ev.EventID]; dup {
		return false
	}
	w.SeenEvents[ev.EventID] = struct{}{}
	w.ClickCount++
	if ev.IPAddress != "" {
		w.UniqueIPs[ev.IPAddress] = struct{}{}
	}
	if ev.Referrer != "" {
		w.Referrers[ev.Referrer]++
	}
	if ev.CountryCode != "" {
		w.Countries[ev.CountryCode]++
	}
	if ev.DeviceType != "" {
		w.Devices[ev.DeviceType]++
	}
	if ev.Browser != "" {
		w.Browsers[ev.Browser]++
	}
	if ev.Timestamp.After(w.LastEventAt) {
		w.LastEventAt = ev.Timestamp
	}
	return true
}

// CountEntry is one ranked (name, count) pair used for top-N lists.
type CountEntry struct {
	Name  string `json:"name"`
	Count int64  `json:"clicks"`
}

// HourBucket is one hour's click count in the hourly distribution vector.
type HourBucket struct {
	Hour   int   `json:"hour"`
	Clicks int64 `json:"clicks"`
}

// DailySummary is the per-(shortCode, date) system-of-record analytics row.
type DailySummary struct {
	ShortCode        string       `json:"shortCode" db:"short_code"`
	Date             time.Time    `json:"date" db:"date"`
	TotalClicks      int64        `json:"totalClicks" db:"total_clicks"`
	UniqueVisitors   int64        `json:"uniqueVisitors" db:"unique_visitors"`
	TopCountries     []CountEntry `json:"topCountries" db:"top_countries"`
	TopReferrers     []CountEntry `json:"topReferrers" db:"top_referrers"`
	DeviceBreakdown  []CountEntry `json:"deviceBreakdown" db:"device_breakdown"`
	BrowserBreakdown []CountEntry `json:"browserBreakdown" db:"browser_breakdown"`
	HourlyDist       []HourBucket `json:"hourlyDistribution" db:"hourly_distribution"`
	PeakHour         int          `json:"peakHour" db:"peak_hour"`
	AvgClicksPerHour float64      `json:"avgClicksPerHour" db:"avg_clicks_per_hour"`
}
