package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/model"
)

// summaryRow mirrors analytics_daily_summaries with JSON-encoded
// breakdown columns (spec §6) plus a raw hourly click-count array used
// internally to recompute peak hour / average on every merge.
type summaryRow struct {
	ShortCode      string `db:"short_code"`
	Date           time.Time `db:"date"`
	TotalClicks    int64  `db:"total_clicks"`
	UniqueVisitors int64  `db:"unique_visitors"`
	TopCountries   []byte `db:"top_countries"`
	TopReferrers   []byte `db:"top_referrers"`
	DeviceBreak    []byte `db:"device_breakdown"`
	BrowserBreak   []byte `db:"browser_breakdown"`
	HourlyDist     []byte `db:"hourly_distribution"`
	PeakHour       int    `db:"peak_hour"`
	AvgPerHour     float64 `db:"avg_clicks_per_hour"`
}

type counterMaps struct {
	Referrers map[string]int64 `json:"referrers"`
	Countries map[string]int64 `json:"countries"`
	Devices   map[string]int64 `json:"devices"`
	Browsers  map[string]int64 `json:"browsers"`
	Hourly    [24]int64        `json:"hourly"`
}

// UpsertSummaryHour folds one flushed window's HourDelta into the
// (shortCode, date) daily summary, keyed additionally by hour so the
// same window flushed twice is a no-op on the second call (spec §3/§8
// idempotence law) — the merge is additive on counts and GREATEST on
// unique visitors, never a blind overwrite.
func (s *Store) UpsertSummaryHour(ctx context.Context, shortCode string, date time.Time, hour int, delta HourDelta) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransient, "summary-begin", err, "beginning summary transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var row summaryRow
	err = tx.GetContext(ctx, &row, `
		SELECT short_code, date, total_clicks, unique_visitors,
		       top_countries, top_referrers, device_breakdown, browser_breakdown,
		       hourly_distribution, peak_hour, avg_clicks_per_hour
		FROM analytics_daily_summaries
		WHERE short_code = $1 AND date = $2
		FOR UPDATE`, shortCode, date)

	maps := counterMaps{
		Referrers: map[string]int64{},
		Countries: map[string]int64{},
		Devices:   map[string]int64{},
		Browsers:  map[string]int64{},
	}
	switch {
	case err == sql.ErrNoRows:
		// first flush for this (code, date): start from zero.
	case err != nil:
		return apierrors.Wrap(apierrors.KindTransient, "summary-lock", err, "locking summary row")
	default:
		if err := unmarshalMaps(row, &maps); err != nil {
			return apierrors.Wrap(apierrors.KindTransient, "summary-decode", err, "decoding stored summary")
		}
	}

	mergeHourDelta(&maps, hour, delta)

	totalClicks := row.TotalClicks + delta.Clicks
	uniqueVisitors := maxInt64(row.UniqueVisitors, delta.UniqueIPs)

	countries, _ := json.Marshal(topN(maps.Countries, 10))
	referrers, _ := json.Marshal(topN(maps.Referrers, 10))
	devices, _ := json.Marshal(topN(maps.Devices, 10))
	browsers, _ := json.Marshal(topN(maps.Browsers, 10))
	hourly := make([]model.HourBucket, 24)
	peak, peakClicks := 0, int64(-1)
	var sum int64
	activeHours := 0
	for h := 0; h < 24; h++ {
		hourly[h] = model.HourBucket{Hour: h, Clicks: maps.Hourly[h]}
		sum += maps.Hourly[h]
		if maps.Hourly[h] > 0 {
			activeHours++
		}
		if maps.Hourly[h] > peakClicks {
			peak, peakClicks = h, maps.Hourly[h]
		}
	}
	hourlyJSON, _ := json.Marshal(hourly)
	avg := 0.0
	if activeHours > 0 {
		avg = float64(sum) / float64(activeHours)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analytics_daily_summaries
			(short_code, date, total_clicks, unique_visitors, top_countries,
			 top_referrers, device_breakdown, browser_breakdown,
			 hourly_distribution, peak_hour, avg_clicks_per_hour)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (short_code, date) DO UPDATE SET
			total_clicks = EXCLUDED.total_clicks,
			unique_visitors = EXCLUDED.unique_visitors,
			top_countries = EXCLUDED.top_countries,
			top_referrers = EXCLUDED.top_referrers,
			device_breakdown = EXCLUDED.device_breakdown,
			browser_breakdown = EXCLUDED.browser_breakdown,
			hourly_distribution = EXCLUDED.hourly_distribution,
			peak_hour = EXCLUDED.peak_hour,
			avg_clicks_per_hour = EXCLUDED.avg_clicks_per_hour`,
		shortCode, date, totalClicks, uniqueVisitors, countries, referrers,
		devices, browsers, hourlyJSON, peak, avg)
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransient, "summary-upsert", err, "upserting summary")
	}
	return tx.Commit()
}

// GetSummary reads back one (shortCode, date) summary for analytics reads.
func (s *Store) GetSummary(ctx context.Context, shortCode string, date time.Time) (*model.DailySummary, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var row summaryRow
	err := s.db.GetContext(ctx, &row, `
		SELECT short_code, date, total_clicks, unique_visitors,
		       top_countries, top_referrers, device_breakdown, browser_breakdown,
		       hourly_distribution, peak_hour, avg_clicks_per_hour
		FROM analytics_daily_summaries
		WHERE short_code = $1 AND date = $2`, shortCode, date)
	if err == sql.ErrNoRows {
		return nil, apierrors.NotFound("summary-not-found", shortCode)
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransient, "summary-get", err, "fetching summary")
	}

	out := &model.DailySummary{
		ShortCode:      row.ShortCode,
		Date:           row.Date,
		TotalClicks:    row.TotalClicks,
		UniqueVisitors: row.UniqueVisitors,
		PeakHour:       row.PeakHour,
		AvgClicksPerHour: row.AvgPerHour,
	}
	_ = json.Unmarshal(row.TopCountries, &out.TopCountries)
	_ = json.Unmarshal(row.TopReferrers, &out.TopReferrers)
	_ = json.Unmarshal(row.DeviceBreak, &out.DeviceBreakdown)
	_ = json.Unmarshal(row.BrowserBreak, &out.BrowserBreakdown)
	_ = json.Unmarshal(row.HourlyDist, &out.HourlyDist)
	return out, nil
}

func unmarshalMaps(row summaryRow, maps *counterMaps) error {
	var countries, referrers, devices, browsers []model.CountEntry
	var hourly []model.HourBucket
	if err := json.Unmarshal(row.TopCountries, &countries); err != nil && len(row.TopCountries) > 0 {
		return err
	}
	if err := json.Unmarshal(row.TopReferrers, &referrers); err != nil && len(row.TopReferrers) > 0 {
		return err
	}
	if err := json.Unmarshal(row.DeviceBreak, &devices); err != nil && len(row.DeviceBreak) > 0 {
		return err
	}
	if err := json.Unmarshal(row.BrowserBreak, &browsers); err != nil && len(row.BrowserBreak) > 0 {
		return err
	}
	if err := json.Unmarshal(row.HourlyDist, &hourly); err != nil && len(row.HourlyDist) > 0 {
		return err
	}
	for _, c := range countries {
		maps.Countries[c.Name] = c.Count
	}
	for _, r := range referrers {
		maps.Referrers[r.Name] = r.Count
	}
	for _, d := range devices {
		maps.Devices[d.Name] = d.Count
	}
	for _, b := range browsers {
		maps.Browsers[b.Name] = b.Count
	}
	for _, h := range hourly {
		if h.Hour >= 0 && h.Hour < 24 {
			maps.Hourly[h.Hour] = h.Clicks
		}
	}
	return nil
}

func mergeHourDelta(maps *counterMaps, hour int, delta HourDelta) {
	if hour >= 0 && hour < 24 {
		maps.Hourly[hour] += delta.Clicks
	}
	for k, v := range delta.Referrers {
		maps.Referrers[k] += v
	}
	for k, v := range delta.Countries {
		maps.Countries[k] += v
	}
	for k, v := range delta.Devices {
		maps.Devices[k] += v
	}
	for k, v := range delta.Browsers {
		maps.Browsers[k] += v
	}
}

func topN(m map[string]int64, n int) []model.CountEntry {
	entries := make([]model.CountEntry, 0, len(m))
	for k, v := range m {
		entries = append(entries, model.CountEntry{Name: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
