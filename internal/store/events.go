package store

import (
	"context"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/model"
)

// InsertEvent persists one raw click event. Raw-event retention is
// operator-discretionary (spec §6); callers treat a failure here as
// degraded-dependency, never as a reason to fail ingestion.
func (s *Store) InsertEvent(ctx context.Context, ev model.ClickEvent) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_events
			(event_id, short_code, clicked_at, ip_address, user_agent, referrer,
			 country_code, region, city, device_type, browser, os)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.ShortCode, ev.Timestamp, nullable(ev.IPAddress), nullable(ev.UserAgent),
		nullable(ev.Referrer), nullable(ev.CountryCode), nullable(ev.Region), nullable(ev.City),
		nullable(ev.DeviceType), nullable(ev.Browser), nullable(ev.OS))
	if err != nil {
		return apierrors.Wrap(apierrors.KindDegradedDependency, "event-insert", err, "inserting raw event")
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
