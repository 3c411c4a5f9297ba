package ingestion

import (
	"errors"
	"log/slog"

	"github.com/olekzaw/traffic-watch/internal/models"
)

// ErrAllTilesFailed is returned when no tile fetch succeeded. It is the
// only pipeline error surfaced to the serving layer; per-tile failures
// just reduce the contributing tile count.
var ErrAllTilesFailed = errors.New("all tiles failed to fetch")

// Aggregate merges tile outcomes into one deduplicated incident set with
// dashboard stats. Tiles are processed in tile-list order, and the first
// tile to report an id wins; later duplicates are dropped without field
// merging. An unparseable body is a soft failure: logged and skipped.
func (n *Normalizer) Aggregate(results []TileResult) (models.FeedResponse, error) {
	fetched := 0
	contributed := 0
	incidents := make([]models.Incident, 0)
	seen := make(map[string]struct{})

	for i, r := range results {
		if r.Err != nil {
			slog.Warn("tile fetch failed", "tile", i, "error", r.Err)
			n.metrics.TileFetches.WithLabelValues("network_error").Inc()
			continue
		}
		fetched++

		alerts, err := parseAlerts(r.Body)
		if err != nil {
			slog.Warn("tile body unparseable", "tile", i, "error", err)
			n.metrics.TileFetches.WithLabelValues("parse_error").Inc()
			continue
		}
		contributed++
		// With this placement the success series matches TilesSucceeded:
		// both count tiles whose body fetched and parsed.
		n.metrics.TileFetches.WithLabelValues("success").Inc()

		for _, a := range alerts {
			cat, ok := classify(a)
			if !ok {
				n.metrics.AlertsDiscarded.Inc()
				continue
			}
			inc := n.incidentFromAlert(a, cat)
			if _, dup := seen[inc.ID]; dup {
				continue
			}
			seen[inc.ID] = struct{}{}
			incidents = append(incidents, inc)
		}
	}

	if fetched == 0 {
		return models.FeedResponse{}, ErrAllTilesFailed
	}

	stats := models.DashboardStats{
		LastUpdated:    n.clock.Now(),
		APIStatus:      models.APIStatusOnline,
		TilesSucceeded: contributed,
		TilesTotal:     len(results),
	}
	for _, inc := range incidents {
		switch inc.Category {
		case models.CategoryAccident:
			stats.TotalAccidents++
		case models.CategoryShoulder:
			stats.CarsOnShoulder++
		}
	}

	return models.FeedResponse{Incidents: incidents, Stats: stats}, nil
}
