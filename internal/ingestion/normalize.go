package ingestion

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/olekzaw/traffic-watch/internal/models"
	"github.com/olekzaw/traffic-watch/internal/observability"
)

// Normalizer classifies raw alerts into the incident taxonomy and derives
// incident fields. The clock and the random source are injectable so a
// cycle's output is reproducible in tests.
type Normalizer struct {
	clock      clockwork.Clock
	intn       func(n int) int
	defaultLat float64
	defaultLon float64
	metrics    *observability.Metrics
}

// NewNormalizer creates a Normalizer with the real clock and math/rand.
// defaultLat/defaultLon is the region center, substituted (and flagged)
// when an alert carries no coordinates.
func NewNormalizer(defaultLat, defaultLon float64, metrics *observability.Metrics) *Normalizer {
	return &Normalizer{
		clock:      clockwork.NewRealClock(),
		intn:       rand.Intn,
		defaultLat: defaultLat,
		defaultLon: defaultLon,
		metrics:    metrics,
	}
}

// SetClock swaps the time source. Pass nil to reset to real time.
func (n *Normalizer) SetClock(c clockwork.Clock) {
	if c == nil {
		n.clock = clockwork.NewRealClock()
		return
	}
	n.clock = c
}

// SetRand swaps the random source used for synthesized score fallbacks.
func (n *Normalizer) SetRand(intn func(n int) int) {
	n.intn = intn
}

// classify maps a raw alert onto the taxonomy, first match wins. Alerts
// matching neither rule are dropped entirely.
func classify(a wazeAlert) (models.Category, bool) {
	typ := strings.ToLower(a.Type)
	desc := strings.ToLower(a.ReportDescription)
	sub := strings.ToLower(a.Subtype)

	if strings.Contains(typ, "accident") ||
		strings.Contains(desc, "accident") ||
		strings.Contains(desc, "crash") ||
		strings.Contains(desc, "collision") {
		return models.CategoryAccident, true
	}

	if strings.Contains(typ, "hazard") &&
		(strings.Contains(sub, "vehicle") ||
			strings.Contains(sub, "stopped") ||
			strings.Contains(desc, "shoulder") ||
			strings.Contains(desc, "breakdown") ||
			strings.Contains(desc, "stopped") ||
			strings.Contains(desc, "vehicle on road")) {
		return models.CategoryShoulder, true
	}

	return "", false
}

func (n *Normalizer) incidentFromAlert(a wazeAlert, cat models.Category) models.Incident {
	now := n.clock.Now()
	lat, lon, approx := n.coordinates(a)
	reported := now
	if a.PubMillis > 0 {
		reported = time.UnixMilli(a.PubMillis)
	}

	inc := models.Incident{
		Category:            cat,
		Title:               firstNonEmpty(a.ReportDescription, a.Type, "Traffic Alert"),
		Description:         description(a),
		Latitude:            lat,
		Longitude:           lon,
		LocationApproximate: approx,
		Severity:            severity(a),
		Status:              status(a, now),
		ReportedTime:        reported,
		LastUpdated:         now,
		Reporter:            firstNonEmpty(a.ReporterNickname, a.ReportBy, "Anonymous"),
	}

	inc.ID = a.UUID
	if inc.ID == "" {
		inc.ID = fallbackID(cat, lat, lon, reported)
	}

	inc.Reliability = n.valueOr(a.Reliability, 10, 1)
	if a.Rating != nil {
		inc.Rating = *a.Rating
	} else {
		inc.Rating = n.valueOr(a.NThumbsUp, 5, 1)
	}
	inc.Confidence = n.valueOr(a.Confidence, 40, 60)

	return inc
}

func (n *Normalizer) coordinates(a wazeAlert) (lat, lon float64, approximate bool) {
	if a.Location != nil && a.Location.Y != nil && a.Location.X != nil {
		return *a.Location.Y, *a.Location.X, false
	}
	if a.Lat != nil && a.Lon != nil {
		return *a.Lat, *a.Lon, false
	}
	return n.defaultLat, n.defaultLon, true
}

func severity(a wazeAlert) models.Severity {
	desc := strings.ToLower(a.ReportDescription)
	switch {
	case (a.Confidence != nil && *a.Confidence >= 8) || strings.Contains(desc, "major"):
		return models.SeverityHigh
	case (a.Confidence != nil && *a.Confidence <= 3) || strings.Contains(desc, "minor"):
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

func status(a wazeAlert, now time.Time) models.Status {
	if a.EndTimeMillis > 0 && time.UnixMilli(a.EndTimeMillis).Before(now) {
		return models.StatusClearing
	}
	return models.StatusActive
}

func description(a wazeAlert) string {
	if a.AdditionalInfo != "" {
		return a.AdditionalInfo
	}
	if street := firstNonEmpty(a.Street, a.RoadName); street != "" {
		return "On " + street
	}
	return "Location details not available"
}

// fallbackID derives a stable identifier for alerts lacking an upstream
// uuid, so the same report maps to the same id across cycles.
func fallbackID(cat models.Category, lat, lon float64, reported time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%.3f|%.3f|%d", cat, lat, lon, reported.UnixMilli())
	return fmt.Sprintf("%016x", h.Sum64())
}

// valueOr passes the upstream score through, or synthesizes one in
// [floor, floor+span) when absent.
func (n *Normalizer) valueOr(v *int, span, floor int) int {
	if v != nil {
		return *v
	}
	return n.intn(span) + floor
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
