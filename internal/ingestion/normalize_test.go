package ingestion

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olekzaw/traffic-watch/internal/models"
	"github.com/olekzaw/traffic-watch/internal/observability"
)

const (
	testCenterLat = 52.2297
	testCenterLon = 21.0122
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(testCenterLat, testCenterLon, observability.NewMetricsForTesting())
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		alert wazeAlert
		want  models.Category
		keep  bool
	}{
		{
			name:  "accident type alone is sufficient",
			alert: wazeAlert{Type: "ACCIDENT"},
			want:  models.CategoryAccident,
			keep:  true,
		},
		{
			name:  "crash in description",
			alert: wazeAlert{Type: "JAM", ReportDescription: "Multi-car crash blocking two lanes"},
			want:  models.CategoryAccident,
			keep:  true,
		},
		{
			name:  "collision in description",
			alert: wazeAlert{Type: "HAZARD", ReportDescription: "Collision at the exit ramp"},
			want:  models.CategoryAccident,
			keep:  true,
		},
		{
			name:  "hazard with stopped-car subtype",
			alert: wazeAlert{Type: "HAZARD", Subtype: "HAZARD_ON_SHOULDER_CAR_STOPPED"},
			want:  models.CategoryShoulder,
			keep:  true,
		},
		{
			name:  "hazard with vehicle subtype",
			alert: wazeAlert{Type: "HAZARD", Subtype: "HAZARD_ON_ROAD_VEHICLE"},
			want:  models.CategoryShoulder,
			keep:  true,
		},
		{
			name:  "hazard with breakdown description",
			alert: wazeAlert{Type: "HAZARD", ReportDescription: "Breakdown on the shoulder"},
			want:  models.CategoryShoulder,
			keep:  true,
		},
		{
			name:  "accident rule wins over shoulder hints",
			alert: wazeAlert{Type: "HAZARD", Subtype: "HAZARD_ON_SHOULDER_CAR_STOPPED", ReportDescription: "crash into barrier"},
			want:  models.CategoryAccident,
			keep:  true,
		},
		{
			name:  "jam is dropped",
			alert: wazeAlert{Type: "JAM", ReportDescription: "Heavy traffic"},
			keep:  false,
		},
		{
			name:  "hazard without vehicle hints is dropped",
			alert: wazeAlert{Type: "HAZARD", Subtype: "HAZARD_WEATHER_FOG"},
			keep:  false,
		},
		{
			name:  "road closed is dropped",
			alert: wazeAlert{Type: "ROAD_CLOSED"},
			keep:  false,
		},
		{
			name:  "empty alert is dropped",
			alert: wazeAlert{},
			keep:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, keep := classify(tc.alert)
			require.Equal(t, tc.keep, keep)
			if tc.keep {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	cases := []struct {
		name  string
		alert wazeAlert
		want  models.Severity
	}{
		{"confidence 9", wazeAlert{Confidence: intPtr(9)}, models.SeverityHigh},
		{"confidence 8 boundary", wazeAlert{Confidence: intPtr(8)}, models.SeverityHigh},
		{"confidence 2", wazeAlert{Confidence: intPtr(2)}, models.SeverityLow},
		{"confidence 3 boundary", wazeAlert{Confidence: intPtr(3)}, models.SeverityLow},
		{"confidence 5 no keywords", wazeAlert{Confidence: intPtr(5)}, models.SeverityMedium},
		{"major keyword without confidence", wazeAlert{ReportDescription: "Major accident"}, models.SeverityHigh},
		{"minor keyword without confidence", wazeAlert{ReportDescription: "minor fender bender"}, models.SeverityLow},
		{"absent confidence matches neither threshold", wazeAlert{}, models.SeverityMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, severity(tc.alert))
		})
	}
}

func TestStatus(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, models.StatusClearing, status(wazeAlert{EndTimeMillis: now.Add(-time.Minute).UnixMilli()}, now))
	assert.Equal(t, models.StatusActive, status(wazeAlert{EndTimeMillis: now.Add(time.Hour).UnixMilli()}, now))
	assert.Equal(t, models.StatusActive, status(wazeAlert{}, now))
}

func TestIncidentFromAlert_Fallbacks(t *testing.T) {
	n := newTestNormalizer()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	n.SetClock(clockwork.NewFakeClockAt(now))
	n.SetRand(func(int) int { return 0 })

	inc := n.incidentFromAlert(wazeAlert{Type: "ACCIDENT"}, models.CategoryAccident)

	assert.Equal(t, "ACCIDENT", inc.Title)
	assert.Equal(t, "Location details not available", inc.Description)
	assert.Equal(t, "Anonymous", inc.Reporter)
	assert.Equal(t, testCenterLat, inc.Latitude)
	assert.Equal(t, testCenterLon, inc.Longitude)
	assert.True(t, inc.LocationApproximate, "default coordinates must be flagged")
	assert.True(t, inc.ReportedTime.Equal(now), "missing pubMillis falls back to processing time")
	assert.True(t, inc.LastUpdated.Equal(now))

	// Synthesized lower bounds with a zero-returning random source.
	assert.Equal(t, 1, inc.Reliability)
	assert.Equal(t, 1, inc.Rating)
	assert.Equal(t, 60, inc.Confidence)
}

func TestIncidentFromAlert_Passthrough(t *testing.T) {
	n := newTestNormalizer()

	reported := time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC)
	alert := wazeAlert{
		UUID:              "abc-123",
		Type:              "ACCIDENT",
		ReportDescription: "Rear-end collision",
		AdditionalInfo:    "Right lane blocked",
		Location:          &wazeLocation{X: floatPtr(21.01), Y: floatPtr(52.23)},
		PubMillis:         reported.UnixMilli(),
		Confidence:        intPtr(7),
		Reliability:       intPtr(9),
		Rating:            intPtr(4),
		ReporterNickname:  "wazer42",
	}

	inc := n.incidentFromAlert(alert, models.CategoryAccident)

	assert.Equal(t, "abc-123", inc.ID)
	assert.Equal(t, "Rear-end collision", inc.Title)
	assert.Equal(t, "Right lane blocked", inc.Description)
	assert.Equal(t, 52.23, inc.Latitude)
	assert.Equal(t, 21.01, inc.Longitude)
	assert.False(t, inc.LocationApproximate)
	assert.True(t, inc.ReportedTime.Equal(reported))
	assert.Equal(t, 9, inc.Reliability)
	assert.Equal(t, 4, inc.Rating)
	assert.Equal(t, 7, inc.Confidence)
	assert.Equal(t, "wazer42", inc.Reporter)
}

func TestIncidentFromAlert_StreetDescription(t *testing.T) {
	n := newTestNormalizer()

	inc := n.incidentFromAlert(wazeAlert{Type: "ACCIDENT", Street: "Marszałkowska"}, models.CategoryAccident)
	assert.Equal(t, "On Marszałkowska", inc.Description)

	inc = n.incidentFromAlert(wazeAlert{Type: "ACCIDENT", RoadName: "S8"}, models.CategoryAccident)
	assert.Equal(t, "On S8", inc.Description)
}

func TestIncidentFromAlert_ThumbsUpRating(t *testing.T) {
	n := newTestNormalizer()

	inc := n.incidentFromAlert(wazeAlert{Type: "ACCIDENT", NThumbsUp: intPtr(3)}, models.CategoryAccident)
	assert.Equal(t, 3, inc.Rating)
}

func TestFallbackID_StableAcrossCycles(t *testing.T) {
	alert := wazeAlert{
		Type:      "ACCIDENT",
		PubMillis: time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC).UnixMilli(),
		Location:  &wazeLocation{X: floatPtr(21.0122), Y: floatPtr(52.2297)},
	}

	first := newTestNormalizer().incidentFromAlert(alert, models.CategoryAccident)
	second := newTestNormalizer().incidentFromAlert(alert, models.CategoryAccident)

	require.NotEmpty(t, first.ID)
	assert.Equal(t, first.ID, second.ID, "synthesized ids must be stable across cycles")
}
