package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/olekzaw/traffic-watch/internal/config"
	"github.com/olekzaw/traffic-watch/internal/models"
	"github.com/olekzaw/traffic-watch/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockIncidentRepo implements repository.IncidentRepository and records
// whether two ReplaceAll calls ever overlapped.
type mockIncidentRepo struct {
	mu           sync.Mutex
	incidents    []models.Incident
	replaceCount atomic.Int64
	writers      atomic.Int32
	overlapped   atomic.Bool
}

func (m *mockIncidentRepo) ReplaceAll(ctx context.Context, incidents []models.Incident) error {
	if m.writers.Add(1) > 1 {
		m.overlapped.Store(true)
	}
	defer m.writers.Add(-1)

	m.mu.Lock()
	m.incidents = append([]models.Incident(nil), incidents...)
	m.mu.Unlock()
	m.replaceCount.Add(1)
	return nil
}

func (m *mockIncidentRepo) ListAll(ctx context.Context) ([]models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Incident(nil), m.incidents...), nil
}

func (m *mockIncidentRepo) ListByCategory(ctx context.Context, cat models.Category) ([]models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Incident
	for _, inc := range m.incidents {
		if inc.Category == cat {
			out = append(out, inc)
		}
	}
	return out, nil
}

func newTestConfig(pollEnabled bool) *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			PollEnabled:    pollEnabled,
			PollInterval:   time.Minute,
			RequestTimeout: time.Second,
		},
		Region: config.RegionConfig{
			Bottom:   52.1397,
			Left:     20.8662,
			Top:      52.3197,
			Right:    21.1582,
			GridSize: 2,
		},
		Queue: config.QueueConfig{
			BufferSize: 16,
		},
	}
}

func newTestManager(serverURL string, pollEnabled bool) (*Manager, *mockIncidentRepo) {
	cfg := newTestConfig(pollEnabled)
	metrics := observability.NewMetricsForTesting()
	client := NewClient(serverURL, cfg.Source.RequestTimeout)
	norm := NewNormalizer(52.2297, 21.0122, metrics)
	repo := &mockIncidentRepo{}
	return NewManager(cfg, client, norm, repo, metrics), repo
}

func TestManager_StartStop(t *testing.T) {
	mgr, _ := newTestManager("http://localhost:0", false)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	cancel()
	mgr.Stop()
}

func TestManager_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every tile reports the same alert; the cycle must dedup it.
		w.Write([]byte(`{"alerts":[{"uuid":"abc-123","type":"ACCIDENT","reportDescription":"crash","confidence":9,"reliability":8,"rating":4,"pubMillis":1767250800000,"location":{"x":21.01,"y":52.23}}]}`))
	}))
	defer server.Close()

	mgr, repo := newTestManager(server.URL, false)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	resp, err := mgr.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if len(resp.Incidents) != 1 {
		t.Fatalf("expected 1 deduplicated incident across 4 tiles, got %d", len(resp.Incidents))
	}
	if resp.Incidents[0].ID != "abc-123" {
		t.Errorf("unexpected incident id %q", resp.Incidents[0].ID)
	}
	if resp.Incidents[0].Severity != models.SeverityHigh {
		t.Errorf("confidence 9 should map to High severity, got %s", resp.Incidents[0].Severity)
	}
	if resp.Stats.TotalAccidents != 1 || resp.Stats.CarsOnShoulder != 0 {
		t.Errorf("unexpected stats: %+v", resp.Stats)
	}
	if resp.Stats.TilesSucceeded != 4 || resp.Stats.TilesTotal != 4 {
		t.Errorf("expected 4/4 tiles, got %d/%d", resp.Stats.TilesSucceeded, resp.Stats.TilesTotal)
	}

	stored, _ := repo.ListAll(ctx)
	if len(stored) != 1 {
		t.Errorf("expected the store to hold the snapshot, got %d incidents", len(stored))
	}

	cancel()
	mgr.Stop()
}

func TestManager_RefreshUpstreamDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	mgr, repo := newTestManager(server.URL, false)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	_, err := mgr.Refresh(ctx)
	if err == nil {
		t.Fatal("expected error when every tile fails")
	}
	if err != ErrAllTilesFailed {
		t.Errorf("expected ErrAllTilesFailed, got %v", err)
	}
	if repo.replaceCount.Load() != 0 {
		t.Errorf("store must not be touched on whole-cycle failure, got %d writes", repo.replaceCount.Load())
	}

	cancel()
	mgr.Stop()
}

func TestManager_ConcurrentRefreshSingleWriter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"alerts":[{"uuid":"a1","type":"ACCIDENT"}]}`))
	}))
	defer server.Close()

	mgr, repo := newTestManager(server.URL, false)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Refresh(ctx); err != nil {
				t.Errorf("concurrent Refresh failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if repo.overlapped.Load() {
		t.Error("two cycles replaced the store concurrently")
	}
	if repo.replaceCount.Load() != 8 {
		t.Errorf("expected 8 store replacements, got %d", repo.replaceCount.Load())
	}

	cancel()
	mgr.Stop()
}

func TestManager_PollerRunsInitialCycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"alerts":[]}`))
	}))
	defer server.Close()

	mgr, repo := newTestManager(server.URL, true)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	deadline := time.After(2 * time.Second)
	for repo.replaceCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("poller never ran an initial cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	mgr.Stop()
}
