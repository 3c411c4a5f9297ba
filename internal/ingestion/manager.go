package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/olekzaw/traffic-watch/internal/config"
	"github.com/olekzaw/traffic-watch/internal/models"
	"github.com/olekzaw/traffic-watch/internal/observability"
	"github.com/olekzaw/traffic-watch/internal/repository"
	"github.com/olekzaw/traffic-watch/internal/worker"
)

// Manager runs aggregation cycles. The scheduled poller and manual
// refreshes both funnel through a single-worker queue, so the store is
// replaced by exactly one cycle at a time even when a manual refresh
// lands during a scheduled one.
type Manager struct {
	cfg     *config.Config
	client  *Client
	norm    *Normalizer
	repo    repository.IncidentRepository
	metrics *observability.Metrics
	tiles   []Tile
	queue   *worker.Queue
	wg      sync.WaitGroup
}

func NewManager(cfg *config.Config, client *Client, norm *Normalizer, repo repository.IncidentRepository, metrics *observability.Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		client:  client,
		norm:    norm,
		repo:    repo,
		metrics: metrics,
		tiles:   SplitRegion(cfg.Region.Bottom, cfg.Region.Left, cfg.Region.Top, cfg.Region.Right, cfg.Region.GridSize),
	}
}

type cycleJob struct {
	ctx   context.Context
	reply chan cycleResult
}

type cycleResult struct {
	resp models.FeedResponse
	err  error
}

func (m *Manager) Start(ctx context.Context) {
	processor := func(_ context.Context, job worker.Job) error {
		cj := job.(*cycleJob)
		resp, err := m.runCycle(cj.ctx)
		cj.reply <- cycleResult{resp: resp, err: err}
		return err
	}

	// One worker: store replacement is single-writer.
	m.queue = worker.NewQueue(1, m.cfg.Queue.BufferSize, processor)
	m.queue.Start(ctx)

	if m.cfg.Source.PollEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx)
	}
}

func (m *Manager) runPoller(ctx context.Context) {
	defer m.wg.Done()
	slog.Info("starting poller", "interval", m.cfg.Source.PollInterval, "tiles", len(m.tiles))

	ticker := time.NewTicker(m.cfg.Source.PollInterval)
	defer ticker.Stop()

	m.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down")
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
		slog.Error("scheduled cycle failed", "error", err)
	}
}

// Refresh runs one fetch-normalize-aggregate-store cycle and returns the
// fresh result. Concurrent callers are serialized through the cycle queue.
func (m *Manager) Refresh(ctx context.Context) (models.FeedResponse, error) {
	job := &cycleJob{ctx: ctx, reply: make(chan cycleResult, 1)}
	if err := m.queue.Submit(ctx, job); err != nil {
		return models.FeedResponse{}, err
	}

	select {
	case res := <-job.reply:
		return res.resp, res.err
	case <-ctx.Done():
		return models.FeedResponse{}, ctx.Err()
	}
}

func (m *Manager) runCycle(ctx context.Context) (models.FeedResponse, error) {
	start := time.Now()

	results := m.client.FetchAll(ctx, m.tiles)
	resp, err := m.norm.Aggregate(results)
	if err != nil {
		m.metrics.CyclesTotal.WithLabelValues("upstream_down").Inc()
		return models.FeedResponse{}, err
	}

	// The store is an ephemeral snapshot cache; a failed replace must not
	// discard a successfully aggregated result.
	if err := m.repo.ReplaceAll(ctx, resp.Incidents); err != nil {
		slog.Error("error replacing stored incidents", "error", err)
	}

	m.metrics.CyclesTotal.WithLabelValues("ok").Inc()
	m.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	m.metrics.TilesSucceeded.Set(float64(resp.Stats.TilesSucceeded))
	m.metrics.IncidentsStored.WithLabelValues(string(models.CategoryAccident)).Set(float64(resp.Stats.TotalAccidents))
	m.metrics.IncidentsStored.WithLabelValues(string(models.CategoryShoulder)).Set(float64(resp.Stats.CarsOnShoulder))

	slog.Info("aggregation cycle complete",
		"incidents", len(resp.Incidents),
		"accidents", resp.Stats.TotalAccidents,
		"shoulder", resp.Stats.CarsOnShoulder,
		"tiles_ok", resp.Stats.TilesSucceeded,
		"tiles_total", resp.Stats.TilesTotal,
	)
	return resp, nil
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.queue.Stop()
	slog.Info("ingestion manager stopped")
}
