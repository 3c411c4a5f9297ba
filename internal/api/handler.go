package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olekzaw/traffic-watch/internal/config"
	"github.com/olekzaw/traffic-watch/internal/ingestion"
	"github.com/olekzaw/traffic-watch/internal/models"
	"github.com/olekzaw/traffic-watch/internal/repository"
)

// Refresher runs one aggregation cycle on demand.
type Refresher interface {
	Refresh(ctx context.Context) (models.FeedResponse, error)
}

type Handler struct {
	repo      repository.IncidentRepository
	refresher Refresher
	clock     clockwork.Clock
}

func NewHandler(repo repository.IncidentRepository, refresher Refresher) *Handler {
	return &Handler{
		repo:      repo,
		refresher: refresher,
		clock:     clockwork.NewRealClock(),
	}
}

// RegisterRoutes wires the incident routes behind their rate buckets.
// Health and metrics stay unlimited so probes and scrapes never see 429.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiCfg config.APIConfig) {
	fresh, stored := PerRouteLimits(apiCfg)
	r.GET("/api/incidents", fresh, h.getIncidents)
	r.GET("/api/incidents/stored", stored, h.getStoredIncidents)
	r.GET("/api/incidents/geojson", stored, h.getIncidentsGeoJSON)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// getIncidents runs a fresh aggregation cycle and returns its result. The
// store is replaced as a side effect. Only a whole-cycle upstream failure
// produces an error payload; partial tile failure is invisible here.
func (h *Handler) getIncidents(c *gin.Context) {
	resp, err := h.refresher.Refresh(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ingestion.ErrAllTilesFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error":   "Failed to fetch incidents",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getStoredIncidents serves the last snapshot without refetching upstream.
// Stats are recomputed from what is stored.
func (h *Handler) getStoredIncidents(c *gin.Context) {
	var (
		incidents []models.Incident
		err       error
	)
	if t := c.Query("type"); t != "" {
		cat, ok := models.ParseCategory(t)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown incident type: " + t})
			return
		}
		incidents, err = h.repo.ListByCategory(c.Request.Context(), cat)
	} else {
		incidents, err = h.repo.ListAll(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stored incidents"})
		return
	}

	stats := models.DashboardStats{
		LastUpdated: h.clock.Now(),
		APIStatus:   models.APIStatusOnline,
	}
	for _, inc := range incidents {
		switch inc.Category {
		case models.CategoryAccident:
			stats.TotalAccidents++
		case models.CategoryShoulder:
			stats.CarsOnShoulder++
		}
	}

	c.JSON(http.StatusOK, models.FeedResponse{Incidents: incidents, Stats: stats})
}

func (h *Handler) getIncidentsGeoJSON(c *gin.Context) {
	incidents, err := h.repo.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stored incidents"})
		return
	}

	fc := toGeoJSON(incidents)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
