package repository

import (
	"context"

	"github.com/olekzaw/traffic-watch/internal/models"
)

// IncidentRepository is the ephemeral incident snapshot store. Each
// aggregation cycle hands over a complete set via ReplaceAll; the store
// never merges or diffs against the previous cycle.
type IncidentRepository interface {
	ReplaceAll(ctx context.Context, incidents []models.Incident) error
	ListAll(ctx context.Context) ([]models.Incident, error)
	ListByCategory(ctx context.Context, cat models.Category) ([]models.Incident, error)
}
