// Package plans coordinates the plan lifecycle: recommendation, commission,
// recovery, release, and provisioning of placement plans.
package plans

import (
	"context"

	"github.com/virtforge/placementd/internal/domain"
)

// Repository defines the interface for plan persistence.
type Repository interface {
	Create(ctx context.Context, plan *domain.Plan) (*domain.Plan, error)
	Get(ctx context.Context, id string) (*domain.Plan, error)
	Update(ctx context.Context, plan *domain.Plan) (*domain.Plan, error)
	List(ctx context.Context, limit int) ([]*domain.Plan, error)
	Delete(ctx context.Context, id string) error
}
