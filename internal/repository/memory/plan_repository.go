// Package memory provides in-memory repository implementations for development and testing.
// These repositories store data in memory and are not persistent across restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/virtforge/placementd/internal/domain"
	"github.com/virtforge/placementd/internal/plans"
)

// Ensure PlanRepository implements plans.Repository
var _ plans.Repository = (*PlanRepository)(nil)

// PlanRepository is an in-memory implementation of the plan repository.
// It's useful for development and testing without requiring a database.
type PlanRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.Plan
}

// NewPlanRepository creates a new in-memory plan repository.
func NewPlanRepository() *PlanRepository {
	return &PlanRepository{
		data: make(map[string]*domain.Plan),
	}
}

// Create stores a new placement plan.
func (r *PlanRepository) Create(ctx context.Context, plan *domain.Plan) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if _, exists := r.data[plan.ID]; exists {
		return nil, domain.ErrAlreadyExists
	}

	now := time.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	// Clone to avoid external mutations
	stored := plan.Clone()
	r.data[stored.ID] = stored
	return stored.Clone(), nil
}

// Get retrieves a plan by ID.
func (r *PlanRepository) Get(ctx context.Context, id string) (*domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plan, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return plan.Clone(), nil
}

// Update replaces a stored plan.
func (r *PlanRepository) Update(ctx context.Context, plan *domain.Plan) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[plan.ID]; !ok {
		return nil, domain.ErrNotFound
	}

	plan.UpdatedAt = time.Now()
	stored := plan.Clone()
	r.data[stored.ID] = stored
	return stored.Clone(), nil
}

// List returns stored plans, newest first. A limit of 0 returns all plans.
func (r *PlanRepository) List(ctx context.Context, limit int) ([]*domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Plan, 0, len(r.data))
	for _, plan := range r.data {
		result = append(result, plan.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Delete removes a plan.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.data, id)
	return nil
}
