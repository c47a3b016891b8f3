package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/virtforge/placementd/internal/domain"
	"github.com/virtforge/placementd/internal/plans"
)

// Ensure PlanRepository implements plans.Repository
var _ plans.Repository = (*PlanRepository)(nil)

// PlanRepository provides database operations for placement plans.
// The per-host VM placements are stored as a JSONB payload.
type PlanRepository struct {
	pool *pgxpool.Pool
}

// NewPlanRepository creates a new plan repository.
func NewPlanRepository(pool *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{pool: pool}
}

// Create persists a new placement plan.
func (r *PlanRepository) Create(ctx context.Context, plan *domain.Plan) (*domain.Plan, error) {
	if plan.ID == "" {
		return nil, errors.New("plan ID is required")
	}

	hostsJSON, err := json.Marshal(plan.Hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize plan hosts: %w", err)
	}

	now := time.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	query := `
		INSERT INTO plans (id, status, committed_host, hosts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		plan.ID,
		string(plan.Status),
		plan.CommittedHost,
		hostsJSON,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}

	return plan.Clone(), nil
}

// Get retrieves a plan by ID.
func (r *PlanRepository) Get(ctx context.Context, id string) (*domain.Plan, error) {
	query := `
		SELECT id, status, committed_host, hosts, created_at, updated_at
		FROM plans
		WHERE id = $1
	`
	plan, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// Update replaces a stored plan.
func (r *PlanRepository) Update(ctx context.Context, plan *domain.Plan) (*domain.Plan, error) {
	hostsJSON, err := json.Marshal(plan.Hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize plan hosts: %w", err)
	}

	plan.UpdatedAt = time.Now()

	query := `
		UPDATE plans
		SET status = $2, committed_host = $3, hosts = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		plan.ID,
		string(plan.Status),
		plan.CommittedHost,
		hostsJSON,
		plan.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}

	return plan.Clone(), nil
}

// List returns stored plans, newest first. A limit of 0 returns all plans.
func (r *PlanRepository) List(ctx context.Context, limit int) ([]*domain.Plan, error) {
	query := `
		SELECT id, status, committed_host, hosts, created_at, updated_at
		FROM plans
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var result []*domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		result = append(result, plan)
	}
	return result, rows.Err()
}

// Delete removes a plan.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var plan domain.Plan
	var status string
	var hostsJSON []byte

	if err := row.Scan(
		&plan.ID,
		&status,
		&plan.CommittedHost,
		&hostsJSON,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	); err != nil {
		return nil, err
	}

	plan.Status = domain.PlanStatus(status)
	if len(hostsJSON) > 0 {
		if err := json.Unmarshal(hostsJSON, &plan.Hosts); err != nil {
			return nil, fmt.Errorf("failed to deserialize plan hosts: %w", err)
		}
	}
	return &plan, nil
}
