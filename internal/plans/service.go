package plans

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
	"github.com/virtforge/placementd/internal/planner"
	"github.com/virtforge/placementd/internal/provision"
)

// Provisioner drives volume creation for a committed plan.
type Provisioner interface {
	CreateVolumes(ctx context.Context, vms []*domain.VM) *provision.Result
	DeleteVolumes(ctx context.Context, vms []*domain.VM) *provision.Result
}

// Service owns the plan lifecycle against one planning session. A plan is
// pending while every candidate host holds tentative reservations; exactly
// one host is commissioned and the rest recovered, after which the plan can
// be provisioned and eventually released.
type Service struct {
	session     *planner.Session
	repo        Repository
	provisioner Provisioner
	logger      *zap.Logger
}

// NewService creates the plan lifecycle service.
func NewService(session *planner.Session, repo Repository, provisioner Provisioner, logger *zap.Logger) *Service {
	return &Service{
		session:     session,
		repo:        repo,
		provisioner: provisioner,
		logger:      logger.With(zap.String("component", "plans")),
	}
}

// Session exposes the underlying planning session for capacity queries.
func (s *Service) Session() *planner.Session {
	return s.session
}

// ReplaceSession swaps in a freshly fetched capacity snapshot. Pending plans
// from the previous session hold reservations that died with it; the caller
// is expected to re-plan.
func (s *Service) ReplaceSession(session *planner.Session) {
	s.session = session
	s.logger.Info("Planning session replaced")
}

// CreatePlan runs capacity query plus recommendation for the batch and
// persists the resulting tentative plan. Hosts that cannot fit the whole
// batch are silently dropped; if no host can, ErrInsufficientCapacity is
// returned.
func (s *Service) CreatePlan(ctx context.Context, hostNames []string, vms []*domain.VM) (*domain.Plan, error) {
	if len(vms) == 0 {
		return nil, fmt.Errorf("empty VM batch: %w", domain.ErrInvalidArgument)
	}
	if len(hostNames) == 0 {
		for _, hc := range s.session.Capacity() {
			hostNames = append(hostNames, hc.Name)
		}
	}

	requiredLocal, requiredShared := planner.BatchRequirements(vms)
	eligible := s.session.QueryCapacity(hostNames, requiredLocal, requiredShared)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no host passes the capacity pre-filter: %w", domain.ErrInsufficientCapacity)
	}

	solution, err := s.session.Recommend(eligible, vms)
	if err != nil {
		return nil, err
	}
	if len(solution) == 0 {
		return nil, fmt.Errorf("no host fits the batch: %w", domain.ErrInsufficientCapacity)
	}

	plan := &domain.Plan{
		ID:     uuid.New().String(),
		Status: domain.PlanStatusPending,
		Hosts:  solution,
	}
	stored, err := s.repo.Create(ctx, plan)
	if err != nil {
		// Persistence failed; do not leak the tentative reservations.
		for host, placed := range solution {
			if _, rerr := s.session.Recover(host, placed); rerr != nil {
				s.logger.Warn("Failed to recover after store error", zap.String("host", host), zap.Error(rerr))
			}
		}
		return nil, fmt.Errorf("failed to store plan: %w", err)
	}

	s.logger.Info("Plan created",
		zap.String("plan_id", stored.ID),
		zap.Int("hosts", len(solution)),
		zap.Int("vms", len(vms)),
	)
	return stored, nil
}

// Commission accepts one host's plan: its reservations become durable and
// every other candidate host's tentative plan is recovered.
func (s *Service) Commission(ctx context.Context, planID, hostName string) (*domain.Plan, error) {
	plan, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != domain.PlanStatusPending {
		return nil, fmt.Errorf("plan %s is %s, not pending: %w", planID, plan.Status, domain.ErrConflict)
	}
	accepted, ok := plan.Hosts[hostName]
	if !ok {
		return nil, fmt.Errorf("plan %s has no placement for host %q: %w", planID, hostName, domain.ErrNotFound)
	}

	if _, err := s.session.Commission(hostName, accepted); err != nil {
		return nil, err
	}
	for host, placed := range plan.Hosts {
		if host == hostName {
			continue
		}
		if _, err := s.session.Recover(host, placed); err != nil {
			s.logger.Warn("Failed to recover rejected host plan",
				zap.String("plan_id", planID),
				zap.String("host", host),
				zap.Error(err),
			)
		}
	}

	plan.Status = domain.PlanStatusCommitted
	plan.CommittedHost = hostName
	return s.repo.Update(ctx, plan)
}

// Recover abandons a pending plan, unwinding the tentative reservations on
// every candidate host.
func (s *Service) Recover(ctx context.Context, planID string) (*domain.Plan, error) {
	plan, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != domain.PlanStatusPending {
		return nil, fmt.Errorf("plan %s is %s, not pending: %w", planID, plan.Status, domain.ErrConflict)
	}

	for host, placed := range plan.Hosts {
		if _, err := s.session.Recover(host, placed); err != nil {
			s.logger.Warn("Failed to recover host plan",
				zap.String("plan_id", planID),
				zap.String("host", host),
				zap.Error(err),
			)
		}
	}

	plan.Status = domain.PlanStatusRecovered
	return s.repo.Update(ctx, plan)
}

// Provision creates the committed host's volumes on the hypervisor. The
// result is returned to the caller even on failure; the plan only advances
// to provisioned when the whole batch succeeded.
func (s *Service) Provision(ctx context.Context, planID string) (*domain.Plan, *provision.Result, error) {
	plan, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	if plan.Status != domain.PlanStatusCommitted {
		return nil, nil, fmt.Errorf("plan %s is %s, not committed: %w", planID, plan.Status, domain.ErrConflict)
	}
	if s.provisioner == nil {
		return nil, nil, fmt.Errorf("no hypervisor connection: %w", domain.ErrProvisioningFailed)
	}

	result := s.provisioner.CreateVolumes(ctx, plan.Hosts[plan.CommittedHost])
	if result.Failed() {
		s.logger.Error("Provisioning failed",
			zap.String("plan_id", planID),
			zap.String("host", plan.CommittedHost),
			zap.String("message", result.Message),
		)
		return plan, result, nil
	}

	plan.Status = domain.PlanStatusProvisioned
	updated, err := s.repo.Update(ctx, plan)
	if err != nil {
		return plan, result, err
	}
	return updated, result, nil
}

// Release frees a committed plan when its VMs are torn down: provisioned
// volumes are destroyed first, then the reservation is decommissioned.
func (s *Service) Release(ctx context.Context, planID string) (*domain.Plan, error) {
	plan, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != domain.PlanStatusCommitted && plan.Status != domain.PlanStatusProvisioned {
		return nil, fmt.Errorf("plan %s is %s, not committed or provisioned: %w", planID, plan.Status, domain.ErrConflict)
	}

	vms := plan.Hosts[plan.CommittedHost]
	if plan.Status == domain.PlanStatusProvisioned && s.provisioner != nil {
		if result := s.provisioner.DeleteVolumes(ctx, vms); result.Failed() {
			return nil, fmt.Errorf("%s: %w", result.Message, domain.ErrProvisioningFailed)
		}
	}
	// Released twice over both phases: once for the allocator's tentative
	// reservation, once for the commissioned one.
	if _, err := s.session.Recover(plan.CommittedHost, vms); err != nil {
		s.logger.Warn("Failed to release tentative reservation", zap.String("plan_id", planID), zap.Error(err))
	}
	if _, err := s.session.Decommission(plan.CommittedHost, vms); err != nil {
		return nil, err
	}

	plan.Status = domain.PlanStatusReleased
	return s.repo.Update(ctx, plan)
}

// Get returns one plan.
func (s *Service) Get(ctx context.Context, planID string) (*domain.Plan, error) {
	return s.repo.Get(ctx, planID)
}

// List returns stored plans, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*domain.Plan, error) {
	return s.repo.List(ctx, limit)
}
