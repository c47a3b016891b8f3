// Package provision drives volume creation and deletion against the
// hypervisor for committed plans, with ordered rollback when a batch fails
// partway.
package provision

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// DiskAPI is the provisioning contract toward the hypervisor.
type DiskAPI interface {
	CreateDisk(ctx context.Context, vol *domain.Volume) error
	DeleteDisk(ctx context.Context, vol *domain.Volume) error
}

// Status reports the outcome of a provisioning batch.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Result is the structured outcome of one batch. Provisioning failures are
// reported here rather than raised, so a caller always learns how far the
// batch got.
type Result struct {
	Status  Status           `json:"status"`
	Message string           `json:"message,omitempty"`
	Volumes []*domain.Volume `json:"volumes"`
}

// Failed reports whether the batch did not complete.
func (r *Result) Failed() bool {
	return r.Status != StatusSuccess
}

// Service orchestrates disk provisioning for placed VM batches.
type Service struct {
	disks  DiskAPI
	logger *zap.Logger
}

// NewService creates a provisioning service.
func NewService(disks DiskAPI, logger *zap.Logger) *Service {
	return &Service{
		disks:  disks,
		logger: logger.With(zap.String("component", "provision")),
	}
}

// CreateVolumes creates every volume of the batch in placement order. On the
// first failure, every volume already created in this batch is destroyed in
// reverse order before the failure is reported.
func (s *Service) CreateVolumes(ctx context.Context, vms []*domain.VM) *Result {
	volumes := batchVolumes(vms)

	created := make([]*domain.Volume, 0, len(volumes))
	for _, vol := range volumes {
		if err := s.disks.CreateDisk(ctx, vol); err != nil {
			s.logger.Error("Volume creation failed, rolling back batch",
				zap.String("path", vol.Path),
				zap.Int("created", len(created)),
				zap.Error(err),
			)
			s.rollback(ctx, created)
			return &Result{
				Status:  StatusFailed,
				Message: fmt.Sprintf("create %s: %v", vol.Path, err),
				Volumes: created,
			}
		}
		created = append(created, vol)
	}

	s.logger.Info("Volume batch created", zap.Int("volumes", len(created)))
	return &Result{Status: StatusSuccess, Volumes: created}
}

// DeleteVolumes destroys every volume of the batch. Deletion keeps going
// past individual failures so a partly torn-down batch loses as much as
// possible; the first failure is still reported.
func (s *Service) DeleteVolumes(ctx context.Context, vms []*domain.VM) *Result {
	volumes := batchVolumes(vms)

	var firstErr error
	deleted := make([]*domain.Volume, 0, len(volumes))
	for _, vol := range volumes {
		if err := s.disks.DeleteDisk(ctx, vol); err != nil {
			s.logger.Error("Volume deletion failed",
				zap.String("path", vol.Path),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("delete %s: %w", vol.Path, err)
			}
			continue
		}
		deleted = append(deleted, vol)
	}

	if firstErr != nil {
		return &Result{Status: StatusFailed, Message: firstErr.Error(), Volumes: deleted}
	}
	s.logger.Info("Volume batch deleted", zap.Int("volumes", len(deleted)))
	return &Result{Status: StatusSuccess, Volumes: deleted}
}

// rollback destroys already-created volumes in reverse creation order.
// Failures here are logged and skipped; the original failure is what the
// caller needs to see.
func (s *Service) rollback(ctx context.Context, created []*domain.Volume) {
	for i := len(created) - 1; i >= 0; i-- {
		vol := created[i]
		if err := s.disks.DeleteDisk(ctx, vol); err != nil {
			s.logger.Warn("Rollback deletion failed",
				zap.String("path", vol.Path),
				zap.Error(err),
			)
		}
	}
}

// batchVolumes flattens a VM batch into a deterministic volume order: VM
// order, then category order, then bus:unit key order.
func batchVolumes(vms []*domain.VM) []*domain.Volume {
	var volumes []*domain.Volume
	for _, vm := range vms {
		for _, disk := range vm.Disks() {
			keys := make([]string, 0, len(disk.Volumes))
			for k := range disk.Volumes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				volumes = append(volumes, disk.Volumes[k])
			}
		}
	}
	return volumes
}
