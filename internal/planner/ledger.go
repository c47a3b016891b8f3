package planner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// QueryCapacity returns the subset of the candidate hosts that are connected
// and whose local and shared slack each cover the batch's aggregate
// requirement. This is a cheap pre-filter: aggregate slack does not imply a
// fitting bin-packing solution, so per-VM placement can still fail on a host
// that passes.
func (s *Session) QueryCapacity(hostNames []string, requiredLocalMiB, requiredSharedMiB int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := make([]string, 0, len(hostNames))
	for _, name := range hostNames {
		host, ok := s.hosts[name]
		if !ok {
			s.logger.Warn("Unknown host in capacity query", zap.String("host", name))
			continue
		}
		if !host.IsConnected() {
			s.logger.Debug("Host not connected",
				zap.String("host", name),
				zap.String("state", string(host.ConnectionState)),
			)
			continue
		}
		if host.LocalSumMiB() < requiredLocalMiB || host.SharedSumMiB() < requiredSharedMiB {
			s.logger.Debug("Host lacks aggregate slack",
				zap.String("host", name),
				zap.Int64("local_free_mib", host.LocalSumMiB()),
				zap.Int64("shared_free_mib", host.SharedSumMiB()),
				zap.Int64("required_local_mib", requiredLocalMiB),
				zap.Int64("required_shared_mib", requiredSharedMiB),
			)
			continue
		}
		eligible = append(eligible, name)
	}
	return eligible
}

// Commission converts a tentative plan into a durable reservation: for every
// volume placed in the plan it adds the volume size, plus the VM's required
// memory for system volumes, to the resident datastore's unaccounted counter.
// Returns the net change in the host's combined free space.
//
// Commission and Recover mutate the same counter in different workflow
// phases: Recover cancels reservations the allocator made during placement,
// Commission layers the accepted plan's reservation on top so it survives
// later planning calls within the same session. Calling both for the same
// host plan therefore double-counts; a caller commissions the accepted host
// and recovers only the rejected ones.
func (s *Session) Commission(hostName string, vms []*domain.VM) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	host, ok := s.hosts[hostName]
	if !ok {
		return 0, fmt.Errorf("commission host %q: %w", hostName, domain.ErrNotFound)
	}
	delta := s.applyLocked(host, vms, 1)
	s.logger.Info("Plan commissioned",
		zap.String("host", hostName),
		zap.Int("vms", len(vms)),
		zap.Int64("free_space_delta_mib", delta),
	)
	return delta, nil
}

// Decommission is the exact inverse of Commission, releasing a previously
// committed plan when its VMs are torn down. No-op on an empty VM list.
func (s *Session) Decommission(hostName string, vms []*domain.VM) (int64, error) {
	if len(vms) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	host, ok := s.hosts[hostName]
	if !ok {
		return 0, fmt.Errorf("decommission host %q: %w", hostName, domain.ErrNotFound)
	}
	delta := s.applyLocked(host, vms, -1)
	s.logger.Info("Plan decommissioned",
		zap.String("host", hostName),
		zap.Int("vms", len(vms)),
		zap.Int64("free_space_delta_mib", delta),
	)
	return delta, nil
}

// Recover unwinds the reservations the allocator made while assembling a
// tentative plan that was not accepted. It performs the same arithmetic as
// Decommission but is invoked before any commission happened.
func (s *Session) Recover(hostName string, vms []*domain.VM) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	host, ok := s.hosts[hostName]
	if !ok {
		return 0, fmt.Errorf("recover host %q: %w", hostName, domain.ErrNotFound)
	}
	delta := s.recoverLocked(host, vms)
	return delta, nil
}

func (s *Session) recoverLocked(host *domain.HostResource, vms []*domain.VM) int64 {
	delta := s.applyLocked(host, vms, -1)
	s.logger.Debug("Plan recovered",
		zap.String("host", host.Name),
		zap.Int("vms", len(vms)),
		zap.Int64("free_space_delta_mib", delta),
	)
	return delta
}

// applyLocked adds (sign=+1) or removes (sign=-1) every placed volume's
// reservation on the host's datastores and returns the resulting change in
// the host's combined free space. Local and shared pool entries reference
// the same datastore record, so one mutation is visible through both.
func (s *Session) applyLocked(host *domain.HostResource, vms []*domain.VM, sign int64) int64 {
	before := host.LocalSumMiB() + host.SharedSumMiB()

	for _, vm := range vms {
		for _, disk := range vm.Disks() {
			for _, vol := range disk.Volumes {
				ds := host.Datastore(vol.Datastore)
				if ds == nil {
					s.logger.Warn("Volume references datastore unknown to host",
						zap.String("host", host.Name),
						zap.String("vm", vm.Name),
						zap.String("datastore", vol.Datastore),
					)
					continue
				}
				reserved := vol.SizeMiB
				if disk.Category == domain.DiskCategorySystem {
					reserved += vm.MemoryMiB
				}
				ds.UnaccountedMiB += sign * reserved
			}
		}
	}

	return host.LocalSumMiB() + host.SharedSumMiB() - before
}
