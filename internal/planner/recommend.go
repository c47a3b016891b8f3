package planner

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// Recommend attempts to fit the whole VM batch onto each candidate host and
// returns, per host that succeeded, an independently allocated copy of the
// batch. Each successful host holds its own tentative reservations; the
// caller commissions the plan it accepts and recovers the rest.
//
// Hosts are attempted strictly in the given order, VMs strictly in the
// batch's order. When any VM fails on a host, everything already placed on
// that host is recovered and the host is dropped from the solution; the
// failure is never surfaced as an error.
func (s *Session) Recommend(hostNames []string, vms []*domain.VM) (map[string][]*domain.VM, error) {
	patterns := make([]*regexp.Regexp, len(vms))
	for i, vm := range vms {
		if vm.NamePattern == "" {
			continue
		}
		re, err := regexp.Compile(vm.NamePattern)
		if err != nil {
			return nil, fmt.Errorf("datastore pattern for VM %q: %w", vm.Name, domain.ErrInvalidArgument)
		}
		patterns[i] = re
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	solution := make(map[string][]*domain.VM)
	for _, name := range hostNames {
		host, ok := s.hosts[name]
		if !ok || !host.IsConnected() {
			s.logger.Debug("Skipping ineligible host", zap.String("host", name))
			continue
		}

		placed := make([]*domain.VM, 0, len(vms))
		var cached *domain.DatastoreResource
		failed := false

		for i, template := range vms {
			vm := template.Clone()
			if err := s.placeVM(host, vm, patterns[i], &cached); err != nil {
				s.logger.Info("Host plan rolled back",
					zap.String("host", name),
					zap.String("vm", vm.Name),
					zap.Int("vms_placed", len(placed)),
					zap.Error(err),
				)
				// The failing VM's partial allocations are unwound
				// together with everything placed before it.
				s.recoverLocked(host, append(placed, vm))
				failed = true
				break
			}
			placed = append(placed, vm)
		}

		if failed {
			continue
		}
		solution[name] = placed
		s.logger.Info("Host plan assembled",
			zap.String("host", name),
			zap.Int("vms", len(placed)),
		)
	}
	return solution, nil
}

// placeVM fits one VM's full disk set onto the host: system and swap first,
// then data in affinity or split mode.
func (s *Session) placeVM(host *domain.HostResource, vm *domain.VM, pattern *regexp.Regexp, cached **domain.DatastoreResource) error {
	if err := s.placeSystemSwap(host, vm, pattern, cached); err != nil {
		return err
	}

	data := vm.Data
	if data == nil || data.SizeMiB == 0 {
		return nil
	}
	if data.Affinity {
		return s.placeDataAffinity(host, vm, pattern)
	}
	return s.placeDataSplit(host, vm, pattern)
}

// placeSystemSwap places the system and swap disks, preferring a single
// datastore that covers memory plus both disks so a VM's core disks stay
// consolidated. Candidates are ordered largest-free-first with the sticky
// datastore from the previous VM promoted to the front.
func (s *Session) placeSystemSwap(host *domain.HostResource, vm *domain.VM, pattern *regexp.Regexp, cached **domain.DatastoreResource) error {
	system, swap := vm.System, vm.Swap
	var systemSize, swapSize int64
	tier := domain.DiskTierLocal
	if system != nil {
		systemSize = system.SizeMiB
		tier = system.Tier
	}
	if swap != nil {
		swapSize = swap.SizeMiB
	}
	need := vm.MemoryMiB + systemSize + swapSize
	if need == 0 {
		return nil
	}

	cands := promote(s.candidates(host, tier, pattern, false), *cached)
	if len(cands) == 0 {
		return fmt.Errorf("system/swap for VM %q on host %q: %w", vm.Name, host.Name, domain.ErrNoEligibleDatastore)
	}
	if sumRealFree(cands) < need {
		return fmt.Errorf("system/swap for VM %q on host %q needs %d MiB: %w",
			vm.Name, host.Name, need, domain.ErrInsufficientCapacity)
	}

	// One datastore covering memory+system+swap wins and becomes the new
	// sticky candidate.
	for _, ds := range cands {
		if ds.RealFreeMiB()-s.config.BufferMiB < need {
			continue
		}
		if system != nil && systemSize > 0 {
			s.allocVolume(vm, system, ds, systemSize)
		}
		if swap != nil && swapSize > 0 {
			s.allocVolume(vm, swap, ds, swapSize)
		}
		*cached = ds
		return nil
	}

	// Otherwise system and swap land on separate datastores, whichever fits
	// each in candidate order.
	systemDone := system == nil || systemSize == 0
	swapDone := swap == nil || swapSize == 0
	for _, ds := range cands {
		if !systemDone && ds.RealFreeMiB()-s.config.BufferMiB >= vm.MemoryMiB+systemSize {
			s.allocVolume(vm, system, ds, systemSize)
			systemDone = true
			continue
		}
		if !swapDone && ds.RealFreeMiB()-s.config.BufferMiB >= swapSize {
			s.allocVolume(vm, swap, ds, swapSize)
			swapDone = true
		}
		if systemDone && swapDone {
			break
		}
	}
	if !systemDone || !swapDone {
		return fmt.Errorf("system/swap for VM %q on host %q: %w", vm.Name, host.Name, domain.ErrInsufficientCapacity)
	}
	return nil
}

// placeDataAffinity places a data disk that must not be split. Candidates are
// ordered smallest-fits-first so large datastores stay available for requests
// that need them. When no single datastore covers the full size the disk is
// nevertheless pieced across several candidates; callers relying on strict
// single-datastore affinity must size their datastores accordingly.
func (s *Session) placeDataAffinity(host *domain.HostResource, vm *domain.VM, pattern *regexp.Regexp) error {
	data := vm.Data
	cands := s.candidates(host, data.Tier, pattern, true)
	if len(cands) == 0 {
		return fmt.Errorf("data disk for VM %q on host %q: %w", vm.Name, host.Name, domain.ErrNoEligibleDatastore)
	}
	if sumRealFree(cands) < data.SizeMiB {
		return fmt.Errorf("data disk for VM %q on host %q needs %d MiB: %w",
			vm.Name, host.Name, data.SizeMiB, domain.ErrInsufficientCapacity)
	}

	for _, ds := range cands {
		if ds.RealFreeMiB()-s.config.BufferMiB >= data.SizeMiB {
			s.allocVolume(vm, data, ds, data.SizeMiB)
			return nil
		}
	}

	remaining := data.SizeMiB
	for _, ds := range cands {
		take := ds.RealFreeMiB() - s.config.BufferMiB
		if take <= 0 {
			continue
		}
		if take > remaining {
			take = remaining
		}
		s.allocVolume(vm, data, ds, take)
		remaining -= take
		if remaining == 0 {
			return nil
		}
	}
	return fmt.Errorf("data disk for VM %q on host %q short by %d MiB: %w",
		vm.Name, host.Name, remaining, domain.ErrInsufficientCapacity)
}

// placeDataSplit spreads a data disk proportionally across every eligible
// candidate: a greedy water-fill where each datastore takes the smaller of
// the re-derived per-candidate share and its own capacity above the buffer.
func (s *Session) placeDataSplit(host *domain.HostResource, vm *domain.VM, pattern *regexp.Regexp) error {
	data := vm.Data
	cands := s.candidates(host, data.Tier, pattern, true)
	if len(cands) == 0 {
		return fmt.Errorf("data disk for VM %q on host %q: %w", vm.Name, host.Name, domain.ErrNoEligibleDatastore)
	}

	remaining := data.SizeMiB
	for i, ds := range cands {
		left := int64(len(cands) - i)
		share := (remaining + left - 1) / left
		take := ds.RealFreeMiB() - s.config.BufferMiB
		if take > share {
			take = share
		}
		if take <= 0 {
			continue
		}
		if take > remaining {
			take = remaining
		}
		s.allocVolume(vm, data, ds, take)
		remaining -= take
		if remaining == 0 {
			return nil
		}
	}
	if remaining > 0 {
		return fmt.Errorf("split data disk for VM %q on host %q short by %d MiB: %w",
			vm.Name, host.Name, remaining, domain.ErrInsufficientCapacity)
	}
	return nil
}
