package planner

import (
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// allocVolume materializes one volume of the given size for a disk on the
// chosen datastore and reserves the space against the datastore's
// unaccounted counter immediately. Required memory is reserved alongside the
// system volume so a host's free space reflects the VM it will run, not just
// its disks.
func (s *Session) allocVolume(vm *domain.VM, disk *domain.Disk, ds *domain.DatastoreResource, sizeMiB int64) *domain.Volume {
	unit := vm.NextUnitNumber(disk.Bus)
	vol := &domain.Volume{
		VMName:       vm.Name,
		Provisioning: disk.Provisioning,
		SizeMiB:      sizeMiB,
		Path:         domain.VolumePath(ds.Name, vm.Name, disk.Tier, disk.Bus, unit),
		Datastore:    ds.Name,
		Bus:          disk.Bus,
		Unit:         unit,
	}
	disk.Volumes[vol.Key()] = vol

	ds.UnaccountedMiB += sizeMiB
	if disk.Category == domain.DiskCategorySystem {
		ds.UnaccountedMiB += vm.MemoryMiB
	}

	s.logger.Debug("Volume allocated",
		zap.String("vm", vm.Name),
		zap.String("category", string(disk.Category)),
		zap.String("datastore", ds.Name),
		zap.String("path", vol.Path),
		zap.Int64("size_mib", sizeMiB),
		zap.Int64("datastore_real_free_mib", ds.RealFreeMiB()),
	)
	return vol
}

// candidates selects and orders the datastore pool for one disk placement:
// the host's shared pool when the disk wants shared storage and that pool is
// non-empty, the local pool otherwise. Candidates failing the VM's name
// pattern, or whose real free space is at or below the safety buffer, are
// discarded. Ties sort by name so placement is deterministic.
func (s *Session) candidates(host *domain.HostResource, tier domain.DiskTier, pattern *regexp.Regexp, ascending bool) []*domain.DatastoreResource {
	pool := host.Local
	if tier == domain.DiskTierShared && len(host.Shared) > 0 {
		pool = host.Shared
	}

	sorted := make([]*domain.DatastoreResource, 0, len(pool))
	for _, ds := range pool {
		sorted = append(sorted, ds)
	}
	sort.Slice(sorted, func(i, j int) bool {
		fi, fj := sorted[i].RealFreeMiB(), sorted[j].RealFreeMiB()
		if fi == fj {
			return sorted[i].Name < sorted[j].Name
		}
		if ascending {
			return fi < fj
		}
		return fi > fj
	})

	eligible := sorted[:0]
	for _, ds := range sorted {
		if pattern != nil && !pattern.MatchString(ds.Name) {
			continue
		}
		if ds.RealFreeMiB() <= s.config.BufferMiB {
			continue
		}
		eligible = append(eligible, ds)
	}
	return eligible
}

// promote moves the cached datastore to the front of the candidate order, if
// it survived filtering. Successive VMs on a host prefer the datastore just
// used, which keeps many small VMs from fragmenting across the pool.
func promote(cands []*domain.DatastoreResource, cached *domain.DatastoreResource) []*domain.DatastoreResource {
	if cached == nil {
		return cands
	}
	for i, ds := range cands {
		if ds == cached {
			copy(cands[1:i+1], cands[:i])
			cands[0] = cached
			break
		}
	}
	return cands
}

func sumRealFree(cands []*domain.DatastoreResource) int64 {
	var sum int64
	for _, ds := range cands {
		sum += ds.RealFreeMiB()
	}
	return sum
}
