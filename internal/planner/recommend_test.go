// Package planner provides tests for placement recommendation.
package planner

import (
	"testing"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

func newDatastore(name string, freeMiB int64, shared bool) *domain.DatastoreResource {
	return &domain.DatastoreResource{
		Name:        name,
		Shared:      shared,
		CapacityMiB: freeMiB,
		FreeMiB:     freeMiB,
	}
}

func newHost(name string, local, shared []*domain.DatastoreResource) *domain.HostResource {
	host := domain.NewHostResource(name, "cluster-1", domain.ConnectionStateConnected)
	for _, ds := range local {
		host.Local[ds.Name] = ds
	}
	for _, ds := range shared {
		host.Shared[ds.Name] = ds
	}
	return host
}

func newSession(t *testing.T, hosts ...*domain.HostResource) *Session {
	t.Helper()
	m := make(map[string]*domain.HostResource, len(hosts))
	for _, h := range hosts {
		m[h.Name] = h
	}
	return NewSession(m, Config{BufferMiB: 512}, zap.NewNop())
}

func newTestVM(name string, memoryMiB, systemMiB, swapMiB, dataMiB int64, dataAffinity bool) *domain.VM {
	return domain.NewVM(name, memoryMiB,
		domain.NewDisk(domain.DiskCategorySystem, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, systemMiB, true),
		domain.NewDisk(domain.DiskCategorySwap, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, swapMiB, true),
		domain.NewDisk(domain.DiskCategoryData, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, dataMiB, dataAffinity),
	)
}

func allVolumes(vm *domain.VM) []*domain.Volume {
	var vols []*domain.Volume
	for _, d := range vm.Disks() {
		for _, v := range d.Volumes {
			vols = append(vols, v)
		}
	}
	return vols
}

func TestRecommendFullFitOnSingleDatastore(t *testing.T) {
	ds := newDatastore("ds1", 10000, false)
	host := newHost("host1", []*domain.DatastoreResource{ds}, nil)
	s := newSession(t, host)

	vm := newTestVM("vm1", 500, 2000, 1000, 3000, true)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	placed, ok := solution["host1"]
	if !ok || len(placed) != 1 {
		t.Fatalf("expected host1 with 1 VM in solution, got %v", solution)
	}
	if ds.UnaccountedMiB != 6500 {
		t.Errorf("unaccounted = %d, want 6500", ds.UnaccountedMiB)
	}
	if ds.RealFreeMiB() != 3500 {
		t.Errorf("real free = %d, want 3500", ds.RealFreeMiB())
	}
	for _, vol := range allVolumes(placed[0]) {
		if vol.Datastore != "ds1" {
			t.Errorf("volume %s on %s, want ds1", vol.Path, vol.Datastore)
		}
	}
	// The caller's template must stay untouched.
	if len(vm.System.Volumes) != 0 {
		t.Errorf("template VM was mutated: %d system volumes", len(vm.System.Volumes))
	}
}

func TestRecommendDataFailureRollsBackHost(t *testing.T) {
	ds := newDatastore("ds1", 10000, false)
	host := newHost("host1", []*domain.DatastoreResource{ds}, nil)
	s := newSession(t, host)

	// System/swap/memory fit, but the 8000 MiB data disk cannot.
	vm := newTestVM("vm1", 500, 2000, 1000, 8000, true)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	if _, ok := solution["host1"]; ok {
		t.Fatalf("host1 should be absent from solution, got %v", solution)
	}
	if ds.UnaccountedMiB != 0 {
		t.Errorf("unaccounted after rollback = %d, want 0", ds.UnaccountedMiB)
	}
}

func TestRecommendRollbackUnwindsEarlierVMs(t *testing.T) {
	ds := newDatastore("ds1", 10000, false)
	host := newHost("host1", []*domain.DatastoreResource{ds}, nil)
	s := newSession(t, host)

	fits := newTestVM("vm1", 500, 2000, 1000, 1000, true)
	tooBig := newTestVM("vm2", 500, 2000, 1000, 9000, true)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{fits, tooBig})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	if len(solution) != 0 {
		t.Fatalf("expected empty solution, got %v", solution)
	}
	if ds.UnaccountedMiB != 0 {
		t.Errorf("unaccounted after rollback = %d, want 0", ds.UnaccountedMiB)
	}
}

func TestAffinityDataStaysOnOneDatastore(t *testing.T) {
	small := newDatastore("small", 4000, false)
	big := newDatastore("big", 9000, false)
	host := newHost("host1", []*domain.DatastoreResource{small, big}, nil)
	s := newSession(t, host)

	vm := domain.NewVM("vm1", 0, nil, nil,
		domain.NewDisk(domain.DiskCategoryData, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, 5000, true))
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	placed := solution["host1"]
	if len(placed) != 1 {
		t.Fatalf("expected 1 placed VM, got %d", len(placed))
	}
	vols := allVolumes(placed[0])
	if len(vols) != 1 {
		t.Fatalf("affinity data split into %d volumes, want 1", len(vols))
	}
	if vols[0].Datastore != "big" || vols[0].SizeMiB != 5000 {
		t.Errorf("volume = %s/%d MiB, want big/5000", vols[0].Datastore, vols[0].SizeMiB)
	}
}

func TestAffinityFallbackPiecesAcrossDatastores(t *testing.T) {
	a := newDatastore("ds-a", 4000, false)
	b := newDatastore("ds-b", 4000, false)
	host := newHost("host1", []*domain.DatastoreResource{a, b}, nil)
	s := newSession(t, host)

	// No single datastore covers 6000 above the buffer, so even the
	// affinity path pieces the disk across candidates.
	vm := domain.NewVM("vm1", 0, nil, nil,
		domain.NewDisk(domain.DiskCategoryData, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, 6000, true))
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	placed := solution["host1"]
	if len(placed) != 1 {
		t.Fatalf("expected 1 placed VM, got %v", solution)
	}
	vols := allVolumes(placed[0])
	if len(vols) < 2 {
		t.Fatalf("expected piecewise allocation, got %d volumes", len(vols))
	}
	var total int64
	for _, v := range vols {
		total += v.SizeMiB
	}
	if total != 6000 {
		t.Errorf("allocated %d MiB, want exactly 6000", total)
	}
}

func TestSplitDataSumsToRequestedSize(t *testing.T) {
	a := newDatastore("ds-a", 4000, false)
	b := newDatastore("ds-b", 4000, false)
	host := newHost("host1", []*domain.DatastoreResource{a, b}, nil)
	s := newSession(t, host)

	vm := domain.NewVM("vm1", 0, nil, nil,
		domain.NewDisk(domain.DiskCategoryData, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, 6000, false))
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	placed := solution["host1"]
	if len(placed) != 1 {
		t.Fatalf("expected 1 placed VM, got %v", solution)
	}
	vols := allVolumes(placed[0])
	if len(vols) != 2 {
		t.Fatalf("expected split across 2 datastores, got %d volumes", len(vols))
	}
	var total int64
	seen := map[string]bool{}
	for _, v := range vols {
		total += v.SizeMiB
		seen[v.Datastore] = true
	}
	if total != 6000 {
		t.Errorf("allocated %d MiB, want exactly 6000", total)
	}
	if len(seen) != 2 {
		t.Errorf("split touched %d datastores, want 2", len(seen))
	}
}

func TestNamePatternFiltersCandidates(t *testing.T) {
	gold := newDatastore("gold-1", 8000, false)
	silver := newDatastore("silver-1", 20000, false)
	host := newHost("host1", []*domain.DatastoreResource{gold, silver}, nil)
	s := newSession(t, host)

	vm := newTestVM("vm1", 500, 2000, 1000, 1000, true)
	vm.NamePattern = "^gold-"
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	for _, vol := range allVolumes(solution["host1"][0]) {
		if vol.Datastore != "gold-1" {
			t.Errorf("volume on %s despite pattern filter", vol.Datastore)
		}
	}
	if silver.UnaccountedMiB != 0 {
		t.Errorf("filtered datastore carries reservations: %d", silver.UnaccountedMiB)
	}
}

func TestInvalidPatternIsRejected(t *testing.T) {
	host := newHost("host1", []*domain.DatastoreResource{newDatastore("ds1", 10000, false)}, nil)
	s := newSession(t, host)

	vm := newTestVM("vm1", 500, 2000, 1000, 1000, true)
	vm.NamePattern = "["
	if _, err := s.Recommend([]string{"host1"}, []*domain.VM{vm}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestBufferExcludesDatastore(t *testing.T) {
	// Real free space at the buffer boundary is not allocatable.
	ds := newDatastore("ds1", 512, false)
	host := newHost("host1", []*domain.DatastoreResource{ds}, nil)
	s := newSession(t, host)

	vm := newTestVM("vm1", 0, 100, 0, 0, true)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	if len(solution) != 0 {
		t.Fatalf("expected empty solution, got %v", solution)
	}
}

func TestStickyDatastorePreferredForNextVM(t *testing.T) {
	a := newDatastore("ds-a", 10000, false)
	b := newDatastore("ds-b", 9500, false)
	host := newHost("host1", []*domain.DatastoreResource{a, b}, nil)
	s := newSession(t, host)

	vm1 := newTestVM("vm1", 200, 500, 300, 0, true)
	vm2 := newTestVM("vm2", 200, 500, 300, 0, true)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm1, vm2})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	placed := solution["host1"]
	if len(placed) != 2 {
		t.Fatalf("expected 2 placed VMs, got %d", len(placed))
	}
	// After vm1 lands on ds-a, ds-b has more real free space, but the
	// sticky cache keeps vm2 on ds-a.
	for _, vm := range placed {
		for _, vol := range allVolumes(vm) {
			if vol.Datastore != "ds-a" {
				t.Errorf("%s volume on %s, want ds-a", vm.Name, vol.Datastore)
			}
		}
	}
}

func TestSharedTierUsesSharedPool(t *testing.T) {
	local := newDatastore("local-1", 50000, false)
	shared := newDatastore("san-1", 20000, true)
	host := newHost("host1", []*domain.DatastoreResource{local}, []*domain.DatastoreResource{shared})
	s := newSession(t, host)

	vm := domain.NewVM("vm1", 500,
		domain.NewDisk(domain.DiskCategorySystem, domain.DiskTierShared, domain.ProvisioningThin, domain.BusTypeSCSI, 2000, true),
		domain.NewDisk(domain.DiskCategorySwap, domain.DiskTierShared, domain.ProvisioningThin, domain.BusTypeSCSI, 1000, true),
		nil)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	if len(solution["host1"]) != 1 {
		t.Fatalf("expected placement, got %v", solution)
	}
	if shared.UnaccountedMiB != 3500 {
		t.Errorf("shared pool unaccounted = %d, want 3500", shared.UnaccountedMiB)
	}
	if local.UnaccountedMiB != 0 {
		t.Errorf("local pool touched: %d", local.UnaccountedMiB)
	}
}

func TestRecommendProducesAlternativePlansPerHost(t *testing.T) {
	ds1 := newDatastore("h1-ds", 10000, false)
	ds2 := newDatastore("h2-ds", 10000, false)
	host1 := newHost("host1", []*domain.DatastoreResource{ds1}, nil)
	host2 := newHost("host2", []*domain.DatastoreResource{ds2}, nil)
	s := newSession(t, host1, host2)

	vm := newTestVM("vm1", 500, 2000, 1000, 1000, true)
	solution, err := s.Recommend([]string{"host1", "host2"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	if len(solution) != 2 {
		t.Fatalf("expected plans on both hosts, got %v", solution)
	}
	// Each host holds its own tentative reservation.
	if ds1.UnaccountedMiB != 4500 || ds2.UnaccountedMiB != 4500 {
		t.Errorf("unaccounted = %d/%d, want 4500 each", ds1.UnaccountedMiB, ds2.UnaccountedMiB)
	}
}

func TestRecommendSkipsDisconnectedHost(t *testing.T) {
	ds := newDatastore("ds1", 10000, false)
	host := newHost("host1", []*domain.DatastoreResource{ds}, nil)
	host.ConnectionState = domain.ConnectionStateDisconnected
	s := newSession(t, host)

	vm := newTestVM("vm1", 500, 2000, 1000, 0, true)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	if len(solution) != 0 {
		t.Fatalf("disconnected host placed VMs: %v", solution)
	}
}

func TestSystemSwapSeparateDatastoresFallback(t *testing.T) {
	// Neither datastore covers memory+system+swap at once, but system and
	// swap fit independently.
	a := newDatastore("ds-a", 3600, false)
	b := newDatastore("ds-b", 2100, false)
	host := newHost("host1", []*domain.DatastoreResource{a, b}, nil)
	s := newSession(t, host)

	vm := newTestVM("vm1", 500, 2500, 1500, 0, true)
	solution, err := s.Recommend([]string{"host1"}, []*domain.VM{vm})
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}

	placed := solution["host1"]
	if len(placed) != 1 {
		t.Fatalf("expected placement, got %v", solution)
	}
	sysVols := placed[0].System.Volumes
	swapVols := placed[0].Swap.Volumes
	if len(sysVols) != 1 || len(swapVols) != 1 {
		t.Fatalf("expected one volume each, got %d/%d", len(sysVols), len(swapVols))
	}
	var sysDS, swapDS string
	for _, v := range sysVols {
		sysDS = v.Datastore
	}
	for _, v := range swapVols {
		swapDS = v.Datastore
	}
	if sysDS == swapDS {
		t.Errorf("system and swap on same datastore %s in fallback", sysDS)
	}
}
