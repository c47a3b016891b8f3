package domain

import "testing"

func TestRealFreeNeverNegative(t *testing.T) {
	ds := &DatastoreResource{Name: "ds1", FreeMiB: 1000, UnaccountedMiB: 1500}
	if got := ds.RealFreeMiB(); got != 0 {
		t.Errorf("RealFreeMiB = %d, want 0", got)
	}
	ds.UnaccountedMiB = 400
	if got := ds.RealFreeMiB(); got != 600 {
		t.Errorf("RealFreeMiB = %d, want 600", got)
	}
}

func TestNextUnitNumberSkipsControllerUnit(t *testing.T) {
	vm := NewVM("vm1", 512, nil, nil, nil)
	vm.NextUnit[BusTypeSCSI] = 5

	want := []int{5, 6, 8, 9}
	for i, w := range want {
		if got := vm.NextUnitNumber(BusTypeSCSI); got != w {
			t.Errorf("allocation %d: unit = %d, want %d", i, got, w)
		}
	}
}

func TestNextUnitNumberPerBus(t *testing.T) {
	vm := NewVM("vm1", 512, nil, nil, nil)
	if got := vm.NextUnitNumber(BusTypeSCSI); got != 0 {
		t.Errorf("first scsi unit = %d, want 0", got)
	}
	if got := vm.NextUnitNumber(BusTypeIDE); got != 0 {
		t.Errorf("first ide unit = %d, want 0", got)
	}
	if got := vm.NextUnitNumber(BusTypeSCSI); got != 1 {
		t.Errorf("second scsi unit = %d, want 1", got)
	}
}

func TestDiskAffinityForcedForSystemAndSwap(t *testing.T) {
	system := NewDisk(DiskCategorySystem, DiskTierLocal, ProvisioningThin, BusTypeSCSI, 100, false)
	swap := NewDisk(DiskCategorySwap, DiskTierLocal, ProvisioningThin, BusTypeSCSI, 100, false)
	data := NewDisk(DiskCategoryData, DiskTierLocal, ProvisioningThin, BusTypeSCSI, 100, false)

	if !system.Affinity || !swap.Affinity {
		t.Error("system and swap disks must always carry affinity")
	}
	if data.Affinity {
		t.Error("data disk affinity must follow the caller")
	}
}

func TestVMCloneIsIndependent(t *testing.T) {
	vm := NewVM("vm1", 512,
		NewDisk(DiskCategorySystem, DiskTierLocal, ProvisioningThin, BusTypeSCSI, 100, true),
		NewDisk(DiskCategorySwap, DiskTierLocal, ProvisioningThin, BusTypeSCSI, 100, true),
		NewDisk(DiskCategoryData, DiskTierLocal, ProvisioningThin, BusTypeSCSI, 100, true),
	)
	vm.NextUnitNumber(BusTypeSCSI)

	clone := vm.Clone()
	clone.System.Volumes["scsi:1"] = &Volume{VMName: "vm1", SizeMiB: 100}
	clone.NextUnitNumber(BusTypeSCSI)

	if len(vm.System.Volumes) != 0 {
		t.Error("clone volume mutation leaked into original")
	}
	if vm.NextUnit[BusTypeSCSI] != 1 {
		t.Errorf("original unit counter = %d, want 1", vm.NextUnit[BusTypeSCSI])
	}
}

func TestVolumePathEncoding(t *testing.T) {
	got := VolumePath("ds1", "web01", DiskTierShared, BusTypeSCSI, 2)
	want := "[ds1] web01/web01-shared-scsi-2.vmdk"
	if got != want {
		t.Errorf("VolumePath = %q, want %q", got, want)
	}
}

func TestHostResourceSums(t *testing.T) {
	host := NewHostResource("host1", "cluster-1", ConnectionStateConnected)
	host.Local["a"] = &DatastoreResource{Name: "a", FreeMiB: 1000}
	host.Local["b"] = &DatastoreResource{Name: "b", FreeMiB: 2000, UnaccountedMiB: 500}
	host.Shared["c"] = &DatastoreResource{Name: "c", FreeMiB: 3000}

	if got := host.LocalSumMiB(); got != 2500 {
		t.Errorf("LocalSumMiB = %d, want 2500", got)
	}
	if got := host.SharedSumMiB(); got != 3000 {
		t.Errorf("SharedSumMiB = %d, want 3000", got)
	}
	if host.Datastore("c") == nil || host.Datastore("ghost") != nil {
		t.Error("Datastore lookup through pools broken")
	}
}
