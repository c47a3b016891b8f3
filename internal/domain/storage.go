// Package domain contains core business entities for the placementd planner.
// This file defines storage-related domain models: DatastoreResource, Volume.
package domain

import (
	"fmt"
	"strings"
)

// DiskTier represents where a disk's backing datastore must live.
type DiskTier string

const (
	// DiskTierLocal places the disk on storage exclusive to one host.
	DiskTierLocal DiskTier = "LOCAL"
	// DiskTierShared places the disk on cluster-visible storage.
	DiskTierShared DiskTier = "SHARED"
)

// ProvisioningType defines how volume space is allocated on the datastore.
type ProvisioningType string

const (
	ProvisioningThin       ProvisioningType = "THIN"
	ProvisioningThickLazy  ProvisioningType = "THICK_LAZY"
	ProvisioningThickEager ProvisioningType = "THICK_EAGER"
)

// BusType identifies the virtual controller a volume is attached to.
type BusType string

const (
	BusTypeSCSI BusType = "SCSI"
	BusTypeIDE  BusType = "IDE"
	BusTypeSATA BusType = "SATA"
)

// ReservedControllerUnit is the unit number occupied by the controller
// itself. Disk unit numbering must never assign it.
const ReservedControllerUnit = 7

// DatastoreResource is one storage volume as seen from a host, together with
// the tentative-reservation counter the capacity ledger mutates. A datastore
// visible to a host both locally and via the cluster is represented by a
// single record referenced from both maps, so one mutation of UnaccountedMiB
// is observed through either lookup path.
type DatastoreResource struct {
	Name           string `json:"name"`
	Shared         bool   `json:"shared"`
	CapacityMiB    int64  `json:"capacity_mib"`
	FreeMiB        int64  `json:"free_mib"`
	UnaccountedMiB int64  `json:"unaccounted_mib"`
}

// RealFreeMiB returns the free space still considered allocatable once
// tentative reservations are deducted. Never negative.
func (d *DatastoreResource) RealFreeMiB() int64 {
	free := d.FreeMiB - d.UnaccountedMiB
	if free < 0 {
		return 0
	}
	return free
}

// Volume is one realized disk assignment produced by the allocator. It
// becomes permanent only once the provisioning layer creates the backing
// disk on the hypervisor.
type Volume struct {
	VMName       string           `json:"vm_name"`
	Provisioning ProvisioningType `json:"provisioning"`
	SizeMiB      int64            `json:"size_mib"`
	Path         string           `json:"path"`
	Datastore    string           `json:"datastore"`
	Bus          BusType          `json:"bus"`
	Unit         int              `json:"unit"`
}

// Key returns the bus:unit identifier a volume occupies on its VM.
func (v *Volume) Key() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(string(v.Bus)), v.Unit)
}

// VolumePath builds the full datastore path for a volume. The path encodes
// the datastore, VM name, tier, bus type, and unit number.
func VolumePath(datastore, vmName string, tier DiskTier, bus BusType, unit int) string {
	return fmt.Sprintf("[%s] %s/%s-%s-%s-%d.vmdk",
		datastore, vmName, vmName,
		strings.ToLower(string(tier)), strings.ToLower(string(bus)), unit,
	)
}
