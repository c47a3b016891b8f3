package domain

// DiskCategory is the closed set of disk roles a VM requests.
type DiskCategory string

const (
	DiskCategorySystem DiskCategory = "SYSTEM"
	DiskCategorySwap   DiskCategory = "SWAP"
	DiskCategoryData   DiskCategory = "DATA"
)

// DiskCategories lists the categories in the order the planner places them.
var DiskCategories = []DiskCategory{DiskCategorySystem, DiskCategorySwap, DiskCategoryData}

// Disk is one disk category request for a VM. Volumes is filled in by the
// allocator, keyed by the volume's bus:unit key.
type Disk struct {
	Category     DiskCategory       `json:"category"`
	Tier         DiskTier           `json:"tier"`
	Provisioning ProvisioningType   `json:"provisioning"`
	Affinity     bool               `json:"affinity"`
	Bus          BusType            `json:"bus"`
	SizeMiB      int64              `json:"size_mib"`
	Volumes      map[string]*Volume `json:"volumes"`
}

// NewDisk creates a disk request. Affinity is forced on for system and swap
// disks; only data disks honor the caller's choice.
func NewDisk(category DiskCategory, tier DiskTier, provisioning ProvisioningType, bus BusType, sizeMiB int64, affinity bool) *Disk {
	if category == DiskCategorySystem || category == DiskCategorySwap {
		affinity = true
	}
	if bus == "" {
		bus = BusTypeSCSI
	}
	return &Disk{
		Category:     category,
		Tier:         tier,
		Provisioning: provisioning,
		Affinity:     affinity,
		Bus:          bus,
		SizeMiB:      sizeMiB,
		Volumes:      make(map[string]*Volume),
	}
}

// AllocatedMiB returns the total size already materialized into volumes.
func (d *Disk) AllocatedMiB() int64 {
	var sum int64
	for _, v := range d.Volumes {
		sum += v.SizeMiB
	}
	return sum
}

func (d *Disk) clone() *Disk {
	if d == nil {
		return nil
	}
	c := *d
	c.Volumes = make(map[string]*Volume, len(d.Volumes))
	for k, v := range d.Volumes {
		vol := *v
		c.Volumes[k] = &vol
	}
	return &c
}

// VM is one placement request: the memory it needs, its three disk category
// requests, and an optional datastore name-pattern filter. The per-bus unit
// counters live here so unit numbers stay unique across the VM's disks.
type VM struct {
	Name        string           `json:"name"`
	MemoryMiB   int64            `json:"memory_mib"`
	System      *Disk            `json:"system"`
	Swap        *Disk            `json:"swap"`
	Data        *Disk            `json:"data"`
	NamePattern string           `json:"name_pattern,omitempty"`
	NextUnit    map[BusType]int  `json:"next_unit"`
}

// NewVM creates a placement request with empty unit counters.
func NewVM(name string, memoryMiB int64, system, swap, data *Disk) *VM {
	return &VM{
		Name:      name,
		MemoryMiB: memoryMiB,
		System:    system,
		Swap:      swap,
		Data:      data,
		NextUnit:  make(map[BusType]int),
	}
}

// Disk returns the request for one category, nil if the VM does not carry it.
func (v *VM) Disk(category DiskCategory) *Disk {
	switch category {
	case DiskCategorySystem:
		return v.System
	case DiskCategorySwap:
		return v.Swap
	case DiskCategoryData:
		return v.Data
	}
	return nil
}

// Disks returns the VM's disk requests in placement order, skipping absent
// categories.
func (v *VM) Disks() []*Disk {
	disks := make([]*Disk, 0, len(DiskCategories))
	for _, cat := range DiskCategories {
		if d := v.Disk(cat); d != nil {
			disks = append(disks, d)
		}
	}
	return disks
}

// NextUnitNumber hands out the next unit number for a bus, skipping the
// reserved controller unit.
func (v *VM) NextUnitNumber(bus BusType) int {
	if v.NextUnit == nil {
		v.NextUnit = make(map[BusType]int)
	}
	unit := v.NextUnit[bus]
	if unit == ReservedControllerUnit {
		unit++
	}
	v.NextUnit[bus] = unit + 1
	return unit
}

// RequiredMiB returns the aggregate local and shared space this request
// needs. Required memory is accounted against the system disk's tier, the
// same way the allocator reserves it.
func (v *VM) RequiredMiB() (localMiB, sharedMiB int64) {
	for _, d := range v.Disks() {
		size := d.SizeMiB
		if d.Category == DiskCategorySystem {
			size += v.MemoryMiB
		}
		if d.Tier == DiskTierShared {
			sharedMiB += size
		} else {
			localMiB += size
		}
	}
	return localMiB, sharedMiB
}

// Clone deep-copies the VM aggregate. The planner clones every request
// before mutating it so a caller's template batch is never altered.
func (v *VM) Clone() *VM {
	c := *v
	c.System = v.System.clone()
	c.Swap = v.Swap.clone()
	c.Data = v.Data.clone()
	c.NextUnit = make(map[BusType]int, len(v.NextUnit))
	for k, n := range v.NextUnit {
		c.NextUnit[k] = n
	}
	return &c
}
