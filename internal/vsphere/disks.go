package vsphere

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// DiskManager creates and destroys virtual disks for committed plans.
type DiskManager struct {
	client     *Client
	datacenter string
	logger     *zap.Logger

	dc *object.Datacenter
}

// NewDiskManager creates a disk manager scoped to one datacenter. An empty
// datacenter name resolves to the default datacenter of the endpoint.
func NewDiskManager(client *Client, datacenter string, logger *zap.Logger) *DiskManager {
	return &DiskManager{
		client:     client,
		datacenter: datacenter,
		logger:     logger.With(zap.String("component", "disk-manager")),
	}
}

func (m *DiskManager) resolveDatacenter(ctx context.Context) (*object.Datacenter, error) {
	if m.dc != nil {
		return m.dc, nil
	}
	finder := find.NewFinder(m.client.Client.Client)
	dc, err := finder.DatacenterOrDefault(ctx, m.datacenter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve datacenter %q: %w", m.datacenter, err)
	}
	m.dc = dc
	return dc, nil
}

// CreateDisk creates the backing virtual disk for one allocated volume.
func (m *DiskManager) CreateDisk(ctx context.Context, vol *domain.Volume) error {
	dc, err := m.resolveDatacenter(ctx)
	if err != nil {
		return err
	}

	vdm := object.NewVirtualDiskManager(m.client.Client.Client)
	spec := &types.FileBackedVirtualDiskSpec{
		VirtualDiskSpec: types.VirtualDiskSpec{
			AdapterType: adapterType(vol.Bus),
			DiskType:    diskType(vol.Provisioning),
		},
		CapacityKb: vol.SizeMiB * 1024,
	}

	task, err := vdm.CreateVirtualDisk(ctx, vol.Path, dc, spec)
	if err != nil {
		return fmt.Errorf("create virtual disk %s: %w", vol.Path, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("create virtual disk %s: %w", vol.Path, err)
	}

	m.logger.Info("Virtual disk created",
		zap.String("vm", vol.VMName),
		zap.String("path", vol.Path),
		zap.Int64("size_mib", vol.SizeMiB),
	)
	return nil
}

// DeleteDisk destroys the backing virtual disk for one volume.
func (m *DiskManager) DeleteDisk(ctx context.Context, vol *domain.Volume) error {
	dc, err := m.resolveDatacenter(ctx)
	if err != nil {
		return err
	}

	vdm := object.NewVirtualDiskManager(m.client.Client.Client)
	task, err := vdm.DeleteVirtualDisk(ctx, vol.Path, dc)
	if err != nil {
		return fmt.Errorf("delete virtual disk %s: %w", vol.Path, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("delete virtual disk %s: %w", vol.Path, err)
	}

	m.logger.Info("Virtual disk deleted",
		zap.String("vm", vol.VMName),
		zap.String("path", vol.Path),
	)
	return nil
}

func adapterType(bus domain.BusType) string {
	switch bus {
	case domain.BusTypeIDE:
		return string(types.VirtualDiskAdapterTypeIde)
	default:
		return string(types.VirtualDiskAdapterTypeLsiLogic)
	}
}

func diskType(p domain.ProvisioningType) string {
	switch p {
	case domain.ProvisioningThickLazy:
		return string(types.VirtualDiskTypePreallocated)
	case domain.ProvisioningThickEager:
		return string(types.VirtualDiskTypeEagerZeroedThick)
	default:
		return string(types.VirtualDiskTypeThin)
	}
}
