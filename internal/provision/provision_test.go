package provision

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// MockDiskAPI records calls and fails on demand.
type MockDiskAPI struct {
	created     []string
	deleted     []string
	failCreate  map[string]error
	failDelete  map[string]error
}

func NewMockDiskAPI() *MockDiskAPI {
	return &MockDiskAPI{
		failCreate: make(map[string]error),
		failDelete: make(map[string]error),
	}
}

func (m *MockDiskAPI) CreateDisk(ctx context.Context, vol *domain.Volume) error {
	if err, ok := m.failCreate[vol.Path]; ok {
		return err
	}
	m.created = append(m.created, vol.Path)
	return nil
}

func (m *MockDiskAPI) DeleteDisk(ctx context.Context, vol *domain.Volume) error {
	if err, ok := m.failDelete[vol.Path]; ok {
		return err
	}
	m.deleted = append(m.deleted, vol.Path)
	return nil
}

func testBatch() []*domain.VM {
	vm := domain.NewVM("vm1", 512,
		domain.NewDisk(domain.DiskCategorySystem, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, 100, true),
		domain.NewDisk(domain.DiskCategorySwap, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, 100, true),
		domain.NewDisk(domain.DiskCategoryData, domain.DiskTierLocal, domain.ProvisioningThin, domain.BusTypeSCSI, 100, true),
	)
	for _, disk := range vm.Disks() {
		unit := vm.NextUnitNumber(disk.Bus)
		vol := &domain.Volume{
			VMName:       vm.Name,
			Provisioning: disk.Provisioning,
			SizeMiB:      disk.SizeMiB,
			Path:         domain.VolumePath("ds1", vm.Name, disk.Tier, disk.Bus, unit),
			Datastore:    "ds1",
			Bus:          disk.Bus,
			Unit:         unit,
		}
		disk.Volumes[vol.Key()] = vol
	}
	return []*domain.VM{vm}
}

func TestCreateVolumesSuccess(t *testing.T) {
	api := NewMockDiskAPI()
	svc := NewService(api, zap.NewNop())

	result := svc.CreateVolumes(context.Background(), testBatch())
	if result.Failed() {
		t.Fatalf("batch failed: %s", result.Message)
	}
	if len(api.created) != 3 {
		t.Errorf("created %d volumes, want 3", len(api.created))
	}
	if len(api.deleted) != 0 {
		t.Errorf("deleted %d volumes on success path", len(api.deleted))
	}
}

func TestCreateVolumesRollsBackInReverseOrder(t *testing.T) {
	batch := testBatch()
	vols := batchVolumes(batch)
	if len(vols) != 3 {
		t.Fatalf("expected 3 volumes, got %d", len(vols))
	}

	api := NewMockDiskAPI()
	api.failCreate[vols[2].Path] = errors.New("datastore offline")
	svc := NewService(api, zap.NewNop())

	result := svc.CreateVolumes(context.Background(), batch)
	if !result.Failed() {
		t.Fatal("expected batch failure")
	}
	if len(api.created) != 2 {
		t.Fatalf("created %d volumes before failure, want 2", len(api.created))
	}
	// Rollback destroys in reverse creation order.
	if len(api.deleted) != 2 || api.deleted[0] != api.created[1] || api.deleted[1] != api.created[0] {
		t.Errorf("rollback order = %v, created = %v", api.deleted, api.created)
	}
}

func TestCreateVolumesReportsFailureMessage(t *testing.T) {
	batch := testBatch()
	vols := batchVolumes(batch)

	api := NewMockDiskAPI()
	api.failCreate[vols[0].Path] = errors.New("insufficient permissions")
	svc := NewService(api, zap.NewNop())

	result := svc.CreateVolumes(context.Background(), batch)
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if result.Message == "" {
		t.Error("failure message missing")
	}
}

func TestDeleteVolumesContinuesPastFailures(t *testing.T) {
	batch := testBatch()
	vols := batchVolumes(batch)

	api := NewMockDiskAPI()
	api.failDelete[vols[1].Path] = errors.New("file locked")
	svc := NewService(api, zap.NewNop())

	result := svc.DeleteVolumes(context.Background(), batch)
	if !result.Failed() {
		t.Fatal("expected failure to be reported")
	}
	if len(api.deleted) != 2 {
		t.Errorf("deleted %d volumes, want 2 despite one failure", len(api.deleted))
	}
}
