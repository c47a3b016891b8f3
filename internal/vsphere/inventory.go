package vsphere

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25/mo"
	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

const bytesPerMiB = 1024 * 1024

// CollectSnapshot walks the inventory and builds the capacity snapshot a
// planning session consumes: every host with its cluster membership,
// connection state, and local/shared datastore pools. Each datastore is one
// record shared by every host that sees it, so tentative reservations stay
// consistent across lookup paths.
func (c *Client) CollectSnapshot(ctx context.Context) (map[string]*domain.HostResource, error) {
	m := view.NewManager(c.Client.Client)

	v, err := m.CreateContainerView(ctx, c.ServiceContent.RootFolder,
		[]string{"HostSystem", "Datastore", "ClusterComputeResource"}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory view: %w", err)
	}
	defer func() { _ = v.Destroy(ctx) }()

	var stores []mo.Datastore
	if err := v.Retrieve(ctx, []string{"Datastore"}, []string{"summary"}, &stores); err != nil {
		return nil, fmt.Errorf("failed to retrieve datastores: %w", err)
	}

	var clusters []mo.ClusterComputeResource
	if err := v.Retrieve(ctx, []string{"ClusterComputeResource"}, []string{"name", "host"}, &clusters); err != nil {
		return nil, fmt.Errorf("failed to retrieve clusters: %w", err)
	}

	var hosts []mo.HostSystem
	if err := v.Retrieve(ctx, []string{"HostSystem"}, []string{"name", "runtime.connectionState", "datastore"}, &hosts); err != nil {
		return nil, fmt.Errorf("failed to retrieve hosts: %w", err)
	}

	snapshot := buildSnapshot(hosts, clusters, stores)
	c.logger.Info("Capacity snapshot collected",
		zap.Int("hosts", len(snapshot)),
		zap.Int("datastores", len(stores)),
		zap.Int("clusters", len(clusters)),
	)
	return snapshot, nil
}

// buildSnapshot converts retrieved managed objects into the planner's domain
// records. Split out from the retrieval so it can be exercised without a
// live endpoint.
func buildSnapshot(hosts []mo.HostSystem, clusters []mo.ClusterComputeResource, stores []mo.Datastore) map[string]*domain.HostResource {
	storeByRef := make(map[string]*domain.DatastoreResource, len(stores))
	for _, ds := range stores {
		if !ds.Summary.Accessible {
			continue
		}
		storeByRef[ds.Self.Value] = datastoreResource(ds)
	}

	clusterByHost := make(map[string]string)
	for _, cl := range clusters {
		for _, ref := range cl.Host {
			clusterByHost[ref.Value] = cl.Name
		}
	}

	snapshot := make(map[string]*domain.HostResource, len(hosts))
	for _, hs := range hosts {
		host := domain.NewHostResource(
			hs.Name,
			clusterByHost[hs.Self.Value],
			domain.ConnectionState(hs.Runtime.ConnectionState),
		)
		for _, ref := range hs.Datastore {
			ds, ok := storeByRef[ref.Value]
			if !ok {
				continue
			}
			if ds.Shared {
				host.Shared[ds.Name] = ds
			} else {
				host.Local[ds.Name] = ds
			}
		}
		snapshot[host.Name] = host
	}
	return snapshot
}

func datastoreResource(ds mo.Datastore) *domain.DatastoreResource {
	shared := ds.Summary.MultipleHostAccess != nil && *ds.Summary.MultipleHostAccess
	return &domain.DatastoreResource{
		Name:        ds.Summary.Name,
		Shared:      shared,
		CapacityMiB: ds.Summary.Capacity / bytesPerMiB,
		FreeMiB:     ds.Summary.FreeSpace / bytesPerMiB,
	}
}
