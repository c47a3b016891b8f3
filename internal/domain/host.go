package domain

// ConnectionState represents a host's connection to the management endpoint.
type ConnectionState string

const (
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateNotResponding ConnectionState = "notResponding"
)

// HostResource is one hypervisor host in the capacity snapshot: its cluster
// membership, connection state, and the datastores it can see split into the
// local and shared pools. The maps are owned by the snapshot for the duration
// of one planning session.
type HostResource struct {
	Name            string                        `json:"name"`
	Cluster         string                        `json:"cluster"`
	ConnectionState ConnectionState               `json:"connection_state"`
	Local           map[string]*DatastoreResource `json:"local"`
	Shared          map[string]*DatastoreResource `json:"shared"`
}

// NewHostResource creates a host record with empty datastore pools.
func NewHostResource(name, cluster string, state ConnectionState) *HostResource {
	return &HostResource{
		Name:            name,
		Cluster:         cluster,
		ConnectionState: state,
		Local:           make(map[string]*DatastoreResource),
		Shared:          make(map[string]*DatastoreResource),
	}
}

// IsConnected reports whether the host is eligible for placement.
func (h *HostResource) IsConnected() bool {
	return h.ConnectionState == ConnectionStateConnected
}

// Datastore looks a datastore up by name through either pool. Both pools
// reference the same record when a datastore is visible both ways.
func (h *HostResource) Datastore(name string) *DatastoreResource {
	if ds, ok := h.Local[name]; ok {
		return ds
	}
	if ds, ok := h.Shared[name]; ok {
		return ds
	}
	return nil
}

// LocalSumMiB returns the summed real free space of the local pool. The sum
// is recomputed on every call so tentative reservations are always visible.
func (h *HostResource) LocalSumMiB() int64 {
	var sum int64
	for _, ds := range h.Local {
		sum += ds.RealFreeMiB()
	}
	return sum
}

// SharedSumMiB returns the summed real free space of the shared pool.
func (h *HostResource) SharedSumMiB() int64 {
	var sum int64
	for _, ds := range h.Shared {
		sum += ds.RealFreeMiB()
	}
	return sum
}
