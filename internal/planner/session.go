// Package planner implements capacity planning for batches of VM disk sets:
// a tentative-reservation ledger over a capacity snapshot and the greedy
// bin-packing that places each VM's disks onto a host's datastores.
package planner

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// Config holds the planner tunables.
type Config struct {
	// BufferMiB is the safety margin kept free on every datastore. A
	// candidate whose real free space is at or below the buffer is never
	// used, and fit checks subtract it from the candidate's free space.
	BufferMiB int64
}

// DefaultBufferMiB absorbs metadata and rounding overhead on a datastore.
const DefaultBufferMiB = 512

// Session owns one capacity snapshot and its reservation ledger for the
// lifetime of one planning session: fetch, plan, commit or recover, discard.
// All mutations of the snapshot are serialized behind the session mutex; the
// snapshot must not be shared between sessions.
type Session struct {
	mu     sync.Mutex
	hosts  map[string]*domain.HostResource
	config Config
	logger *zap.Logger
}

// NewSession wraps a freshly fetched capacity snapshot.
func NewSession(hosts map[string]*domain.HostResource, config Config, logger *zap.Logger) *Session {
	if config.BufferMiB <= 0 {
		config.BufferMiB = DefaultBufferMiB
	}
	return &Session{
		hosts:  hosts,
		config: config,
		logger: logger.With(zap.String("component", "planner")),
	}
}

// Host returns one host record from the snapshot, nil if unknown.
func (s *Session) Host(name string) *domain.HostResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hosts[name]
}

// HostCapacity is a point-in-time capacity view of one host.
type HostCapacity struct {
	Name         string                 `json:"name"`
	Cluster      string                 `json:"cluster"`
	State        domain.ConnectionState `json:"state"`
	LocalFreeMiB int64                  `json:"local_free_mib"`
	SharedFreeMiB int64                 `json:"shared_free_mib"`
}

// Capacity reports every host's current slack, reservations included.
func (s *Session) Capacity() []HostCapacity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HostCapacity, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, HostCapacity{
			Name:          h.Name,
			Cluster:       h.Cluster,
			State:         h.ConnectionState,
			LocalFreeMiB:  h.LocalSumMiB(),
			SharedFreeMiB: h.SharedSumMiB(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BatchRequirements sums the aggregate local and shared space a VM batch
// needs, the totals QueryCapacity pre-filters hosts against.
func BatchRequirements(vms []*domain.VM) (localMiB, sharedMiB int64) {
	for _, vm := range vms {
		l, sh := vm.RequiredMiB()
		localMiB += l
		sharedMiB += sh
	}
	return localMiB, sharedMiB
}
