package domain

import "time"

// PlanStatus tracks where a placement plan sits in its lifecycle.
type PlanStatus string

const (
	// PlanStatusPending holds tentative reservations on every candidate host.
	PlanStatusPending PlanStatus = "PENDING"
	// PlanStatusCommitted means one host's plan was accepted and the others
	// were recovered.
	PlanStatusCommitted PlanStatus = "COMMITTED"
	// PlanStatusRecovered means the whole plan was unwound before acceptance.
	PlanStatusRecovered PlanStatus = "RECOVERED"
	// PlanStatusProvisioned means the committed host's volumes were created.
	PlanStatusProvisioned PlanStatus = "PROVISIONED"
	// PlanStatusReleased means a committed plan's reservations were freed.
	PlanStatusReleased PlanStatus = "RELEASED"
)

// Plan is the persisted outcome of one recommendation run: for each host
// that could fit the whole batch, an independently allocated copy of the
// VM requests.
type Plan struct {
	ID            string           `json:"id"`
	Status        PlanStatus       `json:"status"`
	CommittedHost string           `json:"committed_host,omitempty"`
	Hosts         map[string][]*VM `json:"hosts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HostNames lists the hosts carrying a tentative plan.
func (p *Plan) HostNames() []string {
	names := make([]string, 0, len(p.Hosts))
	for name := range p.Hosts {
		names = append(names, name)
	}
	return names
}

// Clone deep-copies the plan so repository callers cannot mutate stored state.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Hosts = make(map[string][]*VM, len(p.Hosts))
	for host, vms := range p.Hosts {
		copied := make([]*VM, len(vms))
		for i, vm := range vms {
			copied[i] = vm.Clone()
		}
		c.Hosts[host] = copied
	}
	return &c
}
