package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

// PlanHandler provides REST endpoints for the plan lifecycle.
type PlanHandler struct {
	server *Server
	logger *zap.Logger
}

// NewPlanHandler creates a new plan handler.
func NewPlanHandler(s *Server) *PlanHandler {
	return &PlanHandler{server: s, logger: s.logger.Named("plans")}
}

// DiskRequest describes one disk of a VM in a plan request.
type DiskRequest struct {
	Category     string `json:"category"`
	Tier         string `json:"tier"`
	Provisioning string `json:"provisioning"`
	Bus          string `json:"bus"`
	SizeMiB      int64  `json:"size_mib"`
	Affinity     *bool  `json:"affinity,omitempty"`
}

// VMRequest describes one VM of a plan request.
type VMRequest struct {
	Name        string        `json:"name"`
	MemoryMiB   int64         `json:"memory_mib"`
	NamePattern string        `json:"name_pattern,omitempty"`
	Disks       []DiskRequest `json:"disks"`
}

// CreatePlanRequest is the body of POST /api/plans.
type CreatePlanRequest struct {
	Hosts []string    `json:"hosts,omitempty"`
	VMs   []VMRequest `json:"vms"`
}

// CommissionRequest is the body of POST /api/plans/{id}/commission.
type CommissionRequest struct {
	Host string `json:"host"`
}

// ServeHTTP handles plan lifecycle requests.
// Routes:
//   - POST /api/plans                      - plan a VM batch across hosts
//   - GET  /api/plans                      - list plans
//   - GET  /api/plans/{id}                 - get one plan
//   - POST /api/plans/{id}/commission      - accept one host's placement
//   - POST /api/plans/{id}/recover         - unwind a tentative plan
//   - POST /api/plans/{id}/decommission    - release a committed plan
//   - POST /api/plans/{id}/provision       - create the planned volumes
func (h *PlanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/plans"), "/")

	if path == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			writeError(h.logger, w, http.StatusMethodNotAllowed, "method_not_allowed", "Expected GET or POST")
		}
		return
	}

	parts := strings.Split(path, "/")
	planID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(h.logger, w, http.StatusMethodNotAllowed, "method_not_allowed", "Expected GET")
			return
		}
		h.handleGet(w, r, planID)
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPost {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_path", "Expected POST /api/plans/{id}/{action}")
		return
	}

	switch parts[1] {
	case "commission":
		h.handleCommission(w, r, planID)
	case "recover":
		h.handleRecover(w, r, planID)
	case "decommission":
		h.handleDecommission(w, r, planID)
	case "provision":
		h.handleProvision(w, r, planID)
	default:
		writeError(h.logger, w, http.StatusNotFound, "unknown_action", fmt.Sprintf("Unknown action %q", parts[1]))
	}
}

func (h *PlanHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_body", "Failed to decode request body")
		return
	}

	vms, err := buildBatch(req.VMs)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	plan, err := h.server.planSvc.CreatePlan(r.Context(), req.Hosts, vms)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, plan)
}

func (h *PlanHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(h.logger, w, http.StatusBadRequest, "invalid_argument", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	list, err := h.server.planSvc.List(r.Context(), limit)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{"plans": list})
}

func (h *PlanHandler) handleGet(w http.ResponseWriter, r *http.Request, planID string) {
	plan, err := h.server.planSvc.Get(r.Context(), planID)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, plan)
}

func (h *PlanHandler) handleCommission(w http.ResponseWriter, r *http.Request, planID string) {
	var req CommissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_body", "Failed to decode request body")
		return
	}
	if req.Host == "" {
		writeError(h.logger, w, http.StatusBadRequest, "missing_host", "Host name is required")
		return
	}

	plan, err := h.server.planSvc.Commission(r.Context(), planID, req.Host)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, plan)
}

func (h *PlanHandler) handleRecover(w http.ResponseWriter, r *http.Request, planID string) {
	plan, err := h.server.planSvc.Recover(r.Context(), planID)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, plan)
}

func (h *PlanHandler) handleDecommission(w http.ResponseWriter, r *http.Request, planID string) {
	plan, err := h.server.planSvc.Release(r.Context(), planID)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, plan)
}

func (h *PlanHandler) handleProvision(w http.ResponseWriter, r *http.Request, planID string) {
	plan, result, err := h.server.planSvc.Provision(r.Context(), planID)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"plan":   plan,
		"result": result,
	})
}

// buildBatch converts request DTOs into domain VMs.
func buildBatch(reqs []VMRequest) ([]*domain.VM, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("at least one VM is required")
	}

	vms := make([]*domain.VM, 0, len(reqs))
	for _, req := range reqs {
		if req.Name == "" {
			return nil, fmt.Errorf("VM name is required")
		}
		if req.MemoryMiB < 0 {
			return nil, fmt.Errorf("VM %q: memory_mib must be non-negative", req.Name)
		}

		var system, swap, data *domain.Disk
		for _, d := range req.Disks {
			disk, err := buildDisk(req.Name, d)
			if err != nil {
				return nil, err
			}
			switch disk.Category {
			case domain.DiskCategorySystem:
				if system != nil {
					return nil, fmt.Errorf("VM %q: duplicate system disk", req.Name)
				}
				system = disk
			case domain.DiskCategorySwap:
				if swap != nil {
					return nil, fmt.Errorf("VM %q: duplicate swap disk", req.Name)
				}
				swap = disk
			case domain.DiskCategoryData:
				if data != nil {
					return nil, fmt.Errorf("VM %q: duplicate data disk", req.Name)
				}
				data = disk
			}
		}
		if system == nil {
			return nil, fmt.Errorf("VM %q: a system disk is required", req.Name)
		}

		vm := domain.NewVM(req.Name, req.MemoryMiB, system, swap, data)
		vm.NamePattern = req.NamePattern
		vms = append(vms, vm)
	}
	return vms, nil
}

func buildDisk(vmName string, req DiskRequest) (*domain.Disk, error) {
	category := domain.DiskCategory(strings.ToUpper(req.Category))
	switch category {
	case domain.DiskCategorySystem, domain.DiskCategorySwap, domain.DiskCategoryData:
	default:
		return nil, fmt.Errorf("VM %q: unknown disk category %q", vmName, req.Category)
	}

	tier := domain.DiskTierLocal
	if req.Tier != "" {
		tier = domain.DiskTier(strings.ToUpper(req.Tier))
		if tier != domain.DiskTierLocal && tier != domain.DiskTierShared {
			return nil, fmt.Errorf("VM %q: unknown disk tier %q", vmName, req.Tier)
		}
	}

	provisioning := domain.ProvisioningThin
	if req.Provisioning != "" {
		provisioning = domain.ProvisioningType(strings.ToUpper(req.Provisioning))
		switch provisioning {
		case domain.ProvisioningThin, domain.ProvisioningThickLazy, domain.ProvisioningThickEager:
		default:
			return nil, fmt.Errorf("VM %q: unknown provisioning type %q", vmName, req.Provisioning)
		}
	}

	bus := domain.BusTypeSCSI
	if req.Bus != "" {
		bus = domain.BusType(strings.ToUpper(req.Bus))
		switch bus {
		case domain.BusTypeSCSI, domain.BusTypeIDE, domain.BusTypeSATA:
		default:
			return nil, fmt.Errorf("VM %q: unknown bus type %q", vmName, req.Bus)
		}
	}

	if req.SizeMiB <= 0 {
		return nil, fmt.Errorf("VM %q: %s disk size_mib must be positive", vmName, strings.ToLower(string(category)))
	}

	affinity := true
	if req.Affinity != nil {
		affinity = *req.Affinity
	}
	return domain.NewDisk(category, tier, provisioning, bus, req.SizeMiB, affinity), nil
}
