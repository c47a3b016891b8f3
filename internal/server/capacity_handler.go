package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// CapacityHandler exposes the capacity snapshot and the host pre-filter.
type CapacityHandler struct {
	server *Server
	logger *zap.Logger
}

// NewCapacityHandler creates a new capacity handler.
func NewCapacityHandler(s *Server) *CapacityHandler {
	return &CapacityHandler{server: s, logger: s.logger.Named("capacity")}
}

// ServeHTTP handles capacity requests.
// Routes:
//   - GET /api/capacity                        - host capacity snapshot
//   - GET /api/capacity?local=N&shared=M&host= - hosts whose combined free
//     space covers the given requirement, honoring tentative reservations
func (h *CapacityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(h.logger, w, http.StatusMethodNotAllowed, "method_not_allowed", "Expected GET")
		return
	}

	session := h.server.planSvc.Session()
	capacity := session.Capacity()

	q := r.URL.Query()
	if q.Get("local") == "" && q.Get("shared") == "" {
		writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
			"hosts": capacity,
		})
		return
	}

	local, err := parseMiB(q.Get("local"))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_argument", "local must be a non-negative integer")
		return
	}
	shared, err := parseMiB(q.Get("shared"))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_argument", "shared must be a non-negative integer")
		return
	}

	hostNames := q["host"]
	if len(hostNames) == 0 {
		for _, hc := range capacity {
			hostNames = append(hostNames, hc.Name)
		}
	}

	eligible := session.QueryCapacity(hostNames, local, shared)
	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"eligible": eligible,
		"hosts":    capacity,
	})
}

func parseMiB(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
