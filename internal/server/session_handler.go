package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
	"github.com/virtforge/placementd/internal/planner"
)

// InventorySource supplies a fresh host and datastore snapshot, typically
// from the hypervisor inventory.
type InventorySource interface {
	CollectSnapshot(ctx context.Context) (map[string]*domain.HostResource, error)
}

// SessionHandler rebuilds the planning session from a fresh inventory
// snapshot. Tentative reservations held in the old session are discarded.
type SessionHandler struct {
	server *Server
	logger *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(s *Server) *SessionHandler {
	return &SessionHandler{server: s, logger: s.logger.Named("session")}
}

// ServeHTTP handles POST /api/session/refresh.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(h.logger, w, http.StatusMethodNotAllowed, "method_not_allowed", "Expected POST")
		return
	}
	if h.server.inventory == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "no_inventory", "No hypervisor connection is configured")
		return
	}

	snapshot, err := h.server.inventory.CollectSnapshot(r.Context())
	if err != nil {
		writeError(h.logger, w, http.StatusBadGateway, "inventory_failed", err.Error())
		return
	}

	session := planner.NewSession(snapshot, planner.Config{
		BufferMiB: h.server.config.Planner.BufferMiB,
	}, h.server.logger)
	h.server.planSvc.ReplaceSession(session)

	h.logger.Info("Session refreshed", zap.Int("hosts", len(snapshot)))
	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"hosts": session.Capacity(),
	})
}
