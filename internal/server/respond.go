package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/domain"
)

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, code, message string) {
	logger.Warn("API error",
		zap.Int("status", status),
		zap.String("code", code),
		zap.String("message", message),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
func writeDomainError(logger *zap.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(logger, w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(logger, w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(logger, w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInsufficientCapacity), errors.Is(err, domain.ErrNoEligibleDatastore):
		writeError(logger, w, http.StatusConflict, "insufficient_capacity", err.Error())
	default:
		writeError(logger, w, http.StatusInternalServerError, "internal", err.Error())
	}
}
