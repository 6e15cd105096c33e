package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clearid-dev/sandbox-guard/guard"
	"github.com/clearid-dev/sandbox-guard/internal/log"
)

type healthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, storeStatus := "ok", "ok"
	if _, _, err := s.store.Get(r.Context(), "sandbox:health_probe"); err != nil {
		status, storeStatus = "degraded", "unreachable"
		log.Logger().Warn("store health probe failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Store:     storeStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGetFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := s.guard.Flags(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "store_unavailable",
			"message": "could not read sandbox flags",
		})
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handlePutFlags(w http.ResponseWriter, r *http.Request) {
	var flags guard.Flags
	if err := json.NewDecoder(r.Body).Decode(&flags); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_body",
			"message": "expected a JSON object with admin_enabled and production_enabled",
		})
		return
	}
	if err := s.guard.SetFlags(r.Context(), flags); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "store_unavailable",
			"message": "could not persist sandbox flags",
		})
		return
	}
	log.Logger().Info("sandbox flags updated",
		zap.Bool("admin_enabled", flags.AdminEnabled),
		zap.Bool("production_enabled", flags.ProductionEnabled))
	writeJSON(w, http.StatusOK, flags)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Logger().Error("failed to write response", zap.Error(err))
	}
}
