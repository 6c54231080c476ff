package clinic

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler provides HTTP endpoints for clinic configuration management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new clinic config HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("clinic: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Routes returns a chi router with clinic admin routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{clinicID}/config", h.GetConfig)
	r.Put("/{clinicID}/config", h.UpdateConfig)
	return r
}

// GetConfig returns the clinic configuration.
// GET /admin/clinics/{clinicID}/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeConfig(w, h.logger, cfg)
}

// UpdateConfigRequest is the request body for updating clinic config.
type UpdateConfigRequest struct {
	Name           string      `json:"name,omitempty"`
	Timezone       string      `json:"timezone,omitempty"`
	WeekdayHours   *DayHours   `json:"weekday_hours,omitempty"`
	WeekendHours   *DayHours   `json:"weekend_hours,omitempty"`
	Lunch          *LunchBreak `json:"lunch,omitempty"`
	HoldTTLSeconds *int        `json:"hold_ttl_seconds,omitempty"`
	Services       []Service   `json:"services,omitempty"`
}

// UpdateConfig applies a partial update to the clinic configuration.
// PUT /admin/clinics/{clinicID}/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Timezone != "" {
		cfg.Timezone = req.Timezone
	}
	if req.WeekdayHours != nil {
		cfg.WeekdayHours = *req.WeekdayHours
	}
	if req.WeekendHours != nil {
		cfg.WeekendHours = *req.WeekendHours
	}
	if req.Lunch != nil {
		cfg.Lunch = *req.Lunch
	}
	if req.HoldTTLSeconds != nil {
		cfg.HoldTTLSeconds = *req.HoldTTLSeconds
	}
	if req.Services != nil {
		cfg.Services = req.Services
	}

	if err := cfg.Validate(); err != nil {
		http.Error(w, `{"error": "invalid clinic config"}`, http.StatusBadRequest)
		return
	}
	if err := h.store.Set(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to save config"}`, http.StatusInternalServerError)
		return
	}

	updatedBy := "unknown"
	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		updatedBy = claims.Subject
	}
	h.logger.Info("clinic config updated", "clinic_id", clinicID, "services", len(cfg.Services), "updated_by", updatedBy)
	writeConfig(w, h.logger, cfg)
}

func writeConfig(w http.ResponseWriter, logger *logging.Logger, cfg *Config) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		logger.Error("failed to encode clinic config", "clinic_id", cfg.ClinicID, "error", err)
	}
}
