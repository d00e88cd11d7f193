package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthmatch/emergency-intake/internal/config"
	"github.com/healthmatch/emergency-intake/internal/emergency"
	observemetrics "github.com/healthmatch/emergency-intake/internal/observability/metrics"
	"github.com/healthmatch/emergency-intake/internal/telephony"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

// callPlacer is the slice of the telephony client the initiator needs.
type callPlacer interface {
	PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (*telephony.PlacedCall, error)
	Configured() bool
	MissingCredentials() config.MissingCredentials
}

// EmergencyCallHandler initiates outbound emergency calls and serves the
// stored records back to the client.
type EmergencyCallHandler struct {
	repo    emergency.Repository
	placer  callPlacer
	logger  *logging.Logger
	metrics *observemetrics.CallMetrics
	baseURL string
}

// EmergencyCallConfig configures the EmergencyCallHandler.
type EmergencyCallConfig struct {
	Repo    emergency.Repository
	Placer  callPlacer
	Logger  *logging.Logger
	Metrics *observemetrics.CallMetrics
	// BaseURL is the public origin the provider fetches dialogue from and
	// posts status events to.
	BaseURL string
}

// NewEmergencyCallHandler creates the handler.
func NewEmergencyCallHandler(cfg EmergencyCallConfig) *EmergencyCallHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &EmergencyCallHandler{
		repo:    cfg.Repo,
		placer:  cfg.Placer,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		baseURL: cfg.BaseURL,
	}
}

// InitiateCallRequest is the client request to place an emergency call.
type InitiateCallRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	UserID      string `json:"userId,omitempty"`
	PatientName string `json:"patientName,omitempty"`
}

// InitiateCallResponse reports the placed call back to the client.
type InitiateCallResponse struct {
	Success         bool   `json:"success"`
	CallSID         string `json:"callSid"`
	Status          string `json:"status"`
	EmergencyCallID string `json:"emergencyCallId,omitempty"`
}

type configErrorResponse struct {
	Error              string                    `json:"error"`
	MissingCredentials config.MissingCredentials `json:"missingCredentials"`
}

type carrierErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// InitiateCall handles POST /emergency/calls. Exactly one placement
// attempt is made; a user pressing "start call" again creates a brand-new
// record rather than retrying this one.
func (h *EmergencyCallHandler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req InitiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode initiate request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !h.placer.Configured() {
		h.logger.Error("twilio credentials missing")
		h.metrics.ObserveCallPlaced("not_configured")
		writeJSON(w, http.StatusServiceUnavailable, configErrorResponse{
			Error:              "Twilio credentials are not configured. Please set up the required environment variables.",
			MissingCredentials: h.placer.MissingCredentials(),
		})
		return
	}

	if req.PhoneNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Phone number is required"})
		return
	}
	formattedPhone, err := emergency.ValidatePhoneNumber(req.PhoneNumber)
	if err != nil {
		h.metrics.ObserveCallPlaced("invalid_number")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Phone number is too short"})
		return
	}

	patientName := req.PatientName
	if patientName == "" {
		patientName = "Unknown"
	}

	call := &emergency.EmergencyCall{
		UserID:      req.UserID,
		PatientName: patientName,
		PhoneNumber: formattedPhone,
		Symptoms:    []string{},
		Address:     emergency.AddressPlaceholder,
		Status:      emergency.StatusInitiated,
	}
	if err := h.repo.Create(r.Context(), call); err != nil {
		// The call still goes out; the intake endpoints self-heal a
		// missing record once the provider starts talking to them.
		h.logger.Error("failed to create emergency call record", "error", err)
		call = nil
	} else {
		h.logger.Info("created emergency call record", "call_id", call.ID)
	}

	dialogueURL := fmt.Sprintf("%s/voice/dialogue?patientName=%s&userId=%s",
		h.baseURL, url.QueryEscape(patientName), url.QueryEscape(req.UserID))

	placed, err := h.placer.PlaceCall(r.Context(), telephony.PlaceCallRequest{
		To:               formattedPhone,
		DialogueURL:      dialogueURL,
		StatusWebhookURL: h.baseURL + "/webhooks/twilio/status",
		StatusEvents:     []string{"initiated", "ringing", "answered", "completed"},
	})
	if err != nil {
		h.metrics.ObserveCallPlaced("rejected")
		h.respondPlacementError(w, err)
		return
	}
	h.metrics.ObserveCallPlaced("placed")

	resp := InitiateCallResponse{
		Success: true,
		CallSID: placed.CallSID,
		Status:  placed.Status,
	}
	if call != nil {
		if err := h.repo.SetProviderCall(r.Context(), call.ID, placed.CallSID, emergency.Status(placed.Status)); err != nil {
			h.logger.Error("failed to update emergency call with sid", "error", err, "call_id", call.ID)
		} else {
			h.logger.Info("updated emergency call with provider sid", "call_id", call.ID, "call_sid", placed.CallSID)
		}
		resp.EmergencyCallID = call.ID.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *EmergencyCallHandler) respondPlacementError(w http.ResponseWriter, err error) {
	var notConfigured *telephony.NotConfiguredError
	if errors.As(err, &notConfigured) {
		writeJSON(w, http.StatusServiceUnavailable, configErrorResponse{
			Error:              "Twilio credentials are not configured. Please set up the required environment variables.",
			MissingCredentials: notConfigured.Missing,
		})
		return
	}
	var carrier *telephony.CarrierError
	if errors.As(err, &carrier) {
		h.logger.Error("twilio rejected the call", "status", carrier.StatusCode, "code", carrier.Code, "message", carrier.Message)
		writeJSON(w, http.StatusInternalServerError, carrierErrorResponse{
			Error: "Failed to initiate call",
			Details: map[string]any{
				"code":    carrier.Code,
				"message": carrier.Message,
			},
		})
		return
	}
	h.logger.Error("call placement failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, carrierErrorResponse{Error: "Failed to initiate call"})
}

// GetCall handles GET /emergency/calls/{callID}.
func (h *EmergencyCallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "callID"))
	if err != nil {
		http.Error(w, "invalid call id", http.StatusBadRequest)
		return
	}
	call, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, emergency.ErrCallNotFound) {
			http.Error(w, "call not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load emergency call", "error", err, "call_id", id)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// ListCalls handles GET /emergency/calls?limit=N, most recent first.
func (h *EmergencyCallHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	calls, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list emergency calls", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls": calls,
		"count": len(calls),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
