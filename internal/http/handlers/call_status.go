package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/healthmatch/emergency-intake/internal/config"
	"github.com/healthmatch/emergency-intake/internal/telephony"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

// statusFetcher is the slice of the telephony client the poller needs.
type statusFetcher interface {
	FetchCallStatus(ctx context.Context, callSID string) (*telephony.CallStatus, error)
	MissingCredentials() config.MissingCredentials
}

// CallStatusHandler serves live call state polled straight from the
// provider, independent of the webhook/record path the intake relies on.
type CallStatusHandler struct {
	fetcher statusFetcher
	cache   *telephony.StatusCache
	logger  *logging.Logger
}

// NewCallStatusHandler creates the handler. The cache may be nil.
func NewCallStatusHandler(fetcher statusFetcher, cache *telephony.StatusCache, logger *logging.Logger) *CallStatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CallStatusHandler{fetcher: fetcher, cache: cache, logger: logger}
}

// CallStatusResponse is the poll payload returned to the client.
type CallStatusResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	Duration    int    `json:"duration"`
	Direction   string `json:"direction"`
	From        string `json:"from"`
	To          string `json:"to"`
	DateCreated string `json:"dateCreated"`
	DateUpdated string `json:"dateUpdated"`
}

// pollCredentials reports only the credentials the poll endpoint needs.
type pollCredentials struct {
	AccountSID bool `json:"accountSid"`
	AuthToken  bool `json:"authToken"`
}

// Poll handles POST /emergency/call-status.
func (h *CallStatusHandler) Poll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CallSID string `json:"callSid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	missing := h.fetcher.MissingCredentials()
	if missing.AccountSID || missing.AuthToken {
		h.logger.Error("twilio credentials missing for status poll")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "Twilio credentials are not configured. Please set up the required environment variables.",
			"missingCredentials": pollCredentials{
				AccountSID: missing.AccountSID,
				AuthToken:  missing.AuthToken,
			},
		})
		return
	}
	if req.CallSID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Call SID is required"})
		return
	}

	if cached := h.cache.Get(r.Context(), req.CallSID); cached != nil {
		writeJSON(w, http.StatusOK, toStatusResponse(cached))
		return
	}

	status, err := h.fetcher.FetchCallStatus(r.Context(), req.CallSID)
	if err != nil {
		var carrier *telephony.CarrierError
		if errors.As(err, &carrier) {
			h.logger.Error("twilio status poll failed", "status", carrier.StatusCode, "message", carrier.Message)
			writeJSON(w, http.StatusInternalServerError, carrierErrorResponse{
				Error: "Failed to retrieve call status",
				Details: map[string]any{
					"code":    carrier.Code,
					"message": carrier.Message,
				},
			})
			return
		}
		h.logger.Error("call status poll failed", "error", err, "call_sid", req.CallSID)
		writeJSON(w, http.StatusInternalServerError, carrierErrorResponse{Error: "Failed to retrieve call status"})
		return
	}
	h.cache.Set(r.Context(), status)

	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

func toStatusResponse(status *telephony.CallStatus) CallStatusResponse {
	return CallStatusResponse{
		Success:     true,
		Status:      status.Status,
		Duration:    status.Duration,
		Direction:   status.Direction,
		From:        status.From,
		To:          status.To,
		DateCreated: status.DateCreated,
		DateUpdated: status.DateUpdated,
	}
}
