package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/healthmatch/emergency-intake/internal/emergency"
	observemetrics "github.com/healthmatch/emergency-intake/internal/observability/metrics"
	"github.com/healthmatch/emergency-intake/internal/telephony"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

var webhookTracer = otel.Tracer("healthmatch.internal.status_webhook")

// StatusWebhookHandler reconciles provider-pushed call lifecycle events
// into the call record. It is an out-of-band write path independent of the
// step handlers and always wins: status updates are unconditional, with no
// state-machine guard. Last write wins when the two race.
type StatusWebhookHandler struct {
	repo          emergency.Repository
	logger        *logging.Logger
	metrics       *observemetrics.CallMetrics
	baseURL       string
	webhookSecret string
}

// StatusWebhookConfig configures the StatusWebhookHandler.
type StatusWebhookConfig struct {
	Repo          emergency.Repository
	Logger        *logging.Logger
	Metrics       *observemetrics.CallMetrics
	BaseURL       string
	WebhookSecret string
}

// NewStatusWebhookHandler creates the handler.
func NewStatusWebhookHandler(cfg StatusWebhookConfig) *StatusWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &StatusWebhookHandler{
		repo:          cfg.Repo,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		baseURL:       cfg.BaseURL,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Handle processes POST /webhooks/twilio/status. The response is always an
// empty acknowledgment document, whatever happens internally; failing the
// webhook response would only earn us a provider retry storm.
func (h *StatusWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "status_webhook.handle")
	defer span.End()
	start := time.Now()

	defer func() {
		h.metrics.ObserveWebhookLatency("status", time.Since(start).Seconds())
		telephony.WriteTwiML(w, telephony.NewTwiML())
	}()

	if h.webhookSecret != "" {
		if !telephony.ValidateWebhookSignature(r, h.webhookSecret, h.baseURL+r.URL.RequestURI()) {
			h.logger.Warn("invalid provider signature on status webhook")
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse status webhook form", "error", err)
		return
	}

	callSID := strings.TrimSpace(r.FormValue("CallSid"))
	callStatus := strings.TrimSpace(r.FormValue("CallStatus"))
	if callSID == "" || callStatus == "" {
		h.logger.Warn("status webhook missing call sid or status")
		return
	}
	var duration *int
	if raw := strings.TrimSpace(r.FormValue("CallDuration")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			duration = &parsed
		}
	}

	h.logger.Info("received status update", "call_sid", callSID, "status", callStatus)
	h.metrics.ObserveWebhookEvent(callStatus)

	status := emergency.Status(callStatus)
	if err := h.repo.UpdateStatus(ctx, callSID, status, duration); err != nil {
		if errors.Is(err, emergency.ErrCallNotFound) {
			// No record and nothing to reconstruct from: logged and
			// ignored, no record is mutated.
			h.logger.Warn("status update for unknown call", "call_sid", callSID)
		} else {
			h.logger.Error("failed to update call record", "error", err, "call_sid", callSID)
		}
		return
	}
	h.logger.Info("updated call record", "call_sid", callSID)

	if status.IsTerminal() {
		h.reconcileTerminal(ctx, callSID)
	}
}

// reconcileTerminal flags calls that ended without capturing usable intake
// data: a terminal provider status with empty symptoms becomes incomplete.
func (h *StatusWebhookHandler) reconcileTerminal(ctx context.Context, callSID string) {
	call, err := h.repo.GetByProviderCallID(ctx, callSID)
	if err != nil {
		h.logger.Error("failed to load call for terminal check", "error", err, "call_sid", callSID)
		return
	}
	if call.HasSymptoms() {
		return
	}
	h.logger.Warn("call completed without collecting symptoms", "call_sid", callSID)
	if err := h.repo.UpdateStatus(ctx, callSID, emergency.StatusIncomplete, nil); err != nil {
		h.logger.Error("failed to mark call incomplete", "error", err, "call_sid", callSID)
	}
}
