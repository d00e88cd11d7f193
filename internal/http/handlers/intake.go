package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/healthmatch/emergency-intake/internal/emergency"
	observemetrics "github.com/healthmatch/emergency-intake/internal/observability/metrics"
	"github.com/healthmatch/emergency-intake/internal/telephony"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

var intakeTracer = otel.Tracer("healthmatch.internal.intake")

// Spoken lines of the intake dialogue. The caller hears these verbatim.
const (
	greetingLine = "Hello %s, this is the HealthMatch emergency medical assistant. " +
		"We've received your emergency call request. " +
		"I'll be gathering some important information about your medical situation."
	symptomsPrompt = "Please describe your symptoms or medical emergency in detail."
	severityIntro  = "Thank you for describing your symptoms. Now, I need to understand the severity of your condition."
	severityPrompt = "On a scale from low to critical, how severe is your condition? Please say low, medium, high, or critical."
	locationIntro  = "Thank you for providing your severity level. Now, I need to know your location."
	locationPrompt = "Please state your current address or location so we can send help."
	closingLine    = "Thank you for providing your location. We have recorded all your information and will find the nearest available doctor for you. " +
		"Medical assistance will be coordinated based on your condition. Please stay on the line for further instructions or hang up if you need to prepare for emergency services."
	finalLine       = "If this is a life-threatening emergency, please dial 911 directly. Thank you for using our emergency service."
	retryLine       = "I didn't hear anything. Let's try again."
	errorLine       = "I'm sorry, we're experiencing technical difficulties with our emergency system. Please hang up and dial 911 directly if this is a medical emergency."
	locationErrLine = "I'm sorry, we're experiencing technical difficulties processing your location. Your information has been recorded, and we will try to contact you. Please hang up and dial 911 directly if this is a medical emergency."
)

// IntakeHandler drives the scripted phone dialogue: one endpoint per step,
// each persisting partial progress and returning the next TwiML
// instruction. Handlers are stateless; the call record is the only shared
// state and all writes are last-write-wins.
type IntakeHandler struct {
	repo          emergency.Repository
	notifier      emergency.DoctorNotifier
	logger        *logging.Logger
	metrics       *observemetrics.CallMetrics
	baseURL       string
	ourNumber     string
	webhookSecret string
	gatherTimeout int
}

// IntakeConfig configures the IntakeHandler.
type IntakeConfig struct {
	Repo     emergency.Repository
	Notifier emergency.DoctorNotifier
	Logger   *logging.Logger
	Metrics  *observemetrics.CallMetrics
	// BaseURL is the public origin used in Gather actions and redirects.
	BaseURL string
	// OurNumber is the provider number calls originate from; mismatched
	// To values are logged but not rejected.
	OurNumber string
	// WebhookSecret enables provider signature validation when set.
	WebhookSecret string
	// GatherTimeoutSeconds bounds each speech gather; 0 means 5.
	GatherTimeoutSeconds int
}

// NewIntakeHandler creates the handler.
func NewIntakeHandler(cfg IntakeConfig) *IntakeHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.GatherTimeoutSeconds <= 0 {
		cfg.GatherTimeoutSeconds = 5
	}
	if cfg.Notifier == nil {
		cfg.Notifier = emergency.NewLogNotifier(cfg.Logger)
	}
	return &IntakeHandler{
		repo:          cfg.Repo,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		baseURL:       cfg.BaseURL,
		ourNumber:     cfg.OurNumber,
		webhookSecret: cfg.WebhookSecret,
		gatherTimeout: cfg.GatherTimeoutSeconds,
	}
}

// Dialogue handles GET|POST /voice/dialogue: the entry TwiML the provider
// fetches once the call connects. Greets the patient and gathers symptoms.
func (h *IntakeHandler) Dialogue(w http.ResponseWriter, r *http.Request) {
	ctx, span := intakeTracer.Start(r.Context(), "intake.dialogue")
	defer span.End()

	form, ok := h.parseStepForm(w, r, "dialogue")
	if !ok {
		return
	}

	query := r.URL.Query()
	patientName := firstNonEmpty(query.Get("patientName"), "Patient")
	userID := query.Get("userId")
	callSID := firstNonEmpty(query.Get("CallSid"), form.callSID)

	h.logger.Info("dialogue requested", "patient_name", patientName, "call_sid", callSID)

	// The provider may fetch the dialogue before the initiator's record
	// write is visible, or for a call the initiator never placed.
	if callSID != "" && userID != "" {
		_, created, err := h.repo.FindOrCreateByProviderCallID(ctx, callSID, emergency.CallDefaults{
			PatientName: patientName,
			Symptoms:    []string{},
			Address:     "To be collected during call",
			Status:      emergency.StatusInitiated,
		})
		if err != nil {
			h.logger.Error("failed to ensure emergency call record", "error", err, "call_sid", callSID)
		} else if created {
			h.logger.Info("created emergency call record for dialogue fetch", "call_sid", callSID)
		}
	}

	doc := telephony.NewTwiML().
		SaySpeak(fmt.Sprintf(greetingLine, patientName)).
		GatherSpeech(symptomsPrompt, h.baseURL+"/voice/collect-symptoms", h.gatherTimeout).
		SaySpeak(retryLine).
		RedirectTo(fmt.Sprintf("%s/voice/dialogue?patientName=%s&userId=%s",
			h.baseURL, url.QueryEscape(patientName), url.QueryEscape(userID)))
	telephony.WriteTwiML(w, doc)
}

// CollectSymptoms handles POST /voice/collect-symptoms. The utterance
// replaces any previously captured symptoms; only the latest one counts.
func (h *IntakeHandler) CollectSymptoms(w http.ResponseWriter, r *http.Request) {
	ctx, span := intakeTracer.Start(r.Context(), "intake.collect_symptoms")
	defer span.End()
	start := time.Now()

	form, ok := h.parseStepForm(w, r, "collect_symptoms")
	if !ok {
		return
	}
	h.logger.Info("received speech result", "speech", form.speech, "call_sid", form.callSID, "from", form.from)

	result := "no_record"
	if form.callSID != "" && form.speech != "" {
		call, created, err := h.repo.FindOrCreateByProviderCallID(ctx, form.callSID, emergency.CallDefaults{
			PhoneNumber: form.from,
			Symptoms:    []string{form.speech},
			Status:      emergency.StatusCollectingData,
		})
		switch {
		case err != nil:
			// A broken record write must never leave the caller on a
			// dead line; log and keep the dialogue moving.
			h.logger.Error("failed to persist symptoms", "error", err, "call_sid", form.callSID)
			result = "store_error"
		case created:
			h.logger.Info("created emergency call record for untracked call", "call_sid", form.callSID)
			result = "created"
		default:
			if err := h.repo.RecordSymptoms(ctx, call.ID, []string{form.speech}); err != nil {
				h.logger.Error("failed to update symptoms", "error", err, "call_id", call.ID)
				result = "store_error"
			} else {
				h.logger.Info("stored symptoms", "call_id", call.ID)
				result = "ok"
			}
		}
	}
	h.metrics.ObserveIntakeStep("collect_symptoms", result)
	h.metrics.ObserveWebhookLatency("collect_symptoms", time.Since(start).Seconds())

	doc := telephony.NewTwiML().
		SaySpeak(severityIntro).
		GatherSpeech(severityPrompt, h.baseURL+"/voice/collect-severity", h.gatherTimeout).
		SaySpeak(retryLine).
		RedirectTo(h.baseURL + "/voice/collect-symptoms")
	telephony.WriteTwiML(w, doc)
}

// CollectSeverity handles POST /voice/collect-severity. Severity defaults
// to medium before any speech is classified; the classifier itself falls
// back to low. The two defaults are intentionally different.
func (h *IntakeHandler) CollectSeverity(w http.ResponseWriter, r *http.Request) {
	ctx, span := intakeTracer.Start(r.Context(), "intake.collect_severity")
	defer span.End()
	start := time.Now()

	form, ok := h.parseStepForm(w, r, "collect_severity")
	if !ok {
		return
	}
	h.logger.Info("received severity assessment", "speech", form.speech, "call_sid", form.callSID)

	severity := emergency.SeverityMedium
	if form.speech != "" {
		severity = emergency.ClassifySeverity(form.speech)
	}

	result := "no_record"
	if form.callSID != "" && form.speech != "" {
		call, created, err := h.repo.FindOrCreateByProviderCallID(ctx, form.callSID, emergency.CallDefaults{
			PhoneNumber: form.from,
			Symptoms:    []string{"Symptoms unknown"},
			Severity:    severity,
			Status:      emergency.StatusCollectingLocation,
		})
		switch {
		case err != nil:
			h.logger.Error("failed to persist severity", "error", err, "call_sid", form.callSID)
			result = "store_error"
		case created:
			h.logger.Info("created emergency call record for untracked call", "call_sid", form.callSID)
			result = "created"
		default:
			if err := h.repo.RecordSeverity(ctx, call.ID, severity); err != nil {
				h.logger.Error("failed to update severity", "error", err, "call_id", call.ID)
				result = "store_error"
			} else {
				h.logger.Info("stored severity", "call_id", call.ID, "severity", severity)
				result = "ok"
			}
		}
	}
	h.metrics.ObserveIntakeStep("collect_severity", result)
	h.metrics.ObserveWebhookLatency("collect_severity", time.Since(start).Seconds())

	doc := telephony.NewTwiML().
		SaySpeak(locationIntro).
		GatherSpeech(locationPrompt, h.baseURL+"/voice/collect-location", h.gatherTimeout).
		SaySpeak(retryLine).
		RedirectTo(h.baseURL + "/voice/collect-severity")
	telephony.WriteTwiML(w, doc)
}

// CollectLocation handles POST /voice/collect-location: the final step.
// Captures the address, completes the record, and signs off.
func (h *IntakeHandler) CollectLocation(w http.ResponseWriter, r *http.Request) {
	ctx, span := intakeTracer.Start(r.Context(), "intake.collect_location")
	defer span.End()
	start := time.Now()

	form, ok := h.parseStepFormWith(w, r, "collect_location", locationErrLine)
	if !ok {
		return
	}
	h.logger.Info("received location information", "speech", form.speech, "call_sid", form.callSID)

	result := "no_record"
	if form.callSID != "" && form.speech != "" {
		call, created, err := h.repo.FindOrCreateByProviderCallID(ctx, form.callSID, emergency.CallDefaults{
			PhoneNumber: form.from,
			Symptoms:    []string{"Symptoms unknown"},
			Severity:    emergency.SeverityMedium,
			Address:     form.speech,
			Status:      emergency.StatusCompleted,
		})
		switch {
		case err != nil:
			h.logger.Error("failed to persist location", "error", err, "call_sid", form.callSID)
			result = "store_error"
		case created:
			h.logger.Info("created completed emergency call record for untracked call", "call_sid", form.callSID)
			result = "created"
		default:
			if err := h.repo.RecordLocation(ctx, call.ID, form.speech); err != nil {
				h.logger.Error("failed to update location", "error", err, "call_id", call.ID)
				result = "store_error"
			} else {
				h.logger.Info("completed data collection", "call_id", call.ID)
				result = "ok"
				if emergency.ShouldNotifyDoctors(call) {
					call.Address = form.speech
					call.Status = emergency.StatusCompleted
					h.notifier.NotifyDoctors(ctx, call)
				}
			}
		}
	}
	h.metrics.ObserveIntakeStep("collect_location", result)
	h.metrics.ObserveWebhookLatency("collect_location", time.Since(start).Seconds())

	doc := telephony.NewTwiML().
		SaySpeak(closingLine).
		PauseFor(2).
		SaySpeak(finalLine).
		EndCall()
	telephony.WriteTwiML(w, doc)
}

// stepForm is the provider's gather callback payload.
type stepForm struct {
	speech  string
	callSID string
	from    string
	to      string
}

func (h *IntakeHandler) parseStepForm(w http.ResponseWriter, r *http.Request, step string) (stepForm, bool) {
	return h.parseStepFormWith(w, r, step, errorLine)
}

// parseStepFormWith validates and parses the gather callback. On failure
// the caller still hears a valid document: an advisory and a hangup, never
// a dead line.
func (h *IntakeHandler) parseStepFormWith(w http.ResponseWriter, r *http.Request, step, failLine string) (stepForm, bool) {
	if h.webhookSecret != "" {
		if !telephony.ValidateWebhookSignature(r, h.webhookSecret, h.baseURL+r.URL.RequestURI()) {
			h.logger.Warn("invalid provider signature on intake step", "step", step)
			h.metrics.ObserveIntakeStep(step, "bad_signature")
			telephony.WriteTwiML(w, telephony.NewTwiML().SaySpeak(failLine).EndCall())
			return stepForm{}, false
		}
	}
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse intake form", "error", err, "step", step)
		h.metrics.ObserveIntakeStep(step, "bad_form")
		telephony.WriteTwiML(w, telephony.NewTwiML().SaySpeak(failLine).EndCall())
		return stepForm{}, false
	}

	form := stepForm{
		speech:  strings.TrimSpace(r.FormValue("SpeechResult")),
		callSID: strings.TrimSpace(r.FormValue("CallSid")),
		from:    emergency.NormalizePhoneNumber(r.FormValue("From")),
		to:      emergency.NormalizePhoneNumber(r.FormValue("To")),
	}
	if h.ourNumber != "" && form.to != "" && form.to != emergency.NormalizePhoneNumber(h.ourNumber) {
		h.logger.Warn("call not received on our provider number", "to", form.to)
	}
	return form, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
