package voicesession

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/healthmatch/emergency-intake/internal/emergency"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

// Handler exposes the browser voice intake over HTTP. The browser does
// speech recognition and synthesis; this side owns the script state and
// the resulting call record.
type Handler struct {
	store    Store
	repo     emergency.Repository
	notifier emergency.DoctorNotifier
	logger   *logging.Logger
}

// NewHandler creates the handler.
func NewHandler(store Store, repo emergency.Repository, notifier emergency.DoctorNotifier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if notifier == nil {
		notifier = emergency.NewLogNotifier(logger)
	}
	return &Handler{store: store, repo: repo, notifier: notifier, logger: logger}
}

// sessionResponse is what every endpoint returns: the current state plus
// the next line to speak.
type sessionResponse struct {
	Session *Session `json:"session"`
	Prompt  string   `json:"prompt"`
}

// Start handles POST /voice-sessions.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId,omitempty"`
	}
	if r.Body != nil {
		// Body is optional for anonymous sessions.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session := NewSession(req.UserID)
	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save voice session", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("voice session started", "session_id", session.ID)
	h.writeSession(w, http.StatusCreated, session)
}

// Utterance handles POST /voice-sessions/{sessionID}/utterance: applies
// recognized speech to the current step and returns the next prompt.
func (h *Handler) Utterance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req struct {
		Utterance string `json:"utterance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load voice session", "error", err, "session_id", sessionID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if session.Complete() {
		h.writeSession(w, http.StatusOK, session)
		return
	}

	session.Advance(req.Utterance)

	if session.Complete() {
		h.finishSession(r, session)
	}
	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save voice session", "error", err, "session_id", sessionID)
	}
	h.writeSession(w, http.StatusOK, session)
}

// Get handles GET /voice-sessions/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load voice session", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

// finishSession persists the completed intake as a call record and alerts
// doctors on urgent cases. Failures are logged, not surfaced; the browser
// flow carries on like the phone flow does.
func (h *Handler) finishSession(r *http.Request, session *Session) {
	call := session.ToEmergencyCall()
	if err := h.repo.Create(r.Context(), call); err != nil {
		h.logger.Error("failed to persist voice intake", "error", err, "session_id", session.ID)
		return
	}
	h.logger.Info("voice intake completed", "session_id", session.ID, "call_id", call.ID)
	if emergency.ShouldNotifyDoctors(call) {
		h.notifier.NotifyDoctors(r.Context(), call)
	}
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, session *Session) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(sessionResponse{Session: session, Prompt: session.Prompt()})
}
