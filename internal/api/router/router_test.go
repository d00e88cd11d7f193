package router

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/healthmatch/emergency-intake/internal/emergency"
	"github.com/healthmatch/emergency-intake/internal/http/handlers"
	"github.com/healthmatch/emergency-intake/internal/voicesession"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

func testRouter(jwtSecret string) http.Handler {
	repo := emergency.NewInMemoryRepository()
	logger := logging.Default()
	return New(&Config{
		Logger: logger,
		Intake: handlers.NewIntakeHandler(handlers.IntakeConfig{
			Repo:    repo,
			Logger:  logger,
			BaseURL: "https://app.example.com",
		}),
		StatusWebhook: handlers.NewStatusWebhookHandler(handlers.StatusWebhookConfig{
			Repo:   repo,
			Logger: logger,
		}),
		VoiceSessions:   voicesession.NewHandler(voicesession.NewInMemoryStore(), repo, nil, logger),
		ClientJWTSecret: jwtSecret,
	})
}

func TestRouter_HealthCheck(t *testing.T) {
	r := testRouter("")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body %s", w.Body.String())
	}
}

func TestRouter_DialogueServesBothMethods(t *testing.T) {
	r := testRouter("")

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/voice/dialogue?patientName=Jane", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s /voice/dialogue: expected 200, got %d", method, w.Code)
		}
		if !strings.Contains(w.Body.String(), "<Response>") {
			t.Errorf("%s /voice/dialogue: expected TwiML body", method)
		}
	}
}

func TestRouter_WebhooksBypassClientAuth(t *testing.T) {
	// Provider endpoints authenticate by signature, never by bearer token,
	// so a configured JWT secret must not lock them out.
	r := testRouter("client-secret")

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected webhook reachable without client token, got %d", w.Code)
	}
}

func TestRouter_ClientEndpointsRequireAuth(t *testing.T) {
	r := testRouter("client-secret")

	req := httptest.NewRequest(http.MethodPost, "/voice-sessions/", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
}

func TestRouter_VoiceSessionFlow(t *testing.T) {
	r := testRouter("")

	req := httptest.NewRequest(http.MethodPost, "/voice-sessions/", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRouter_IntakeStepsRouted(t *testing.T) {
	r := testRouter("")

	for _, path := range []string{
		"/voice/collect-symptoms",
		"/voice/collect-severity",
		"/voice/collect-location",
	} {
		form := url.Values{}
		form.Set("CallSid", "CA123")
		form.Set("SpeechResult", "chest pain")
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("POST %s: expected 200, got %d", path, w.Code)
		}
		if got := w.Header().Get("Content-Type"); got != "text/xml; charset=utf-8" {
			t.Errorf("POST %s: expected TwiML content type, got %q", path, got)
		}
	}
}
