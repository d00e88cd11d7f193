package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/healthmatch/emergency-intake/internal/config"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

func testCreds() config.TwilioCredentials {
	return config.TwilioCredentials{
		AccountSID:  "AC_test",
		AuthToken:   "token",
		PhoneNumber: "+15550001111",
	}
}

func TestPlaceCall_Success(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/Calls.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC_test" || pass != "token" {
			t.Error("expected basic auth with account credentials")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"To":                   r.PostForm.Get("To"),
			"From":                 r.PostForm.Get("From"),
			"Url":                  r.PostForm.Get("Url"),
			"StatusCallback":       r.PostForm.Get("StatusCallback"),
			"StatusCallbackEvent":  r.PostForm.Get("StatusCallbackEvent"),
			"StatusCallbackMethod": r.PostForm.Get("StatusCallbackMethod"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid":"CA123","status":"queued"}`))
	}))
	defer srv.Close()

	client := NewClient(testCreds(), logging.Default()).WithBaseURL(srv.URL)
	placed, err := client.PlaceCall(context.Background(), PlaceCallRequest{
		To:               "+15552223333",
		DialogueURL:      "https://app.example.com/voice/dialogue",
		StatusWebhookURL: "https://app.example.com/webhooks/twilio/status",
		StatusEvents:     []string{"initiated", "ringing", "answered", "completed"},
	})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if placed.CallSID != "CA123" || placed.Status != "queued" {
		t.Errorf("unexpected placement %+v", placed)
	}
	if gotForm["To"] != "+15552223333" || gotForm["From"] != "+15550001111" {
		t.Errorf("unexpected numbers in form %v", gotForm)
	}
	if gotForm["StatusCallbackEvent"] != "initiated ringing answered completed" {
		t.Errorf("unexpected events %q", gotForm["StatusCallbackEvent"])
	}
	if gotForm["StatusCallbackMethod"] != http.MethodPost {
		t.Errorf("unexpected callback method %q", gotForm["StatusCallbackMethod"])
	}
}

func TestPlaceCall_NotConfigured(t *testing.T) {
	client := NewClient(config.TwilioCredentials{AccountSID: "AC_test"}, logging.Default())
	_, err := client.PlaceCall(context.Background(), PlaceCallRequest{To: "+15552223333"})

	var notConfigured *NotConfiguredError
	if !errors.As(err, &notConfigured) {
		t.Fatalf("expected NotConfiguredError, got %v", err)
	}
	if notConfigured.Missing.AccountSID {
		t.Error("account sid is present, should not be flagged")
	}
	if !notConfigured.Missing.AuthToken || !notConfigured.Missing.PhoneNumber {
		t.Error("expected auth token and phone number flagged as missing")
	}
}

func TestPlaceCall_CarrierRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	client := NewClient(testCreds(), logging.Default()).WithBaseURL(srv.URL)
	_, err := client.PlaceCall(context.Background(), PlaceCallRequest{To: "bogus"})

	var carrier *CarrierError
	if !errors.As(err, &carrier) {
		t.Fatalf("expected CarrierError, got %v", err)
	}
	if carrier.StatusCode != http.StatusBadRequest || carrier.Code != 21211 {
		t.Errorf("unexpected carrier error %+v", carrier)
	}
}

func TestFetchCallStatus_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/Calls/CA123.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sid":"CA123","status":"completed","duration":"42",
			"direction":"outbound-api","from":"+15550001111","to":"+15552223333",
			"date_created":"Mon, 01 Jan 2026 10:00:00 +0000",
			"date_updated":"Mon, 01 Jan 2026 10:01:00 +0000"
		}`))
	}))
	defer srv.Close()

	client := NewClient(testCreds(), logging.Default()).WithBaseURL(srv.URL)
	status, err := client.FetchCallStatus(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("fetch status: %v", err)
	}
	if status.Status != "completed" || status.Duration != 42 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestFetchCallStatus_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"sid":"CA123","status":"in-progress","duration":""}`))
	}))
	defer srv.Close()

	client := NewClient(testCreds(), logging.Default()).WithBaseURL(srv.URL)
	status, err := client.FetchCallStatus(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("fetch status: %v", err)
	}
	if status.Status != "in-progress" {
		t.Errorf("unexpected status %+v", status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetchCallStatus_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":20404,"message":"not found"}`))
	}))
	defer srv.Close()

	client := NewClient(testCreds(), logging.Default()).WithBaseURL(srv.URL)
	_, err := client.FetchCallStatus(context.Background(), "CA_missing")

	var carrier *CarrierError
	if !errors.As(err, &carrier) {
		t.Fatalf("expected CarrierError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single attempt for 404, got %d", got)
	}
}

func TestFetchCallStatus_RequiresSID(t *testing.T) {
	client := NewClient(testCreds(), logging.Default())
	if _, err := client.FetchCallStatus(context.Background(), ""); err == nil {
		t.Error("expected error for empty call sid")
	}
}
