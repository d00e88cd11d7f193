package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/healthmatch/emergency-intake/internal/config"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

var tracer = otel.Tracer("healthmatch.internal.telephony")

// NotConfiguredError signals absent provider credentials. It is an
// operator problem, never retried automatically, and distinct from a
// carrier rejecting a particular call.
type NotConfiguredError struct {
	Missing config.MissingCredentials
}

func (e *NotConfiguredError) Error() string {
	return "telephony: twilio credentials are not configured"
}

// CarrierError carries the provider's own error payload upward.
type CarrierError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *CarrierError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telephony: carrier error status %d code %d: %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("telephony: carrier error status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("telephony: carrier error status %d", e.StatusCode)
}

// PlaceCallRequest describes one outbound call placement.
type PlaceCallRequest struct {
	To               string
	DialogueURL      string
	StatusWebhookURL string
	StatusEvents     []string
}

// PlacedCall is the provider's response to a placement.
type PlacedCall struct {
	CallSID string
	Status  string
}

// CallStatus is a live snapshot of one call from the provider's side.
type CallStatus struct {
	CallSID     string
	Status      string
	Duration    int
	Direction   string
	From        string
	To          string
	DateCreated string
	DateUpdated string
}

// Client places calls and polls call state through Twilio's REST API.
type Client struct {
	creds      config.TwilioCredentials
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a Twilio client. Credentials may be incomplete; every
// operation then fails with NotConfiguredError carrying the missing flags.
func NewClient(creds config.TwilioCredentials, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		creds:   creds,
		baseURL: "https://api.twilio.com",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimSuffix(base, "/")
	return c
}

// FromNumber is the caller-id number outbound calls are placed from.
func (c *Client) FromNumber() string {
	return c.creds.PhoneNumber
}

// Configured reports whether all provider credentials are present.
func (c *Client) Configured() bool {
	return c.creds.Complete()
}

// MissingCredentials reports which credentials are absent.
func (c *Client) MissingCredentials() config.MissingCredentials {
	return c.creds.Missing()
}

// PlaceCall asks the provider to dial the destination and drive the call
// from the dialogue URL. Exactly one placement attempt is made; a rejected
// call is the end user's to retry, which creates a brand-new record.
func (c *Client) PlaceCall(ctx context.Context, req PlaceCallRequest) (*PlacedCall, error) {
	if !c.creds.Complete() {
		return nil, &NotConfiguredError{Missing: c.creds.Missing()}
	}

	ctx, span := tracer.Start(ctx, "telephony.place_call")
	defer span.End()
	span.SetAttributes(attribute.String("healthmatch.call.to", req.To))

	payload := url.Values{}
	payload.Set("To", req.To)
	payload.Set("From", c.creds.PhoneNumber)
	payload.Set("Url", req.DialogueURL)
	payload.Set("StatusCallback", req.StatusWebhookURL)
	payload.Set("StatusCallbackEvent", strings.Join(req.StatusEvents, " "))
	payload.Set("StatusCallbackMethod", http.MethodPost)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.creds.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("telephony: build request: %w", err)
	}
	httpReq.SetBasicAuth(c.creds.AccountSID, c.creds.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("telephony: place call: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		carrierErr := parseCarrierError(resp.StatusCode, body)
		span.RecordError(carrierErr)
		return nil, carrierErr
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("telephony: decode placement response: %w", err)
	}
	c.logger.Info("call placed", "call_sid", parsed.SID, "status", parsed.Status, "to", req.To)
	return &PlacedCall{CallSID: parsed.SID, Status: parsed.Status}, nil
}

// FetchCallStatus queries the provider for a call's live state. Transient
// failures (5xx, 429) are retried a couple of times with jitter; the poll
// endpoint is read-only so retries are safe.
func (c *Client) FetchCallStatus(ctx context.Context, callSID string) (*CallStatus, error) {
	if c.creds.AccountSID == "" || c.creds.AuthToken == "" {
		return nil, &NotConfiguredError{Missing: c.creds.Missing()}
	}
	if callSID == "" {
		return nil, errors.New("telephony: call sid required")
	}

	ctx, span := tracer.Start(ctx, "telephony.fetch_call_status")
	defer span.End()
	span.SetAttributes(attribute.String("healthmatch.call.sid", callSID))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", c.baseURL, c.creds.AccountSID, url.PathEscape(callSID))

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("telephony: build request: %w", err)
		}
		req.SetBasicAuth(c.creds.AccountSID, c.creds.AuthToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return decodeCallStatus(body)
			}
			lastErr = parseCarrierError(resp.StatusCode, body)
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				break
			}
		}
		if attempt < 3 {
			time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
		}
	}
	if lastErr != nil {
		span.RecordError(lastErr)
	}
	return nil, lastErr
}

func decodeCallStatus(body []byte) (*CallStatus, error) {
	var parsed struct {
		SID         string `json:"sid"`
		Status      string `json:"status"`
		Duration    string `json:"duration"`
		Direction   string `json:"direction"`
		From        string `json:"from"`
		To          string `json:"to"`
		DateCreated string `json:"date_created"`
		DateUpdated string `json:"date_updated"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("telephony: decode status response: %w", err)
	}
	duration, _ := strconv.Atoi(parsed.Duration)
	return &CallStatus{
		CallSID:     parsed.SID,
		Status:      parsed.Status,
		Duration:    duration,
		Direction:   parsed.Direction,
		From:        parsed.From,
		To:          parsed.To,
		DateCreated: parsed.DateCreated,
		DateUpdated: parsed.DateUpdated,
	}, nil
}

func parseCarrierError(status int, body []byte) *CarrierError {
	carrierErr := &CarrierError{StatusCode: status}
	var parsed struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		carrierErr.Code = parsed.Code
		carrierErr.Message = parsed.Message
	}
	if carrierErr.Message == "" {
		carrierErr.Message = strings.TrimSpace(string(body))
	}
	return carrierErr
}
