package emergency

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks how far an emergency call has progressed through intake.
// The provider's own lifecycle statuses (ringing, in-progress, ...) are
// written verbatim by the status webhook relay, so Status is an open set;
// the constants below are the values the intake flow itself produces.
type Status string

const (
	StatusInitiated          Status = "initiated"
	StatusCollectingData     Status = "collecting_data"
	StatusCollectingLocation Status = "collecting_location"
	StatusCompleted          Status = "completed"
	StatusIncomplete         Status = "incomplete"
	StatusFailed             Status = "failed"
	StatusBusy               Status = "busy"
	StatusNoAnswer           Status = "no-answer"
)

// IsTerminal reports whether the intake process will not continue past s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusIncomplete, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	}
	return false
}

// Severity is the caller-reported urgency of the medical situation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AddressPlaceholder is stored until the location step captures a real one.
const AddressPlaceholder = "To be collected"

// UnknownPatientName is used for calls that reached the intake endpoints
// without ever passing through the call initiator.
const UnknownPatientName = "Unknown Patient"

// EmergencyCall is the durable record of one emergency call attempt. It is
// the single source of truth for intake progress and is never deleted.
type EmergencyCall struct {
	ID             uuid.UUID `json:"id"`
	ProviderCallID string    `json:"providerCallId,omitempty"`
	UserID         string    `json:"userId,omitempty"`
	PatientName    string    `json:"patientName"`
	PhoneNumber    string    `json:"phoneNumber"`
	Symptoms       []string  `json:"symptoms"`
	Severity       Severity  `json:"severity,omitempty"`
	Address        string    `json:"address"`
	Status         Status    `json:"status"`
	CallDuration   int       `json:"callDuration,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasSymptoms reports whether the intake captured any usable symptom data.
func (c *EmergencyCall) HasSymptoms() bool {
	return len(c.Symptoms) > 0
}

// CallDefaults seeds the self-healing record creation path shared by the
// intake step handlers and the status webhook relay. Zero fields fall back
// to the standard placeholders.
type CallDefaults struct {
	PatientName string
	PhoneNumber string
	Symptoms    []string
	Severity    Severity
	Address     string
	Status      Status
}

func (d CallDefaults) normalize() CallDefaults {
	if d.PatientName == "" {
		d.PatientName = UnknownPatientName
	}
	if d.Address == "" {
		d.Address = "Location unknown"
	}
	if d.Status == "" {
		d.Status = StatusInitiated
	}
	return d
}
