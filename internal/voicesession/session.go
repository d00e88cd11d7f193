package voicesession

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthmatch/emergency-intake/internal/emergency"
)

// Step is the browser assistant's position in the intake script.
type Step string

const (
	StepIntro    Step = "intro"
	StepName     Step = "name"
	StepSymptoms Step = "symptoms"
	StepSeverity Step = "severity"
	StepLocation Step = "location"
	StepComplete Step = "complete"
)

// Prompts spoken (via browser TTS) at each step.
const (
	introPrompt    = "Hello, this is the emergency medical assistant. Do you need medical help?"
	namePrompt     = "Please tell me your name"
	symptomsPrompt = "Thank you. Please describe your symptoms or medical emergency"
	severityPrompt = "On a scale from low to critical, how severe is your condition? Please say low, medium, high, or critical."
	locationPrompt = "Thank you. Please tell me your current location or address"
	completeLine   = "Thank you for providing all the information. A doctor has been notified of your emergency and will be contacting you shortly. Please stay on the line."
)

// Session holds one browser voice intake in progress. Stored in Redis with
// a TTL; abandoning the tab simply lets it expire.
type Session struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId,omitempty"`
	Step        Step               `json:"step"`
	PatientName string             `json:"patientName,omitempty"`
	Symptoms    []string           `json:"symptoms"`
	Severity    emergency.Severity `json:"severity,omitempty"`
	Address     string             `json:"address,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// NewSession starts a session at the intro step.
func NewSession(userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Step:      StepIntro,
		Symptoms:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Prompt returns the line the assistant speaks at the current step.
func (s *Session) Prompt() string {
	switch s.Step {
	case StepIntro:
		return introPrompt
	case StepName:
		return namePrompt
	case StepSymptoms:
		return symptomsPrompt
	case StepSeverity:
		return severityPrompt
	case StepLocation:
		return locationPrompt
	default:
		return completeLine
	}
}

// Advance applies an utterance to the current step and moves the session
// forward. The intro step only advances on an affirmative or help phrase;
// every other step captures the utterance as its answer.
func (s *Session) Advance(utterance string) {
	speech := strings.TrimSpace(utterance)
	if speech == "" {
		return
	}
	lower := strings.ToLower(speech)

	switch s.Step {
	case StepIntro:
		if strings.Contains(lower, "yes") || strings.Contains(lower, "help") || strings.Contains(lower, "emergency") {
			s.Step = StepName
		}
	case StepName:
		s.PatientName = speech
		s.Step = StepSymptoms
	case StepSymptoms:
		s.Symptoms = []string{speech}
		s.Step = StepSeverity
	case StepSeverity:
		// Unrecognized answers leave severity unset rather than guessing.
		if severity, ok := emergency.DetectSeverity(lower); ok {
			s.Severity = severity
		}
		s.Step = StepLocation
	case StepLocation:
		s.Address = speech
		s.Step = StepComplete
	}
	s.UpdatedAt = time.Now().UTC()
}

// Complete reports whether the session captured the full intake.
func (s *Session) Complete() bool {
	return s.Step == StepComplete
}

// ToEmergencyCall converts a completed session into a call record. The
// synthetic provider id keys browser intakes into the same audit trail as
// phone calls.
func (s *Session) ToEmergencyCall() *emergency.EmergencyCall {
	name := s.PatientName
	if name == "" {
		name = emergency.UnknownPatientName
	}
	address := s.Address
	if address == "" {
		address = "Location unknown"
	}
	return &emergency.EmergencyCall{
		ProviderCallID: "voice:" + s.ID,
		UserID:         s.UserID,
		PatientName:    name,
		Symptoms:       s.Symptoms,
		Severity:       s.Severity,
		Address:        address,
		Status:         emergency.StatusCompleted,
	}
}
