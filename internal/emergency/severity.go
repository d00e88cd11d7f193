package emergency

import "strings"

// Keyword sets checked in strict priority order. An utterance containing
// both a high and a medium keyword classifies as high because the checks
// short-circuit; matches are not counted.
var (
	criticalKeywords = []string{"critical", "severe", "very bad", "emergency"}
	highKeywords     = []string{"high", "bad", "serious"}
	mediumKeywords   = []string{"medium", "moderate"}

	// The browser assistant never treats "emergency" as a severity answer;
	// it already appears in its wake phrases.
	detectCriticalKeywords = []string{"critical", "severe", "very bad"}
	lowKeywords            = []string{"low", "mild", "minor"}
)

// ClassifySeverity maps a free-text utterance to a severity level using
// case-insensitive keyword containment, checked critical, then high, then
// medium. Anything else is low; it never fails.
func ClassifySeverity(utterance string) Severity {
	speech := strings.ToLower(utterance)

	if containsAny(speech, criticalKeywords) {
		return SeverityCritical
	}
	if containsAny(speech, highKeywords) {
		return SeverityHigh
	}
	if containsAny(speech, mediumKeywords) {
		return SeverityMedium
	}
	return SeverityLow
}

// DetectSeverity is the variant used by the browser voice intake. Unlike
// ClassifySeverity it recognizes explicit low keywords and reports when no
// keyword matched at all, leaving the fallback choice to the caller.
func DetectSeverity(utterance string) (Severity, bool) {
	speech := strings.ToLower(utterance)

	if containsAny(speech, detectCriticalKeywords) {
		return SeverityCritical, true
	}
	if containsAny(speech, highKeywords) {
		return SeverityHigh, true
	}
	if containsAny(speech, mediumKeywords) {
		return SeverityMedium, true
	}
	if containsAny(speech, lowKeywords) {
		return SeverityLow, true
	}
	return "", false
}

func containsAny(speech string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(speech, kw) {
			return true
		}
	}
	return false
}
