package emergency

import (
	"context"

	"github.com/healthmatch/emergency-intake/pkg/logging"
)

// DoctorNotifier is told about completed high-urgency intakes so nearby
// doctors can be alerted. Delivery is out of scope; the log implementation
// is the only one wired today.
type DoctorNotifier interface {
	NotifyDoctors(ctx context.Context, call *EmergencyCall)
}

// LogNotifier records the notification intent without delivering anything.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyDoctors(_ context.Context, call *EmergencyCall) {
	n.logger.Info("high severity case - doctor notification requested",
		"call_id", call.ID,
		"severity", call.Severity,
		"address", call.Address,
	)
}

// ShouldNotifyDoctors reports whether a completed intake warrants alerting
// doctors.
func ShouldNotifyDoctors(call *EmergencyCall) bool {
	return call != nil && (call.Severity == SeverityHigh || call.Severity == SeverityCritical)
}
