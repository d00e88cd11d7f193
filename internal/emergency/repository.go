package emergency

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCallNotFound is returned when no record matches the given key.
var ErrCallNotFound = errors.New("emergency: call not found")

// Repository defines storage for emergency call records. All writes are
// unconditional last-write-wins: step handlers and the webhook relay may
// race on the same record and the last committed write stands.
type Repository interface {
	Create(ctx context.Context, call *EmergencyCall) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCall, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (*EmergencyCall, error)
	// FindOrCreateByProviderCallID is the self-healing path shared by the
	// step handlers and the relay: the provider may hit an intake endpoint
	// before the initiator's write is visible, or for a call the initiator
	// never placed.
	FindOrCreateByProviderCallID(ctx context.Context, providerCallID string, defaults CallDefaults) (*EmergencyCall, bool, error)
	// SetProviderCall writes the provider-assigned call id and the
	// provider's initial status back onto a freshly created record.
	SetProviderCall(ctx context.Context, id uuid.UUID, providerCallID string, status Status) error
	RecordSymptoms(ctx context.Context, id uuid.UUID, symptoms []string) error
	RecordSeverity(ctx context.Context, id uuid.UUID, severity Severity) error
	RecordLocation(ctx context.Context, id uuid.UUID, address string) error
	// UpdateStatus is the relay's unconditional reconciliation write.
	UpdateStatus(ctx context.Context, providerCallID string, status Status, duration *int) error
	ListRecent(ctx context.Context, limit int) ([]*EmergencyCall, error)
}

// InMemoryRepository keeps records in process memory. Used in tests and as
// a fallback when no database is configured.
type InMemoryRepository struct {
	mu    sync.RWMutex
	calls map[uuid.UUID]*EmergencyCall
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{calls: make(map[uuid.UUID]*EmergencyCall)}
}

func (r *InMemoryRepository) Create(ctx context.Context, call *EmergencyCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	now := time.Now().UTC()
	call.CreatedAt = now
	call.UpdatedAt = now
	cp := *call
	r.calls[call.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	call, ok := r.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	cp := *call
	return &cp, nil
}

func (r *InMemoryRepository) GetByProviderCallID(ctx context.Context, providerCallID string) (*EmergencyCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	call := r.findByProviderLocked(providerCallID)
	if call == nil {
		return nil, ErrCallNotFound
	}
	cp := *call
	return &cp, nil
}

func (r *InMemoryRepository) FindOrCreateByProviderCallID(ctx context.Context, providerCallID string, defaults CallDefaults) (*EmergencyCall, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call := r.findByProviderLocked(providerCallID); call != nil {
		cp := *call
		return &cp, false, nil
	}

	d := defaults.normalize()
	now := time.Now().UTC()
	call := &EmergencyCall{
		ID:             uuid.New(),
		ProviderCallID: providerCallID,
		PatientName:    d.PatientName,
		PhoneNumber:    d.PhoneNumber,
		Symptoms:       d.Symptoms,
		Severity:       d.Severity,
		Address:        d.Address,
		Status:         d.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.calls[call.ID] = call
	cp := *call
	return &cp, true, nil
}

func (r *InMemoryRepository) SetProviderCall(ctx context.Context, id uuid.UUID, providerCallID string, status Status) error {
	return r.mutate(id, func(call *EmergencyCall) {
		call.ProviderCallID = providerCallID
		if status != "" {
			call.Status = status
		}
	})
}

func (r *InMemoryRepository) RecordSymptoms(ctx context.Context, id uuid.UUID, symptoms []string) error {
	return r.mutate(id, func(call *EmergencyCall) {
		call.Symptoms = symptoms
		call.Status = StatusCollectingData
	})
}

func (r *InMemoryRepository) RecordSeverity(ctx context.Context, id uuid.UUID, severity Severity) error {
	return r.mutate(id, func(call *EmergencyCall) {
		call.Severity = severity
		call.Status = StatusCollectingLocation
	})
}

func (r *InMemoryRepository) RecordLocation(ctx context.Context, id uuid.UUID, address string) error {
	return r.mutate(id, func(call *EmergencyCall) {
		call.Address = address
		call.Status = StatusCompleted
	})
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, providerCallID string, status Status, duration *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.findByProviderLocked(providerCallID)
	if call == nil {
		return ErrCallNotFound
	}
	call.Status = status
	if duration != nil {
		call.CallDuration = *duration
	}
	call.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) ListRecent(ctx context.Context, limit int) ([]*EmergencyCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	calls := make([]*EmergencyCall, 0, len(r.calls))
	for _, call := range r.calls {
		cp := *call
		calls = append(calls, &cp)
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].CreatedAt.After(calls[j].CreatedAt)
	})
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

func (r *InMemoryRepository) mutate(id uuid.UUID, fn func(*EmergencyCall)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[id]
	if !ok {
		return ErrCallNotFound
	}
	fn(call)
	call.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) findByProviderLocked(providerCallID string) *EmergencyCall {
	if providerCallID == "" {
		return nil
	}
	for _, call := range r.calls {
		if call.ProviderCallID == providerCallID {
			return call
		}
	}
	return nil
}
