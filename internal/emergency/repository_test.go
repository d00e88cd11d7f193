package emergency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	call := &EmergencyCall{
		PatientName: "Jane Doe",
		PhoneNumber: "+15551234567",
		Symptoms:    []string{},
		Address:     AddressPlaceholder,
		Status:      StatusInitiated,
	}
	if err := repo.Create(ctx, call); err != nil {
		t.Fatalf("create: %v", err)
	}
	if call.ID == uuid.Nil {
		t.Fatal("expected create to assign an id")
	}

	got, err := repo.GetByID(ctx, call.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PatientName != "Jane Doe" {
		t.Errorf("expected patient name Jane Doe, got %s", got.PatientName)
	}
	if got.Status != StatusInitiated {
		t.Errorf("expected status initiated, got %s", got.Status)
	}

	// Returned records are copies; mutating them must not touch the store.
	got.PatientName = "mutated"
	again, _ := repo.GetByID(ctx, call.ID)
	if again.PatientName != "Jane Doe" {
		t.Error("repository returned a shared reference")
	}
}

func TestInMemoryRepository_GetMissing(t *testing.T) {
	repo := NewInMemoryRepository()

	if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("expected ErrCallNotFound, got %v", err)
	}
	if _, err := repo.GetByProviderCallID(context.Background(), "CA123"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("expected ErrCallNotFound, got %v", err)
	}
}

func TestInMemoryRepository_FindOrCreate(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	call, created, err := repo.FindOrCreateByProviderCallID(ctx, "CA100", CallDefaults{
		PhoneNumber: "+15550001111",
		Status:      StatusCollectingData,
	})
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if !created {
		t.Fatal("expected record to be created")
	}
	if call.PatientName != UnknownPatientName {
		t.Errorf("expected default patient name, got %s", call.PatientName)
	}
	if call.Address != "Location unknown" {
		t.Errorf("expected default address, got %s", call.Address)
	}
	if call.Status != StatusCollectingData {
		t.Errorf("expected status collecting_data, got %s", call.Status)
	}

	// Second call finds the same record.
	found, created, err := repo.FindOrCreateByProviderCallID(ctx, "CA100", CallDefaults{})
	if err != nil {
		t.Fatalf("find or create again: %v", err)
	}
	if created {
		t.Error("expected existing record to be found")
	}
	if found.ID != call.ID {
		t.Errorf("expected same record id %s, got %s", call.ID, found.ID)
	}
}

func TestInMemoryRepository_IntakeSteps(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	call := &EmergencyCall{PatientName: "Pat", PhoneNumber: "+15550002222", Status: StatusInitiated}
	if err := repo.Create(ctx, call); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.RecordSymptoms(ctx, call.ID, []string{"chest pain and dizziness"}); err != nil {
		t.Fatalf("record symptoms: %v", err)
	}
	got, _ := repo.GetByID(ctx, call.ID)
	if len(got.Symptoms) != 1 || got.Symptoms[0] != "chest pain and dizziness" {
		t.Errorf("unexpected symptoms %v", got.Symptoms)
	}
	if got.Status != StatusCollectingData {
		t.Errorf("expected collecting_data after symptoms, got %s", got.Status)
	}

	// A second symptoms write replaces, never appends.
	if err := repo.RecordSymptoms(ctx, call.ID, []string{"nausea"}); err != nil {
		t.Fatalf("record symptoms again: %v", err)
	}
	got, _ = repo.GetByID(ctx, call.ID)
	if len(got.Symptoms) != 1 || got.Symptoms[0] != "nausea" {
		t.Errorf("expected symptoms to be replaced, got %v", got.Symptoms)
	}

	if err := repo.RecordSeverity(ctx, call.ID, SeverityHigh); err != nil {
		t.Fatalf("record severity: %v", err)
	}
	got, _ = repo.GetByID(ctx, call.ID)
	if got.Severity != SeverityHigh || got.Status != StatusCollectingLocation {
		t.Errorf("unexpected state after severity: %s/%s", got.Severity, got.Status)
	}

	if err := repo.RecordLocation(ctx, call.ID, "12 Main St"); err != nil {
		t.Fatalf("record location: %v", err)
	}
	got, _ = repo.GetByID(ctx, call.ID)
	if got.Address != "12 Main St" || got.Status != StatusCompleted {
		t.Errorf("unexpected state after location: %s/%s", got.Address, got.Status)
	}
}

func TestInMemoryRepository_UpdateStatus(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	call := &EmergencyCall{PatientName: "Pat", PhoneNumber: "+15550003333", Status: StatusInitiated}
	if err := repo.Create(ctx, call); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetProviderCall(ctx, call.ID, "CA200", Status("queued")); err != nil {
		t.Fatalf("set provider call: %v", err)
	}

	duration := 42
	if err := repo.UpdateStatus(ctx, "CA200", StatusCompleted, &duration); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := repo.GetByID(ctx, call.ID)
	if got.Status != StatusCompleted || got.CallDuration != 42 {
		t.Errorf("unexpected state %s/%d", got.Status, got.CallDuration)
	}

	// Last write wins, even going backwards in the lifecycle.
	if err := repo.UpdateStatus(ctx, "CA200", Status("ringing"), nil); err != nil {
		t.Fatalf("update status again: %v", err)
	}
	got, _ = repo.GetByID(ctx, call.ID)
	if got.Status != Status("ringing") {
		t.Errorf("expected ringing, got %s", got.Status)
	}
	if got.CallDuration != 42 {
		t.Errorf("nil duration must not clear the stored one, got %d", got.CallDuration)
	}

	if err := repo.UpdateStatus(ctx, "CA999", StatusFailed, nil); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("expected ErrCallNotFound for unknown sid, got %v", err)
	}
}

func TestInMemoryRepository_StepAndRelayWritesLastWins(t *testing.T) {
	// A step handler and the status relay race on the same record; both
	// write unconditionally, so whichever lands last sets the status.
	ctx := context.Background()

	newCall := func(t *testing.T, repo *InMemoryRepository, sid string) *EmergencyCall {
		t.Helper()
		call := &EmergencyCall{PatientName: "Pat", PhoneNumber: "+15550005555", Status: StatusInitiated}
		if err := repo.Create(ctx, call); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.SetProviderCall(ctx, call.ID, sid, Status("queued")); err != nil {
			t.Fatalf("set provider call: %v", err)
		}
		return call
	}

	t.Run("relay after step", func(t *testing.T) {
		repo := NewInMemoryRepository()
		call := newCall(t, repo, "CA300")

		if err := repo.RecordSeverity(ctx, call.ID, SeverityHigh); err != nil {
			t.Fatalf("record severity: %v", err)
		}
		if err := repo.UpdateStatus(ctx, "CA300", StatusCompleted, nil); err != nil {
			t.Fatalf("update status: %v", err)
		}

		got, _ := repo.GetByID(ctx, call.ID)
		if got.Status != StatusCompleted {
			t.Errorf("relay wrote last, expected completed, got %s", got.Status)
		}
		if got.Severity != SeverityHigh {
			t.Errorf("relay must not clear severity, got %s", got.Severity)
		}
	})

	t.Run("step after relay", func(t *testing.T) {
		repo := NewInMemoryRepository()
		call := newCall(t, repo, "CA301")

		if err := repo.UpdateStatus(ctx, "CA301", StatusCompleted, nil); err != nil {
			t.Fatalf("update status: %v", err)
		}
		if err := repo.RecordSeverity(ctx, call.ID, SeverityHigh); err != nil {
			t.Fatalf("record severity: %v", err)
		}

		got, _ := repo.GetByID(ctx, call.ID)
		if got.Status != StatusCollectingLocation {
			t.Errorf("step wrote last, expected collecting_location, got %s", got.Status)
		}
	})
}

func TestInMemoryRepository_ListRecent(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		call := &EmergencyCall{PatientName: "Pat", PhoneNumber: "+15550004444", Status: StatusInitiated}
		if err := repo.Create(ctx, call); err != nil {
			t.Fatalf("create: %v", err)
		}
		// Distinct creation times so ordering is observable.
		time.Sleep(time.Millisecond)
	}

	calls, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].CreatedAt.Before(calls[1].CreatedAt) {
		t.Error("expected most recent first")
	}
}
