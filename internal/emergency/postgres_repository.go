package emergency

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores emergency call records in Postgres.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("emergency: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const callColumns = `id, provider_call_id, user_id, patient_name, phone_number, symptoms, severity, address, status, call_duration, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, call *EmergencyCall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.Symptoms == nil {
		call.Symptoms = []string{}
	}
	query := `
		INSERT INTO emergency_calls (id, provider_call_id, user_id, patient_name, phone_number, symptoms, severity, address, status)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		call.ID,
		call.ProviderCallID,
		call.UserID,
		call.PatientName,
		call.PhoneNumber,
		call.Symptoms,
		string(call.Severity),
		call.Address,
		string(call.Status),
	).Scan(&call.CreatedAt, &call.UpdatedAt); err != nil {
		return fmt.Errorf("emergency: insert call: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCall, error) {
	query := `SELECT ` + callColumns + ` FROM emergency_calls WHERE id = $1`
	return r.scanCall(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetByProviderCallID(ctx context.Context, providerCallID string) (*EmergencyCall, error) {
	query := `SELECT ` + callColumns + ` FROM emergency_calls WHERE provider_call_id = $1`
	return r.scanCall(r.pool.QueryRow(ctx, query, providerCallID))
}

// FindOrCreateByProviderCallID relies on the unique index on
// provider_call_id: the insert is a no-op when a concurrent handler won the
// race, and the subsequent select observes whichever row exists.
func (r *PostgresRepository) FindOrCreateByProviderCallID(ctx context.Context, providerCallID string, defaults CallDefaults) (*EmergencyCall, bool, error) {
	if providerCallID == "" {
		return nil, false, errors.New("emergency: provider call id required")
	}
	if call, err := r.GetByProviderCallID(ctx, providerCallID); err == nil {
		return call, false, nil
	} else if !errors.Is(err, ErrCallNotFound) {
		return nil, false, err
	}

	d := defaults.normalize()
	if d.Symptoms == nil {
		d.Symptoms = []string{}
	}
	query := `
		INSERT INTO emergency_calls (id, provider_call_id, patient_name, phone_number, symptoms, severity, address, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (provider_call_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		uuid.New(),
		providerCallID,
		d.PatientName,
		d.PhoneNumber,
		d.Symptoms,
		string(d.Severity),
		d.Address,
		string(d.Status),
	)
	if err != nil {
		return nil, false, fmt.Errorf("emergency: create call for %s: %w", providerCallID, err)
	}

	call, err := r.GetByProviderCallID(ctx, providerCallID)
	if err != nil {
		return nil, false, err
	}
	return call, tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) SetProviderCall(ctx context.Context, id uuid.UUID, providerCallID string, status Status) error {
	query := `
		UPDATE emergency_calls
		SET provider_call_id = $2, status = COALESCE(NULLIF($3, ''), status), updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, providerCallID, string(status))
}

func (r *PostgresRepository) RecordSymptoms(ctx context.Context, id uuid.UUID, symptoms []string) error {
	query := `
		UPDATE emergency_calls
		SET symptoms = $2, status = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, symptoms, string(StatusCollectingData))
}

func (r *PostgresRepository) RecordSeverity(ctx context.Context, id uuid.UUID, severity Severity) error {
	query := `
		UPDATE emergency_calls
		SET severity = $2, status = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, string(severity), string(StatusCollectingLocation))
}

func (r *PostgresRepository) RecordLocation(ctx context.Context, id uuid.UUID, address string) error {
	query := `
		UPDATE emergency_calls
		SET address = $2, status = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, address, string(StatusCompleted))
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, providerCallID string, status Status, duration *int) error {
	query := `
		UPDATE emergency_calls
		SET status = $2, call_duration = COALESCE($3, call_duration), updated_at = now()
		WHERE provider_call_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, providerCallID, string(status), duration)
	if err != nil {
		return fmt.Errorf("emergency: update status for %s: %w", providerCallID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*EmergencyCall, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + callColumns + ` FROM emergency_calls ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("emergency: list calls: %w", err)
	}
	defer rows.Close()

	var calls []*EmergencyCall
	for rows.Next() {
		call, err := r.scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("emergency: list calls: %w", err)
	}
	return calls, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, id uuid.UUID, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("emergency: update call %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

func (r *PostgresRepository) scanCall(row pgx.Row) (*EmergencyCall, error) {
	var (
		call           EmergencyCall
		providerCallID *string
		userID         *string
		severity       *string
		duration       *int
	)
	if err := row.Scan(
		&call.ID,
		&providerCallID,
		&userID,
		&call.PatientName,
		&call.PhoneNumber,
		&call.Symptoms,
		&severity,
		&call.Address,
		&call.Status,
		&duration,
		&call.CreatedAt,
		&call.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("emergency: scan call: %w", err)
	}
	if providerCallID != nil {
		call.ProviderCallID = *providerCallID
	}
	if userID != nil {
		call.UserID = *userID
	}
	if severity != nil {
		call.Severity = Severity(*severity)
	}
	if duration != nil {
		call.CallDuration = *duration
	}
	return &call, nil
}
