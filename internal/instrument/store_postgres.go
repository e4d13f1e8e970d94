package instrument

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
	txcontext "labflow/pkg/platform/tx"
)

// PostgresStore persists instruments. Status transitions are conditional
// updates keyed on the expected current status, so the database enforces the
// per-instrument exclusivity invariant under concurrent callers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Save(ctx context.Context, inst Instrument) error {
	query := `
		INSERT INTO instruments (id, name, mode, status, mode_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			mode = EXCLUDED.mode,
			mode_reason = EXCLUDED.mode_reason,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(inst.ID),
		inst.Name,
		string(inst.Mode),
		string(inst.Status),
		inst.ModeReason,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, instrumentID id.InstrumentID) (Instrument, error) {
	query := `
		SELECT id, name, mode, status, mode_reason, created_at, updated_at
		FROM instruments
		WHERE id = $1
	`
	var (
		inst         Instrument
		instUUID     uuid.UUID
		mode, status string
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(instrumentID)).Scan(
		&instUUID,
		&inst.Name,
		&mode,
		&status,
		&inst.ModeReason,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Instrument{}, sentinel.ErrNotFound
		}
		return Instrument{}, fmt.Errorf("find instrument: %w", err)
	}
	inst.ID = id.InstrumentID(instUUID)
	inst.Mode = Mode(mode)
	inst.Status = Status(status)
	return inst, nil
}

func (s *PostgresStore) SetMode(ctx context.Context, instrumentID id.InstrumentID, mode Mode, reason string) error {
	query := `
		UPDATE instruments
		SET mode = $2, mode_reason = $3, updated_at = NOW()
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(instrumentID), string(mode), reason)
	if err != nil {
		return fmt.Errorf("set instrument mode: %w", err)
	}
	return requireRow(res, sentinel.ErrNotFound)
}

func (s *PostgresStore) Claim(ctx context.Context, instrumentID id.InstrumentID) error {
	// Conditional update is the compare-and-set: only one concurrent caller
	// sees a row transition from AVAILABLE.
	query := `
		UPDATE instruments
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(instrumentID), string(StatusRunning), string(StatusAvailable))
	if err != nil {
		return fmt.Errorf("claim instrument: %w", err)
	}
	if err := requireRow(res, nil); err == nil {
		return nil
	}
	// Distinguish missing from busy for the caller's error taxonomy.
	if _, ferr := s.FindByID(ctx, instrumentID); ferr != nil {
		return ferr
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) Release(ctx context.Context, instrumentID id.InstrumentID, to Status) error {
	query := `
		UPDATE instruments
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(instrumentID), string(to), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("release instrument: %w", err)
	}
	if err := requireRow(res, nil); err == nil {
		return nil
	}
	if _, ferr := s.FindByID(ctx, instrumentID); ferr != nil {
		return ferr
	}
	return sentinel.ErrInvalidState
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if missing != nil {
			return missing
		}
		return sentinel.ErrInvalidState
	}
	return nil
}
