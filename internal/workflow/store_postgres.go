package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
	"labflow/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok && t != nil {
		return t
	}
	return s.db
}

func (s *PostgresStore) SaveWorkflow(ctx context.Context, wf Workflow) error {
	var cassetteID *uuid.UUID
	if wf.CassetteID != nil {
		u := uuid.UUID(*wf.CassetteID)
		cassetteID = &u
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO workflows (id, instrument_id, cassette_id, status, reagent_check_passed,
			order_service_available, error_message, started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(wf.ID), uuid.UUID(wf.InstrumentID), cassetteID, wf.Status, wf.ReagentCheckPassed,
		wf.OrderServiceAvailable, wf.ErrorMessage, wf.StartedAt, wf.CompletedAt, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf Workflow) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE workflows
		SET status = $1, reagent_check_passed = $2, order_service_available = $3,
			error_message = $4, started_at = $5, completed_at = $6, updated_at = $7
		WHERE id = $8
	`, wf.Status, wf.ReagentCheckPassed, wf.OrderServiceAvailable,
		wf.ErrorMessage, wf.StartedAt, wf.CompletedAt, wf.UpdatedAt, uuid.UUID(wf.ID))
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) FindWorkflowByID(ctx context.Context, workflowID id.WorkflowID) (Workflow, error) {
	wf := Workflow{ID: workflowID}
	var (
		instrumentUUID uuid.UUID
		cassetteUUID   *uuid.UUID
	)
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT instrument_id, cassette_id, status, reagent_check_passed, order_service_available,
			error_message, started_at, completed_at, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`, uuid.UUID(workflowID)).Scan(
		&instrumentUUID, &cassetteUUID, &wf.Status, &wf.ReagentCheckPassed, &wf.OrderServiceAvailable,
		&wf.ErrorMessage, &wf.StartedAt, &wf.CompletedAt, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workflow{}, sentinel.ErrNotFound
		}
		return Workflow{}, fmt.Errorf("find workflow: %w", err)
	}
	wf.InstrumentID = id.InstrumentID(instrumentUUID)
	if cassetteUUID != nil {
		cid := id.CassetteID(*cassetteUUID)
		wf.CassetteID = &cid
	}
	return wf, nil
}

func (s *PostgresStore) SaveSample(ctx context.Context, sample Sample) error {
	var orderID *uuid.UUID
	if sample.OrderID != nil {
		u := uuid.UUID(*sample.OrderID)
		orderID = &u
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO samples (id, workflow_id, instrument_id, barcode, order_id, status,
			order_auto_created, skip_reason, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(sample.ID), uuid.UUID(sample.WorkflowID), uuid.UUID(sample.InstrumentID),
		sample.Barcode, orderID, sample.Status, sample.OrderAutoCreated, sample.SkipReason,
		sample.Position, sample.CreatedAt, sample.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSample(ctx context.Context, sample Sample) error {
	var orderID *uuid.UUID
	if sample.OrderID != nil {
		u := uuid.UUID(*sample.OrderID)
		orderID = &u
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE samples
		SET order_id = $1, status = $2, order_auto_created = $3, skip_reason = $4, updated_at = $5
		WHERE id = $6
	`, orderID, sample.Status, sample.OrderAutoCreated, sample.SkipReason, sample.UpdatedAt,
		uuid.UUID(sample.ID))
	if err != nil {
		return fmt.Errorf("update sample: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ListSamples(ctx context.Context, workflowID id.WorkflowID) ([]Sample, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, instrument_id, barcode, order_id, status, order_auto_created,
			skip_reason, position, created_at, updated_at
		FROM samples
		WHERE workflow_id = $1
		ORDER BY position
	`, uuid.UUID(workflowID))
	if err != nil {
		return nil, fmt.Errorf("query workflow samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		sample.WorkflowID = workflowID
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow samples: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindActiveSampleByBarcode(ctx context.Context, barcode string) (Sample, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, instrument_id, barcode, order_id, status, order_auto_created,
			skip_reason, position, created_at, updated_at, workflow_id
		FROM samples
		WHERE barcode = $1 AND status NOT IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`, barcode, SampleCompleted, SampleSkipped, SampleFailed)
	if err != nil {
		return Sample{}, fmt.Errorf("query active sample: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Sample{}, fmt.Errorf("query active sample: %w", err)
		}
		return Sample{}, sentinel.ErrNotFound
	}
	var workflowUUID uuid.UUID
	sample, err := scanSampleWith(rows, &workflowUUID)
	if err != nil {
		return Sample{}, err
	}
	sample.WorkflowID = id.WorkflowID(workflowUUID)
	return sample, nil
}

func (s *PostgresStore) RebindSampleOrder(ctx context.Context, placeholderID, realID id.OrderID) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE samples
		SET order_id = $1, order_auto_created = FALSE
		WHERE order_id = $2
	`, uuid.UUID(realID), uuid.UUID(placeholderID))
	if err != nil {
		return fmt.Errorf("rebind sample order: %w", err)
	}
	return nil
}

func scanSample(rows *sql.Rows) (Sample, error) {
	return scanSampleWith(rows)
}

func scanSampleWith(rows *sql.Rows, extra ...any) (Sample, error) {
	var (
		sample         Sample
		sampleUUID     uuid.UUID
		instrumentUUID uuid.UUID
		orderUUID      *uuid.UUID
	)
	dest := []any{&sampleUUID, &instrumentUUID, &sample.Barcode, &orderUUID, &sample.Status,
		&sample.OrderAutoCreated, &sample.SkipReason, &sample.Position, &sample.CreatedAt, &sample.UpdatedAt}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return Sample{}, fmt.Errorf("scan sample: %w", err)
	}
	sample.ID = id.SampleID(sampleUUID)
	sample.InstrumentID = id.InstrumentID(instrumentUUID)
	if orderUUID != nil {
		oid := id.OrderID(*orderUUID)
		sample.OrderID = &oid
	}
	return sample, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
