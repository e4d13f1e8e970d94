package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO test_orders (id, barcode, patient_ref, panel_code, status, auto_created, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, uuid.UUID(rec.ID), rec.Barcode, rec.PatientRef, rec.PanelCode, rec.Status, rec.AutoCreated, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert test order: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orderID id.OrderID) (Record, error) {
	rec := Record{ID: orderID}
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT barcode, patient_ref, panel_code, status, auto_created, created_at, updated_at
		FROM test_orders
		WHERE id = $1
	`, uuid.UUID(orderID)).Scan(
		&rec.Barcode, &rec.PatientRef, &rec.PanelCode, &rec.Status, &rec.AutoCreated, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, sentinel.ErrNotFound
		}
		return Record{}, fmt.Errorf("find test order: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) MarkResultReceived(ctx context.Context, orderID id.OrderID, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE test_orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, StatusResultReceived, at, uuid.UUID(orderID))
	if err != nil {
		return fmt.Errorf("mark result received: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]Record, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, barcode, patient_ref, panel_code, status, auto_created, created_at, updated_at
		FROM test_orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, StatusAwaitingResult, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stuck orders: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) ListAutoCreated(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, barcode, patient_ref, panel_code, status, auto_created, created_at, updated_at
		FROM test_orders
		WHERE auto_created = TRUE
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query auto-created orders: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) Rebind(ctx context.Context, placeholderID, realID id.OrderID) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE test_orders
		SET id = $1, auto_created = FALSE
		WHERE id = $2
	`, uuid.UUID(realID), uuid.UUID(placeholderID))
	if err != nil {
		return fmt.Errorf("rebind test order: %w", err)
	}
	return requireRow(res)
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

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec  Record
			oUID uuid.UUID
		)
		if err := rows.Scan(&oUID, &rec.Barcode, &rec.PatientRef, &rec.PanelCode,
			&rec.Status, &rec.AutoCreated, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan test order: %w", err)
		}
		rec.ID = id.OrderID(oUID)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test orders: %w", err)
	}
	return out, nil
}
