package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"labflow/internal/hl7"
	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	parsed, err := json.Marshal(rec.Parsed)
	if err != nil {
		return fmt.Errorf("encode parsed result: %w", err)
	}
	var orderID *uuid.UUID
	if rec.OrderID != nil {
		u := uuid.UUID(*rec.OrderID)
		orderID = &u
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sample_results (message_id, instrument_id, order_id, barcode, raw, parsed, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO NOTHING
	`, rec.MessageID, uuid.UUID(rec.InstrumentID), orderID, rec.Barcode, rec.Raw, parsed, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert sample result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByMessageID(ctx context.Context, messageID string) (Record, error) {
	rec := Record{MessageID: messageID}
	var (
		instrumentUUID uuid.UUID
		orderUUID      *uuid.UUID
		parsed         []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT instrument_id, order_id, barcode, raw, parsed, received_at
		FROM sample_results
		WHERE message_id = $1
	`, messageID).Scan(&instrumentUUID, &orderUUID, &rec.Barcode, &rec.Raw, &parsed, &rec.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, sentinel.ErrNotFound
		}
		return Record{}, fmt.Errorf("find sample result: %w", err)
	}
	rec.InstrumentID = id.InstrumentID(instrumentUUID)
	if orderUUID != nil {
		oid := id.OrderID(*orderUUID)
		rec.OrderID = &oid
	}
	var result hl7.Result
	if err := json.Unmarshal(parsed, &result); err != nil {
		return Record{}, fmt.Errorf("decode parsed result: %w", err)
	}
	rec.Parsed = result
	return rec, nil
}
