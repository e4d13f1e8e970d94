package cassette

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

// PostgresStore persists cassette queues. The dequeue is a single conditional
// update with FOR UPDATE SKIP LOCKED, so concurrent triggers for the same
// instrument can never claim the same cassette.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Enqueue(ctx context.Context, instrumentID id.InstrumentID, samples []SampleSpec) (Cassette, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Cassette{}, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cassetteID := id.NewCassetteID()
	now := time.Now()

	// Lock the instrument row so concurrent enqueues for the same instrument
	// serialize before reading MAX(queue_position). Without it two
	// transactions can compute the same position and the loser dies on the
	// unique index.
	var lockedID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM instruments WHERE id = $1 FOR UPDATE
	`, uuid.UUID(instrumentID)).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cassette{}, sentinel.ErrNotFound
		}
		return Cassette{}, fmt.Errorf("lock instrument for enqueue: %w", err)
	}

	// Position assignment and insert in one statement keeps the per-instrument
	// counter monotonic; the unique index on (instrument_id, queue_position)
	// backstops anything that bypasses the lock.
	var position int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO cassettes (id, instrument_id, queue_position, processed, created_at)
		SELECT $1, $2, COALESCE(MAX(queue_position), 0) + 1, FALSE, $3
		FROM cassettes
		WHERE instrument_id = $2
		RETURNING queue_position
	`, uuid.UUID(cassetteID), uuid.UUID(instrumentID), now).Scan(&position)
	if err != nil {
		return Cassette{}, fmt.Errorf("insert cassette: %w", err)
	}

	for i, sample := range samples {
		var orderID *uuid.UUID
		if sample.OrderID != nil {
			u := uuid.UUID(*sample.OrderID)
			orderID = &u
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cassette_samples (cassette_id, position, barcode, order_id)
			VALUES ($1, $2, $3, $4)
		`, uuid.UUID(cassetteID), i, sample.Barcode, orderID)
		if err != nil {
			return Cassette{}, fmt.Errorf("insert cassette sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Cassette{}, fmt.Errorf("commit enqueue tx: %w", err)
	}

	return Cassette{
		ID:            cassetteID,
		InstrumentID:  instrumentID,
		QueuePosition: position,
		Samples:       append([]SampleSpec(nil), samples...),
		CreatedAt:     now,
	}, nil
}

func (s *PostgresStore) TakeNext(ctx context.Context, instrumentID id.InstrumentID) (Cassette, error) {
	// Atomic pop-front: the subquery picks the head of the queue, SKIP LOCKED
	// makes concurrent takers pass over a row already being claimed.
	query := `
		UPDATE cassettes
		SET processed = TRUE
		WHERE id = (
			SELECT id FROM cassettes
			WHERE instrument_id = $1 AND processed = FALSE
			ORDER BY queue_position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue_position, created_at
	`
	var (
		cassetteUUID uuid.UUID
		c            Cassette
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(instrumentID)).Scan(
		&cassetteUUID, &c.QueuePosition, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cassette{}, sentinel.ErrNotFound
		}
		return Cassette{}, fmt.Errorf("take next cassette: %w", err)
	}
	c.ID = id.CassetteID(cassetteUUID)
	c.InstrumentID = instrumentID
	c.Processed = true

	samples, err := s.loadSamples(ctx, c.ID)
	if err != nil {
		return Cassette{}, err
	}
	c.Samples = samples
	return c, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, cassetteID id.CassetteID) (Cassette, error) {
	query := `
		SELECT instrument_id, queue_position, processed, created_at
		FROM cassettes
		WHERE id = $1
	`
	var (
		instrumentUUID uuid.UUID
		c              Cassette
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(cassetteID)).Scan(
		&instrumentUUID, &c.QueuePosition, &c.Processed, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cassette{}, sentinel.ErrNotFound
		}
		return Cassette{}, fmt.Errorf("find cassette: %w", err)
	}
	c.ID = cassetteID
	c.InstrumentID = id.InstrumentID(instrumentUUID)

	samples, err := s.loadSamples(ctx, cassetteID)
	if err != nil {
		return Cassette{}, err
	}
	c.Samples = samples
	return c, nil
}

func (s *PostgresStore) loadSamples(ctx context.Context, cassetteID id.CassetteID) ([]SampleSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT barcode, order_id
		FROM cassette_samples
		WHERE cassette_id = $1
		ORDER BY position
	`, uuid.UUID(cassetteID))
	if err != nil {
		return nil, fmt.Errorf("query cassette samples: %w", err)
	}
	defer rows.Close()

	var samples []SampleSpec
	for rows.Next() {
		var (
			spec      SampleSpec
			orderUUID *uuid.UUID
		)
		if err := rows.Scan(&spec.Barcode, &orderUUID); err != nil {
			return nil, fmt.Errorf("scan cassette sample: %w", err)
		}
		if orderUUID != nil {
			oid := id.OrderID(*orderUUID)
			spec.OrderID = &oid
		}
		samples = append(samples, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cassette samples: %w", err)
	}
	return samples, nil
}
