package reagent

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "labflow/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Install(ctx context.Context, r Reagent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reagents (id, instrument_id, name, lot_number, quantity, min_threshold, expires_at, in_use, installed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, uuid.UUID(r.InstrumentID), r.Name, r.LotNumber, r.Quantity, r.MinThreshold, r.ExpiresAt, r.InUse, r.InstalledAt)
	if err != nil {
		return fmt.Errorf("insert reagent: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListInUse(ctx context.Context, instrumentID id.InstrumentID) ([]Reagent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, lot_number, quantity, min_threshold, expires_at, installed_at
		FROM reagents
		WHERE instrument_id = $1 AND in_use = TRUE
	`, uuid.UUID(instrumentID))
	if err != nil {
		return nil, fmt.Errorf("query in-use reagents: %w", err)
	}
	defer rows.Close()

	var out []Reagent
	for rows.Next() {
		r := Reagent{InstrumentID: instrumentID, InUse: true}
		if err := rows.Scan(&r.ID, &r.Name, &r.LotNumber, &r.Quantity, &r.MinThreshold, &r.ExpiresAt, &r.InstalledAt); err != nil {
			return nil, fmt.Errorf("scan reagent: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reagents: %w", err)
	}
	return out, nil
}
