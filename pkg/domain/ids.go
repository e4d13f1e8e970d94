// Package domain holds typed identifiers shared across modules. Wrapping
// uuid.UUID in distinct types makes cross-entity assignment a compile error.
package domain

import (
	"github.com/google/uuid"

	dErrors "labflow/pkg/domain-errors"
)

// Typed identifiers for the core entities.
type (
	InstrumentID uuid.UUID
	CassetteID   uuid.UUID
	WorkflowID   uuid.UUID
	SampleID     uuid.UUID
	OrderID      uuid.UUID
)

func parseUUID(s, entity string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, entity+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+entity+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, entity+" id cannot be nil")
	}
	return u, nil
}

// ParseInstrumentID constructs an InstrumentID from external input.
func ParseInstrumentID(s string) (InstrumentID, error) {
	u, err := parseUUID(s, "instrument")
	return InstrumentID(u), err
}

// ParseCassetteID constructs a CassetteID from external input.
func ParseCassetteID(s string) (CassetteID, error) {
	u, err := parseUUID(s, "cassette")
	return CassetteID(u), err
}

// ParseWorkflowID constructs a WorkflowID from external input.
func ParseWorkflowID(s string) (WorkflowID, error) {
	u, err := parseUUID(s, "workflow")
	return WorkflowID(u), err
}

// ParseSampleID constructs a SampleID from external input.
func ParseSampleID(s string) (SampleID, error) {
	u, err := parseUUID(s, "sample")
	return SampleID(u), err
}

// ParseOrderID constructs an OrderID from external input.
func ParseOrderID(s string) (OrderID, error) {
	u, err := parseUUID(s, "order")
	return OrderID(u), err
}

func (id InstrumentID) String() string { return uuid.UUID(id).String() }
func (id CassetteID) String() string   { return uuid.UUID(id).String() }
func (id WorkflowID) String() string   { return uuid.UUID(id).String() }
func (id SampleID) String() string     { return uuid.UUID(id).String() }
func (id OrderID) String() string      { return uuid.UUID(id).String() }

// MarshalText/UnmarshalText keep the typed ids rendering as canonical UUID
// strings in JSON and logs instead of raw byte arrays.
func (id InstrumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id CassetteID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id WorkflowID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id SampleID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id OrderID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func unmarshalUUID(dst *uuid.UUID, text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*dst = u
	return nil
}

func (id *InstrumentID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *CassetteID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *WorkflowID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *SampleID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id *OrderID) UnmarshalText(text []byte) error {
	return unmarshalUUID((*uuid.UUID)(id), text)
}

func (id InstrumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CassetteID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id WorkflowID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SampleID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// NewInstrumentID returns a fresh random InstrumentID.
func NewInstrumentID() InstrumentID { return InstrumentID(uuid.New()) }

// NewCassetteID returns a fresh random CassetteID.
func NewCassetteID() CassetteID { return CassetteID(uuid.New()) }

// NewWorkflowID returns a fresh random WorkflowID.
func NewWorkflowID() WorkflowID { return WorkflowID(uuid.New()) }

// NewSampleID returns a fresh random SampleID.
func NewSampleID() SampleID { return SampleID(uuid.New()) }

// NewOrderID returns a fresh random OrderID.
func NewOrderID() OrderID { return OrderID(uuid.New()) }
