package ingest

import (
	"time"

	"labflow/internal/hl7"
	id "labflow/pkg/domain"
)

// ResultEvent is the "result published" payload consumed from the broker.
// MessageID is the idempotency key; the same event may be delivered more than
// once.
type ResultEvent struct {
	MessageID    string          `json:"messageId"`
	InstrumentID id.InstrumentID `json:"instrumentId"`
	OrderID      *id.OrderID     `json:"orderId,omitempty"`
	Barcode      string          `json:"barcode"`
	Raw          string          `json:"raw"`
	PublishedAt  time.Time       `json:"publishedAt"`
}

// Outcome classifies the handling of one result event.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeFailed    Outcome = "FAILED"
)

// Record persists the structured observations together with the raw payload
// so every stored result stays traceable to the bytes it came from.
type Record struct {
	MessageID    string
	InstrumentID id.InstrumentID
	OrderID      *id.OrderID
	Barcode      string
	Raw          []byte
	Parsed       hl7.Result
	ReceivedAt   time.Time
}
