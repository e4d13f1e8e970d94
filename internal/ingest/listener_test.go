package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"labflow/internal/hl7"
	"labflow/internal/platform/kafka"
	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

const validPayload = "MSH|^~\\&|ANALYZER|LAB|LIS|HOSP|20260314090000||ORU^R01|MSG1|P|2.5\r" +
	"OBX|1|NM|WBC^Leukocytes||6.2|10*9/L|4.0-10.0|N\r"

type stubCompleter struct {
	calls []string
	err   error
}

func (c *stubCompleter) RecordSampleResult(_ context.Context, barcode string, _ time.Time) error {
	c.calls = append(c.calls, barcode)
	return c.err
}

type failingStore struct {
	err error
}

func (s *failingStore) Save(context.Context, Record) error { return s.err }
func (s *failingStore) FindByMessageID(context.Context, string) (Record, error) {
	return Record{}, sentinel.ErrNotFound
}

type ListenerSuite struct {
	suite.Suite
	ctx       context.Context
	store     *InMemoryStore
	completer *stubCompleter
	listener  *Listener
}

func TestListenerSuite(t *testing.T) {
	suite.Run(t, new(ListenerSuite))
}

func (s *ListenerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.completer = &stubCompleter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.listener = NewListener(hl7.NewParser(), s.store, nil, s.completer, nil, logger)
}

func (s *ListenerSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *ListenerSuite) message(messageID, barcode, raw string) *kafka.Message {
	event := ResultEvent{
		MessageID:    messageID,
		InstrumentID: id.NewInstrumentID(),
		Barcode:      barcode,
		Raw:          raw,
		PublishedAt:  time.Now(),
	}
	value, err := json.Marshal(event)
	require.NoError(s.T(), err)
	return &kafka.Message{
		Topic:     "lab.results.published",
		Key:       []byte(messageID),
		Value:     value,
		Timestamp: time.Now(),
	}
}

func (s *ListenerSuite) TestHandle() {
	s.Run("success persists the result and advances the sample", func() {
		err := s.listener.Handle(s.ctx, s.message("msg-1", "BC00000001", validPayload))
		s.NoError(err)

		rec, err := s.store.FindByMessageID(s.ctx, "msg-1")
		s.Require().NoError(err)
		s.Equal("BC00000001", rec.Barcode)
		s.Equal([]byte(validPayload), rec.Raw, "raw payload stored alongside structured results")
		s.Len(rec.Parsed.Observations, 1)
		s.Equal([]string{"BC00000001"}, s.completer.calls)
	})

	s.Run("redelivery of the same message id is a duplicate no-op", func() {
		s.Require().NoError(s.listener.Handle(s.ctx, s.message("msg-2", "BC00000002", validPayload)))
		first, err := s.store.FindByMessageID(s.ctx, "msg-2")
		s.Require().NoError(err)

		s.NoError(s.listener.Handle(s.ctx, s.message("msg-2", "BC00000002", validPayload)))

		again, err := s.store.FindByMessageID(s.ctx, "msg-2")
		s.Require().NoError(err)
		s.Equal(first, again, "nothing was double-persisted")
		s.Equal([]string{"BC00000002", "BC00000002"}, s.completer.calls,
			"the advance is re-run on redelivery; the service makes it idempotent")
	})

	s.Run("redelivery retries the sample advance after a transient failure", func() {
		s.completer.err = errors.New("deadlock detected")
		err := s.listener.Handle(s.ctx, s.message("msg-7", "BC00000008", validPayload))
		s.Error(err, "offset stays uncommitted while the advance is pending")

		s.completer.err = nil
		s.NoError(s.listener.Handle(s.ctx, s.message("msg-7", "BC00000008", validPayload)))
		s.Equal([]string{"BC00000008", "BC00000008"}, s.completer.calls,
			"the stored-row conflict does not swallow the advance")
	})

	s.Run("parse failure is classified, committed, and not persisted", func() {
		err := s.listener.Handle(s.ctx, s.message("msg-3", "BC00000003", "garbage"))
		s.NoError(err, "classified failures commit the offset")

		_, err = s.store.FindByMessageID(s.ctx, "msg-3")
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.Empty(s.completer.calls)
	})

	s.Run("malformed event json is a classified failure", func() {
		err := s.listener.Handle(s.ctx, &kafka.Message{Value: []byte("{not json")})
		s.NoError(err)
	})

	s.Run("missing message id is a classified failure", func() {
		err := s.listener.Handle(s.ctx, s.message("", "BC00000004", validPayload))
		s.NoError(err)
	})

	s.Run("result without an in-flight sample still succeeds", func() {
		s.completer.err = sentinel.ErrNotFound
		err := s.listener.Handle(s.ctx, s.message("msg-4", "BC00000005", validPayload))
		s.NoError(err)
		_, err = s.store.FindByMessageID(s.ctx, "msg-4")
		s.NoError(err)
	})

	s.Run("storage failure propagates for broker redelivery", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		broken := NewListener(hl7.NewParser(), &failingStore{err: errors.New("connection reset")},
			nil, s.completer, nil, logger)

		err := broken.Handle(s.ctx, s.message("msg-5", "BC00000006", validPayload))
		s.Error(err, "unclassified errors leave the offset uncommitted")
	})

	s.Run("completer failure propagates for broker redelivery", func() {
		s.completer.err = errors.New("deadlock detected")
		err := s.listener.Handle(s.ctx, s.message("msg-6", "BC00000007", validPayload))
		s.Error(err)
	})
}

func (s *ListenerSuite) TestDedupeMarking() {
	s.Run("message id is marked only after the full pipeline succeeds", func() {
		cache := &stubDeduper{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		broken := NewListener(hl7.NewParser(), &failingStore{err: errors.New("connection reset")},
			cache, s.completer, nil, logger)

		s.Error(broken.Handle(s.ctx, s.message("msg-10", "BC00000010", validPayload)))
		s.Empty(cache.marks, "a failed save must not poison the cache")

		healthy := NewListener(hl7.NewParser(), s.store, cache, s.completer, nil, logger)
		s.NoError(healthy.Handle(s.ctx, s.message("msg-10", "BC00000010", validPayload)))
		s.Equal([]string{"msg-10"}, cache.marks)
	})

	s.Run("a failed advance leaves the message unmarked", func() {
		cache := &stubDeduper{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		listener := NewListener(hl7.NewParser(), s.store, cache, s.completer, nil, logger)

		s.completer.err = errors.New("deadlock detected")
		s.Error(listener.Handle(s.ctx, s.message("msg-11", "BC00000011", validPayload)))
		s.Empty(cache.marks)

		s.completer.err = nil
		s.NoError(listener.Handle(s.ctx, s.message("msg-11", "BC00000011", validPayload)))
		s.Equal([]string{"msg-11"}, cache.marks, "marked once the advance lands on redelivery")
	})

	s.Run("cache hit short-circuits without touching store or completer", func() {
		cache := &stubDeduper{seen: map[string]bool{"msg-12": true}}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		listener := NewListener(hl7.NewParser(), s.store, cache, s.completer, nil, logger)

		s.NoError(listener.Handle(s.ctx, s.message("msg-12", "BC00000012", validPayload)))
		s.Empty(s.completer.calls)
		_, err := s.store.FindByMessageID(s.ctx, "msg-12")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

type stubDeduper struct {
	seen  map[string]bool
	marks []string
}

func (d *stubDeduper) Seen(_ context.Context, messageID string) bool {
	return d.seen[messageID]
}

func (d *stubDeduper) Mark(_ context.Context, messageID string) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[messageID] = true
	d.marks = append(d.marks, messageID)
}
