package notify

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/tinytelemetry/errwatch/internal/model"
)

type stubWriter struct {
	nextID int64
	err    error
}

func (s *stubWriter) Insert(rec model.NewRecord) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.nextID++
	return s.nextID, nil
}

type capturePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *capturePublisher) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return c.err
}

func TestWriterPublishesInsertedRecords(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWriter(&stubWriter{}, pub, "")

	id, err := w.Insert(model.NewRecord{Level: "FATAL", Message: "down", ResponseTime: 12})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	if len(pub.payloads) != 1 || pub.subjects[0] != DefaultSubject {
		t.Fatalf("published %d payloads on %v", len(pub.payloads), pub.subjects)
	}

	var evt Event
	if err := json.Unmarshal(pub.payloads[0], &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.ID != 1 || evt.Level != "FATAL" || evt.ResponseTime != 12 || evt.ObservedAt.IsZero() {
		t.Errorf("event = %+v", evt)
	}
}

func TestWriterSkipsPublishOnInsertError(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWriter(&stubWriter{err: errors.New("boom")}, pub, "custom")

	if _, err := w.Insert(model.NewRecord{Level: "ERROR"}); err == nil {
		t.Fatal("expected insert error")
	}
	if len(pub.payloads) != 0 {
		t.Error("published after failed insert")
	}
}

func TestWriterIgnoresPublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("nats unavailable")}
	w := NewWriter(&stubWriter{}, pub, "custom")

	id, err := w.Insert(model.NewRecord{Level: "ERROR"})
	if err != nil || id != 1 {
		t.Errorf("Insert = (%d, %v), want (1, nil)", id, err)
	}
	if pub.subjects[0] != "custom" {
		t.Errorf("subject = %q", pub.subjects[0])
	}
}
