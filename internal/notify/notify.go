package notify

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tinytelemetry/errwatch/internal/model"
)

// DefaultSubject is the NATS subject records are published on.
const DefaultSubject = "errwatch.records"

// Publisher sends raw payloads to a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes over a NATS connection.
type NATSPublisher struct {
	Conn *nats.Conn
}

// Connect dials the NATS server at url.
func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("errwatch"))
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{Conn: conn}, nil
}

func (p *NATSPublisher) Publish(subject string, data []byte) error {
	return p.Conn.Publish(subject, data)
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

// Event is the JSON payload published for each stored record.
type Event struct {
	ID           int64     `json:"id"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	ResponseTime int       `json:"response_time"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Writer is a RecordWriter that publishes every successful insert.
// Publish failures are logged and never fail the insert.
type Writer struct {
	next    model.RecordWriter
	pub     Publisher
	subject string
}

// NewWriter wraps next. An empty subject uses DefaultSubject.
func NewWriter(next model.RecordWriter, pub Publisher, subject string) *Writer {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Writer{next: next, pub: pub, subject: subject}
}

func (w *Writer) Insert(rec model.NewRecord) (int64, error) {
	id, err := w.next.Insert(rec)
	if err != nil {
		return id, err
	}

	observed := rec.Timestamp
	if observed.IsZero() {
		observed = time.Now()
	}
	data, err := json.Marshal(Event{
		ID:           id,
		Level:        rec.Level,
		Message:      rec.Message,
		ResponseTime: rec.ResponseTime,
		ObservedAt:   observed,
	})
	if err != nil {
		log.Printf("notify: marshal record %d: %v", id, err)
		return id, nil
	}
	if err := w.pub.Publish(w.subject, data); err != nil {
		log.Printf("notify: publish record %d to %s: %v", id, w.subject, err)
	}
	return id, nil
}

var _ model.RecordWriter = (*Writer)(nil)
