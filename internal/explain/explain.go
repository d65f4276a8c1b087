package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/errwatch/internal/model"
)

var (
	// ErrNotConfigured is returned when no explanation backend is set up.
	ErrNotConfigured = errors.New("explain: explanation service is not configured")
	// ErrRecordNotFound is returned for ids the store does not know.
	ErrRecordNotFound = errors.New("explain: record not found")
)

// Request is the record context sent to the explanation backend.
type Request struct {
	Level        string
	Message      string
	ResponseTime int
	Timestamp    time.Time
}

// Explainer produces a free-text diagnosis for one error record.
type Explainer interface {
	Explain(ctx context.Context, req Request) (string, error)
}

// RecordFinder looks a record up by id.
type RecordFinder interface {
	ByID(id int64) (model.ErrorRecord, bool, error)
}

// Analysis is the parsed form of an explanation. When the backend did not
// follow the two-section layout only Text is set.
type Analysis struct {
	Text        string `json:"text"`
	Structured  bool   `json:"structured"`
	Cause       string `json:"cause,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

const (
	causeLabel       = "Cause analysis:"
	remediationLabel = "Remediation:"
)

// ParseAnalysis splits text into cause and remediation sections when both
// labels appear in that order.
func ParseAnalysis(text string) Analysis {
	a := Analysis{Text: strings.TrimSpace(text)}
	ci := strings.Index(a.Text, causeLabel)
	ri := strings.Index(a.Text, remediationLabel)
	if ci < 0 || ri < 0 || ri < ci {
		return a
	}
	a.Structured = true
	a.Cause = strings.TrimSpace(a.Text[ci+len(causeLabel) : ri])
	a.Remediation = strings.TrimSpace(a.Text[ri+len(remediationLabel):])
	return a
}

// Result is one explained record.
type Result struct {
	Record   model.ErrorRecord `json:"record"`
	Analysis Analysis          `json:"analysis"`
}

// Service resolves record ids and forwards them to an Explainer.
type Service struct {
	finder    RecordFinder
	explainer Explainer
}

// NewService creates a service. A nil explainer makes every call return
// ErrNotConfigured.
func NewService(finder RecordFinder, explainer Explainer) *Service {
	return &Service{finder: finder, explainer: explainer}
}

// Configured reports whether an explainer is available.
func (s *Service) Configured() bool { return s != nil && s.explainer != nil }

// ExplainRecord looks up id and asks the explainer about it.
func (s *Service) ExplainRecord(ctx context.Context, id int64) (Result, error) {
	if !s.Configured() {
		return Result{}, ErrNotConfigured
	}
	rec, found, err := s.finder.ByID(id)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, fmt.Errorf("%w: id %d", ErrRecordNotFound, id)
	}

	text, err := s.explainer.Explain(ctx, Request{
		Level:        rec.Level,
		Message:      rec.Message,
		ResponseTime: rec.ResponseTime,
		Timestamp:    rec.Timestamp,
	})
	if err != nil {
		return Result{Record: rec}, err
	}
	return Result{Record: rec, Analysis: ParseAnalysis(text)}, nil
}
