package explain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/errwatch/internal/model"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name            string
		text            string
		wantStructured  bool
		wantCause       string
		wantRemediation string
	}{
		{
			name:            "both sections",
			text:            "Cause analysis:\n- heap too small\n\nRemediation:\n- raise -Xmx",
			wantStructured:  true,
			wantCause:       "- heap too small",
			wantRemediation: "- raise -Xmx",
		},
		{
			name:            "preamble before sections",
			text:            "Here you go.\nCause analysis: pool leak\nRemediation: close connections",
			wantStructured:  true,
			wantCause:       "pool leak",
			wantRemediation: "close connections",
		},
		{name: "missing remediation", text: "Cause analysis: unknown"},
		{name: "reversed order", text: "Remediation: x\nCause analysis: y"},
		{name: "free text", text: "The server ran out of memory."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseAnalysis(tt.text)
			if a.Structured != tt.wantStructured {
				t.Fatalf("Structured = %v, want %v", a.Structured, tt.wantStructured)
			}
			if a.Cause != tt.wantCause || a.Remediation != tt.wantRemediation {
				t.Errorf("got cause=%q remediation=%q", a.Cause, a.Remediation)
			}
			if a.Text != strings.TrimSpace(tt.text) {
				t.Errorf("Text = %q", a.Text)
			}
		})
	}
}

type mapFinder map[int64]model.ErrorRecord

func (m mapFinder) ByID(id int64) (model.ErrorRecord, bool, error) {
	r, ok := m[id]
	return r, ok, nil
}

type stubExplainer struct {
	got  Request
	text string
	err  error
}

func (s *stubExplainer) Explain(ctx context.Context, req Request) (string, error) {
	s.got = req
	return s.text, s.err
}

func TestServiceExplainRecord(t *testing.T) {
	rec := model.ErrorRecord{ID: 7, Level: "FATAL", Message: "pool exhausted", ResponseTime: 3000, Timestamp: time.Now()}
	stub := &stubExplainer{text: "Cause analysis: leak\nRemediation: fix it"}
	s := NewService(mapFinder{7: rec}, stub)

	res, err := s.ExplainRecord(context.Background(), 7)
	if err != nil {
		t.Fatalf("ExplainRecord: %v", err)
	}
	if stub.got.Level != "FATAL" || stub.got.ResponseTime != 3000 || stub.got.Message != "pool exhausted" {
		t.Errorf("explainer got %+v", stub.got)
	}
	if !res.Analysis.Structured || res.Analysis.Cause != "leak" {
		t.Errorf("analysis = %+v", res.Analysis)
	}
	if res.Record.ID != 7 {
		t.Errorf("record id = %d", res.Record.ID)
	}

	if _, err := s.ExplainRecord(context.Background(), 8); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("unknown id err = %v, want ErrRecordNotFound", err)
	}

	stub.err = errors.New("backend down")
	if _, err := s.ExplainRecord(context.Background(), 7); err == nil {
		t.Error("expected explainer error to propagate")
	}
}

func TestServiceNotConfigured(t *testing.T) {
	s := NewService(mapFinder{}, nil)
	if s.Configured() {
		t.Error("service without explainer reports configured")
	}
	if _, err := s.ExplainRecord(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestNewAzureClientRequiresCredentials(t *testing.T) {
	if _, err := NewAzureClient(AzureConfig{Endpoint: "https://x.openai.azure.com"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing key err = %v", err)
	}
	if _, err := NewAzureClient(AzureConfig{APIKey: "k"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing endpoint err = %v", err)
	}
}

func TestAzureClientExplain(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4.1-mini",
			"choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"Cause analysis: a\nRemediation: b"}}]}`))
	}))
	defer srv.Close()

	c, err := NewAzureClient(AzureConfig{Endpoint: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewAzureClient: %v", err)
	}
	text, err := c.Explain(context.Background(), Request{Level: "ERROR", Message: "NPE", ResponseTime: 12})
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.HasPrefix(text, "Cause analysis:") {
		t.Errorf("text = %q", text)
	}
	if a := ParseAnalysis(text); !a.Structured {
		t.Errorf("answer not parsed into sections: %+v", a)
	}
	if gotPath != "/openai/deployments/gpt-4.1-mini/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != DefaultAPIVersion || gotKey != "secret" {
		t.Errorf("api-version=%q api-key=%q", gotQuery, gotKey)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("request messages = %+v", gotBody.Messages)
	}
	if !strings.Contains(gotBody.Messages[1].Content, "Response time: 12ms") {
		t.Errorf("user prompt = %q", gotBody.Messages[1].Content)
	}
	if !strings.Contains(gotBody.Messages[1].Content, "Occurred at: N/A") {
		t.Errorf("zero timestamp not rendered as N/A: %q", gotBody.Messages[1].Content)
	}
}

func TestAzureClientStatusError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"429","message":"slow down"}}`))
	}))
	defer srv.Close()

	c, _ := NewAzureClient(AzureConfig{Endpoint: srv.URL, APIKey: "k"})
	_, err := c.Explain(context.Background(), Request{Level: "ERROR"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Errorf("StatusError = %+v", se)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error %q has no rate-limit hint", err)
	}
	if calls != 1 {
		t.Errorf("backend called %d times, want 1 (no retries)", calls)
	}
}
