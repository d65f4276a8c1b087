package explain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

const (
	DefaultDeployment = "gpt-4.1-mini"
	DefaultAPIVersion = "2024-02-15-preview"
	DefaultTimeout    = 60 * time.Second
)

const systemPrompt = `You are an expert in analyzing Tomcat WAS logs.
You diagnose errors raised by Java web applications running on an application server and propose fixes.

Consider:
- the meaning of HTTP response codes
- memory issues (OutOfMemoryError, GC pressure)
- database connectivity
- network and timeout issues
- application logic errors

Answer in exactly this layout:
Cause analysis:
- [specific cause]

Remediation:
- [actionable fix]`

const userPromptTemplate = `Analyze the following Tomcat WAS error log:

Level: %s
Message: %s
Response time: %dms
Occurred at: %s

Explain the cause of this error and how to fix it.`

// AzureConfig configures the Azure OpenAI chat completions client.
type AzureConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Timeout    time.Duration
}

// AzureClient calls an Azure OpenAI chat deployment.
type AzureClient struct {
	deployment string
	client     openai.Client
}

// NewAzureClient returns ErrNotConfigured when the endpoint or key is missing.
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("explain: invalid endpoint: %w", err)
	}
	if cfg.Deployment == "" {
		cfg.Deployment = DefaultDeployment
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &AzureClient{
		deployment: cfg.Deployment,
		client: openai.NewClient(
			azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(cfg.Timeout),
			option.WithMaxRetries(0),
		),
	}, nil
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	hint := ""
	switch e.Code {
	case http.StatusUnauthorized:
		hint = " (check the API key and endpoint)"
	case http.StatusNotFound:
		hint = " (check the deployment name and endpoint)"
	case http.StatusTooManyRequests:
		hint = " (rate limited, retry later)"
	}
	return fmt.Sprintf("explain: backend returned %d%s: %s", e.Code, hint, e.Message)
}

// Explain sends one chat completion request and returns the answer text.
func (c *AzureClient) Explain(ctx context.Context, req Request) (string, error) {
	ts := "N/A"
	if !req.Timestamp.IsZero() {
		ts = req.Timestamp.Format("2006-01-02 15:04:05")
	}

	// The azure middleware routes on Model, which names the deployment.
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.deployment),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf(userPromptTemplate, req.Level, req.Message, req.ResponseTime, ts)),
		},
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.StatusCode)
			}
			return "", &StatusError{Code: apiErr.StatusCode, Message: msg}
		}
		return "", fmt.Errorf("explain: request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("explain: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
