package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"webbuilder/internal/models"
)

// Completer maps an ordered message list to a single reply text.
type Completer interface {
	Complete(ctx context.Context, messages []models.Message) (string, error)
}

// Options holds the static request settings shared by every completion.
type Options struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Factory builds a Completer bound to one credential. The agent rebuilds its
// completer through the factory whenever the credential changes.
type Factory func(apiKey string) (Completer, error)

// NewFactory returns a Factory producing eino-backed chat clients.
func NewFactory(opts Options) Factory {
	return func(apiKey string) (Completer, error) {
		return NewChatClient(context.Background(), apiKey, opts)
	}
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	chatModel model.BaseChatModel
	model     string
}

// NewChatClient configures the eino OpenAI chat model for one credential.
func NewChatClient(ctx context.Context, apiKey string, opts Options) (*ChatClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	cfg := &openai.ChatModelConfig{
		BaseURL: opts.BaseURL,
		Model:   opts.Model,
		APIKey:  apiKey,
		Timeout: opts.Timeout,
		HTTPClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: statusRecorder{next: http.DefaultTransport},
		},
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	temperature := opts.Temperature
	cfg.Temperature = &temperature

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return &ChatClient{chatModel: chatModel, model: opts.Model}, nil
}

// Complete sends one non-streaming request and returns the first candidate's text.
func (c *ChatClient) Complete(ctx context.Context, messages []models.Message) (string, error) {
	status := &upstreamStatus{}
	ctx = context.WithValue(ctx, upstreamStatusKey{}, status)
	resp, err := c.chatModel.Generate(ctx, convertMessages(messages))
	if err != nil {
		return "", classify(err, status.answered.Load())
	}
	if resp == nil {
		return "", &CompletionError{Kind: KindMalformedResponse, Err: errors.New("completion returned no message")}
	}
	return resp.Content, nil
}

func convertMessages(messages []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}

type upstreamStatusKey struct{}

// upstreamStatus records whether the endpoint answered with a 2xx status
// during one Complete call.
type upstreamStatus struct {
	answered atomic.Bool
}

type statusRecorder struct {
	next http.RoundTripper
}

func (r statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if status, ok := req.Context().Value(upstreamStatusKey{}).(*upstreamStatus); ok {
			status.answered.Store(true)
		}
	}
	return resp, err
}

// classify tags an upstream failure. A failure after a 2xx answer, or a body
// that does not decode, means the payload had an unexpected shape; everything
// else is a transport problem.
func classify(err error, answered bool) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CompletionError{Kind: KindTransport, Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if answered || errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		strings.Contains(err.Error(), "empty choices") {
		return &CompletionError{Kind: KindMalformedResponse, Err: err}
	}
	return &CompletionError{Kind: KindTransport, Err: err}
}
