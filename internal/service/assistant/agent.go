package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"webbuilder/internal/conversation"
	"webbuilder/internal/metrics"
	"webbuilder/internal/models"
	"webbuilder/internal/service/ai"
)

const DefaultHistoryWindow = 10

// Result kinds besides the ai.ErrorKind values.
const (
	KindMissingCredential = "missing_credential"
	kindSuccess           = "success"
)

// MissingCredentialMessage is the result error of a generation attempted
// before an API key is configured.
const MissingCredentialMessage = "API key not set. Please set your OpenAI API key."

var ErrMissingCredential = errors.New("api key not set")

// Journal mirrors agent state to durable storage.
type Journal interface {
	AppendMessage(ctx context.Context, msg models.Message) error
	SaveGeneratedCode(ctx context.Context, code string) error
	Clear(ctx context.Context) error
	Load(ctx context.Context) ([]models.Message, string, error)
}

// Config carries the static settings of an Agent.
type Config struct {
	APIKey        string
	HistoryWindow int
	SystemPrompt  string
}

type Option func(*Agent)

// WithJournal mirrors every mutation into j.
func WithJournal(j Journal) Option {
	return func(a *Agent) { a.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// Agent owns the credential, the conversation log and the last generated
// code. Individual methods are safe for concurrent use, but two concurrent
// GenerateWebsite calls may interleave their turns; hosts serialize them
// through a single-writer queue.
type Agent struct {
	mu           sync.RWMutex
	apiKey       string
	lastCode     string
	completer    ai.Completer
	completerKey string

	factory      ai.Factory
	conversation *conversation.Store
	window       int
	systemPrompt string

	journal Journal
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewAgent builds an agent that obtains completers from factory.
func NewAgent(factory ai.Factory, cfg Config, opts ...Option) *Agent {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt
	}
	a := &Agent{
		apiKey:       cfg.APIKey,
		factory:      factory,
		conversation: conversation.NewStore(),
		window:       window,
		systemPrompt: prompt,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetAPIKey sets or replaces the credential used for completions.
func (a *Agent) SetAPIKey(key string) {
	a.mu.Lock()
	a.apiKey = key
	a.mu.Unlock()
}

// HasAPIKey reports whether a credential is configured.
func (a *Agent) HasAPIKey() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.apiKey != ""
}

// GenerateWebsite runs one conversational turn. The user message is recorded
// before the completion call and stays in history even when the call fails.
// Failures are reported in the result, never returned as errors.
func (a *Agent) GenerateWebsite(ctx context.Context, request string) models.GenerateResult {
	a.mu.RLock()
	apiKey := a.apiKey
	a.mu.RUnlock()
	if apiKey == "" {
		a.metrics.RecordGeneration(KindMissingCredential, 0)
		a.log.Warn().Err(ErrMissingCredential).Msg("generation rejected")
		return models.GenerateResult{Error: MissingCredentialMessage, Kind: KindMissingCredential}
	}

	a.record(ctx, models.RoleUser, request)

	completer, err := a.completerFor(apiKey)
	if err != nil {
		return a.fail(err, 0)
	}

	start := time.Now()
	reply, err := completer.Complete(ctx, a.outbound())
	elapsed := time.Since(start)
	if err != nil {
		return a.fail(err, elapsed)
	}

	extracted := Extract(reply)
	a.mu.Lock()
	a.lastCode = extracted.Code
	a.mu.Unlock()
	if a.journal != nil {
		if err := a.journal.SaveGeneratedCode(context.WithoutCancel(ctx), extracted.Code); err != nil {
			a.log.Warn().Err(err).Msg("journal generated code failed")
		}
	}
	a.record(ctx, models.RoleAssistant, reply)

	a.metrics.RecordGeneration(kindSuccess, elapsed)
	a.log.Info().
		Int("code_bytes", len(extracted.Code)).
		Dur("duration", elapsed).
		Msg("website generated")
	return models.GenerateResult{Code: extracted.Code, Explanation: extracted.Explanation}
}

// outbound is the system instruction followed by the recent window, which
// always ends with the user turn just recorded.
func (a *Agent) outbound() []models.Message {
	window := a.conversation.RecentWindow(a.window)
	messages := make([]models.Message, 0, len(window)+1)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: a.systemPrompt})
	return append(messages, window...)
}

func (a *Agent) fail(err error, elapsed time.Duration) models.GenerateResult {
	kind := string(ai.KindOf(err))
	a.metrics.RecordGeneration(kind, elapsed)
	a.log.Error().Err(err).Str("kind", kind).Msg("website generation failed")
	return models.GenerateResult{
		Error: fmt.Sprintf("Error generating website: %v", err),
		Kind:  kind,
	}
}

// completerFor reuses the cached completer while the credential is unchanged.
func (a *Agent) completerFor(apiKey string) (ai.Completer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completer != nil && a.completerKey == apiKey {
		return a.completer, nil
	}
	if a.factory == nil {
		return nil, errors.New("completion service not configured")
	}
	completer, err := a.factory(apiKey)
	if err != nil {
		return nil, fmt.Errorf("init completion client: %w", err)
	}
	a.completer = completer
	a.completerKey = apiKey
	return completer, nil
}

// record appends to memory and mirrors to the journal. The journal write is
// detached from cancellation so it stays in step with the in-memory log.
func (a *Agent) record(ctx context.Context, role models.Role, content string) {
	msg := a.conversation.Append(role, content)
	a.metrics.SetConversationLength(a.conversation.Len())
	if a.journal == nil {
		return
	}
	if err := a.journal.AppendMessage(context.WithoutCancel(ctx), msg); err != nil {
		a.log.Warn().Err(err).Str("role", string(role)).Msg("journal message failed")
	}
}

// History returns the whole conversation in chronological order.
func (a *Agent) History() []models.Message {
	return a.conversation.Messages()
}

// ConversationLength reports the number of recorded messages.
func (a *Agent) ConversationLength() int {
	return a.conversation.Len()
}

// LastGeneratedCode returns the code of the most recent successful generation.
func (a *Agent) LastGeneratedCode() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastCode
}

// ClearHistory drops the conversation and the last generated code.
func (a *Agent) ClearHistory(ctx context.Context) {
	a.mu.Lock()
	a.conversation.Clear()
	a.lastCode = ""
	a.mu.Unlock()
	a.metrics.SetConversationLength(0)
	if a.journal != nil {
		if err := a.journal.Clear(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn().Err(err).Msg("journal clear failed")
		}
	}
}

// Status summarises the agent.
func (a *Agent) Status() models.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return models.Status{
		HasAPIKey:          a.apiKey != "",
		HasGeneratedCode:   a.lastCode != "",
		ConversationLength: a.conversation.Len(),
	}
}

// SaveCodeToFile writes the last generated code to path, creating parent
// directories. Nothing is written when no code has been generated.
func (a *Agent) SaveCodeToFile(path string) error {
	code := a.LastGeneratedCode()
	if code == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("write generated code: %w", err)
	}
	return nil
}

// Restore rebuilds the conversation and last code from the journal.
func (a *Agent) Restore(ctx context.Context) error {
	if a.journal == nil {
		return nil
	}
	history, code, err := a.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	a.mu.Lock()
	a.conversation.Restore(history)
	a.lastCode = code
	a.mu.Unlock()
	a.metrics.SetConversationLength(len(history))
	return nil
}
