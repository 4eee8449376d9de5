package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"webbuilder/internal/models"
	"webbuilder/internal/service/ai"
)

type fakeCompleter struct {
	replies []string
	err     error
	calls   [][]models.Message
	// onCall runs before the reply is returned.
	onCall func()
}

func (f *fakeCompleter) Complete(_ context.Context, messages []models.Message) (string, error) {
	f.calls = append(f.calls, append([]models.Message(nil), messages...))
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

type memoryJournal struct {
	messages []models.Message
	code     string
	cleared  int
	err      error
}

func (j *memoryJournal) AppendMessage(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.err != nil {
		return j.err
	}
	j.messages = append(j.messages, msg)
	return nil
}

func (j *memoryJournal) SaveGeneratedCode(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.err != nil {
		return j.err
	}
	j.code = code
	return nil
}

func (j *memoryJournal) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.cleared++
	j.messages = nil
	j.code = ""
	return j.err
}

func (j *memoryJournal) Load(_ context.Context) ([]models.Message, string, error) {
	return j.messages, j.code, j.err
}

func newTestAgent(t *testing.T, completer *fakeCompleter, apiKey string, opts ...Option) (*Agent, *int) {
	t.Helper()
	builds := 0
	factory := func(key string) (ai.Completer, error) {
		builds++
		return completer, nil
	}
	return NewAgent(factory, Config{APIKey: apiKey}, opts...), &builds
}

func TestGenerateWebsiteWithoutKey(t *testing.T) {
	completer := &fakeCompleter{}
	agent, builds := newTestAgent(t, completer, "")

	result := agent.GenerateWebsite(context.Background(), "make a page")
	if result.Error != "API key not set. Please set your OpenAI API key." {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if result.Code != "" || result.Explanation != "" {
		t.Fatalf("expected empty code and explanation, got %+v", result)
	}
	if result.Kind != KindMissingCredential {
		t.Fatalf("expected kind %q, got %q", KindMissingCredential, result.Kind)
	}
	if agent.ConversationLength() != 0 {
		t.Fatalf("history must stay empty, got %d", agent.ConversationLength())
	}
	if *builds != 0 || len(completer.calls) != 0 {
		t.Fatalf("completion service must not be contacted")
	}
}

func TestGenerateWebsiteSuccess(t *testing.T) {
	reply := "Here you go.\n```html\n<h1>Hi</h1>\n```"
	completer := &fakeCompleter{replies: []string{reply}}
	agent, _ := newTestAgent(t, completer, "sk-test")

	result := agent.GenerateWebsite(context.Background(), "a greeting page")
	if result.Failed() {
		t.Fatalf("unexpected failure: %s", result.Error)
	}
	if result.Code != "<h1>Hi</h1>" || result.Explanation != "Here you go." {
		t.Fatalf("unexpected result %+v", result)
	}
	if agent.LastGeneratedCode() != "<h1>Hi</h1>" {
		t.Fatalf("last code not stored")
	}
	history := agent.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != "a greeting page" {
		t.Fatalf("unexpected user message %+v", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Content != reply {
		t.Fatalf("assistant message must hold the raw reply, got %+v", history[1])
	}

	sent := completer.calls[0]
	if len(sent) != 2 || sent[0].Role != models.RoleSystem || sent[0].Content != SystemPrompt {
		t.Fatalf("system prompt must lead the outbound messages: %+v", sent)
	}
	if sent[1].Role != models.RoleUser || sent[1].Content != "a greeting page" {
		t.Fatalf("outbound must end with the new request: %+v", sent[1])
	}
}

func TestGenerateWebsiteFailureKeepsUserMessage(t *testing.T) {
	completer := &fakeCompleter{err: &ai.CompletionError{Kind: ai.KindTransport, Err: errors.New("connection refused")}}
	agent, _ := newTestAgent(t, completer, "sk-test")

	result := agent.GenerateWebsite(context.Background(), "x")
	if !strings.HasPrefix(result.Error, "Error generating website: ") {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if !strings.Contains(result.Error, "connection refused") {
		t.Fatalf("error must carry the cause, got %q", result.Error)
	}
	if result.Kind != string(ai.KindTransport) {
		t.Fatalf("expected transport kind, got %q", result.Kind)
	}
	if result.Code != "" || result.Explanation != "" {
		t.Fatalf("failure must not carry output: %+v", result)
	}
	history := agent.History()
	if len(history) != 1 || history[0].Role != models.RoleUser {
		t.Fatalf("expected only the user message, got %+v", history)
	}
}

func TestGenerateWebsiteMalformedKind(t *testing.T) {
	completer := &fakeCompleter{err: &ai.CompletionError{Kind: ai.KindMalformedResponse, Err: errors.New("bad json")}}
	agent, _ := newTestAgent(t, completer, "sk-test")

	result := agent.GenerateWebsite(context.Background(), "x")
	if result.Kind != string(ai.KindMalformedResponse) {
		t.Fatalf("expected malformed kind, got %q", result.Kind)
	}
}

func TestGenerateWebsiteFailureKeepsPreviousCode(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"```html\n<p>v1</p>\n```"}}
	agent, _ := newTestAgent(t, completer, "sk-test")
	agent.GenerateWebsite(context.Background(), "v1")

	completer.err = errors.New("boom")
	agent.GenerateWebsite(context.Background(), "v2")
	if agent.LastGeneratedCode() != "<p>v1</p>" {
		t.Fatalf("failed turn must not touch last code, got %q", agent.LastGeneratedCode())
	}
}

func TestGenerateWebsiteWithoutCodeClearsLastCode(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"```html\n<p>v1</p>\n```", "Sure, what colour?"}}
	agent, _ := newTestAgent(t, completer, "sk-test")
	agent.GenerateWebsite(context.Background(), "v1")

	result := agent.GenerateWebsite(context.Background(), "change it")
	if result.Code != "" || result.Explanation != "Sure, what colour?" {
		t.Fatalf("unexpected result %+v", result)
	}
	if agent.LastGeneratedCode() != "" {
		t.Fatalf("reply without code resets last code, got %q", agent.LastGeneratedCode())
	}
}

func TestOutboundWindowIsBounded(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"ok"}}
	agent, _ := newTestAgent(t, completer, "sk-test")
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		agent.GenerateWebsite(ctx, fmt.Sprintf("request %d", i))
	}
	for i, sent := range completer.calls {
		history := 2*i + 1
		want := history
		if want > DefaultHistoryWindow {
			want = DefaultHistoryWindow
		}
		if len(sent) != want+1 {
			t.Fatalf("call %d: expected %d outbound messages, got %d", i, want+1, len(sent))
		}
		last := sent[len(sent)-1]
		if last.Role != models.RoleUser || last.Content != fmt.Sprintf("request %d", i) {
			t.Fatalf("call %d: window must end with the new request, got %+v", i, last)
		}
	}
}

func TestCompleterReusedUntilKeyChanges(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"ok"}}
	agent, builds := newTestAgent(t, completer, "sk-one")
	ctx := context.Background()

	agent.GenerateWebsite(ctx, "a")
	agent.GenerateWebsite(ctx, "b")
	if *builds != 1 {
		t.Fatalf("expected one client build, got %d", *builds)
	}
	agent.SetAPIKey("sk-two")
	agent.GenerateWebsite(ctx, "c")
	if *builds != 2 {
		t.Fatalf("expected rebuild after key change, got %d", *builds)
	}
}

func TestFactoryErrorReported(t *testing.T) {
	factory := func(string) (ai.Completer, error) { return nil, errors.New("bad base url") }
	agent := NewAgent(factory, Config{APIKey: "sk"})

	result := agent.GenerateWebsite(context.Background(), "x")
	if !strings.Contains(result.Error, "bad base url") {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if agent.ConversationLength() != 1 {
		t.Fatalf("user message must be recorded, got %d", agent.ConversationLength())
	}
}

func TestClearHistoryResetsState(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"```html\n<p>x</p>\n```"}}
	journal := &memoryJournal{}
	agent, _ := newTestAgent(t, completer, "sk-test", WithJournal(journal))
	agent.GenerateWebsite(context.Background(), "x")

	agent.ClearHistory(context.Background())
	status := agent.Status()
	if status.ConversationLength != 0 || status.HasGeneratedCode {
		t.Fatalf("unexpected status after clear %+v", status)
	}
	if !status.HasAPIKey {
		t.Fatalf("clear must keep the credential")
	}
	if journal.cleared != 1 {
		t.Fatalf("journal not cleared")
	}
}

func TestStatus(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"```html\n<p>x</p>\n```"}}
	agent, _ := newTestAgent(t, completer, "")
	if got := agent.Status(); got != (models.Status{}) {
		t.Fatalf("unexpected initial status %+v", got)
	}
	agent.SetAPIKey("sk")
	agent.GenerateWebsite(context.Background(), "x")
	want := models.Status{HasAPIKey: true, HasGeneratedCode: true, ConversationLength: 2}
	if got := agent.Status(); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestJournalMirrorsTurns(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"```html\n<p>x</p>\n```"}}
	journal := &memoryJournal{}
	agent, _ := newTestAgent(t, completer, "sk-test", WithJournal(journal))
	agent.GenerateWebsite(context.Background(), "x")

	if len(journal.messages) != 2 || journal.code != "<p>x</p>" {
		t.Fatalf("journal out of sync: %+v", journal)
	}

	restored := NewAgent(nil, Config{}, WithJournal(journal))
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ConversationLength() != 2 || restored.LastGeneratedCode() != "<p>x</p>" {
		t.Fatalf("restore mismatch: %+v", restored.Status())
	}
}

func TestJournalFailureDoesNotFailTurn(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"```html\n<p>x</p>\n```"}}
	journal := &memoryJournal{err: errors.New("disk full")}
	agent, _ := newTestAgent(t, completer, "sk-test", WithJournal(journal))

	result := agent.GenerateWebsite(context.Background(), "x")
	if result.Failed() {
		t.Fatalf("journal errors must not fail generation: %s", result.Error)
	}
	if agent.ConversationLength() != 2 {
		t.Fatalf("in-memory history must still advance")
	}
}

func TestJournalKeepsTurnWhenRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	completer := &fakeCompleter{replies: []string{"```html\n<p>x</p>\n```"}, onCall: cancel}
	journal := &memoryJournal{}
	agent, _ := newTestAgent(t, completer, "sk-test", WithJournal(journal))

	result := agent.GenerateWebsite(ctx, "x")
	if result.Failed() {
		t.Fatalf("unexpected failure: %s", result.Error)
	}
	if len(journal.messages) != 2 || journal.code != "<p>x</p>" {
		t.Fatalf("journal must hold the whole turn, got %d messages and %q", len(journal.messages), journal.code)
	}

	agent.ClearHistory(ctx)
	if journal.cleared != 1 {
		t.Fatalf("clear with a cancelled request must still reach the journal")
	}
}

func TestSaveCodeToFile(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"```html\n<p>saved</p>\n```"}}
	agent, _ := newTestAgent(t, completer, "sk-test")
	path := filepath.Join(t.TempDir(), "nested", "dir", "site.html")

	if err := agent.SaveCodeToFile(path); err != nil {
		t.Fatalf("save without code: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("nothing should be written without code")
	}

	agent.GenerateWebsite(context.Background(), "x")
	if err := agent.SaveCodeToFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "<p>saved</p>" {
		t.Fatalf("unexpected file content %q", data)
	}
}
