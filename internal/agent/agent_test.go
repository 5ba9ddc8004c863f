package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeLLM answers chat requests with reply and analysis requests with
// insight.
type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	insight  string
	err      error
	requests []ChatRequest
}

func (f *fakeLLM) Complete(_ context.Context, req ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if req.ResponseFormat != nil {
		return f.insight, nil
	}
	return f.reply, nil
}

func newService(t *testing.T, llm Completer) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc, err := New(st, llm, Options{CacheSize: 2, Logger: quiet})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, st
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode string
		auth bool
		want string
	}{
		{"admin", true, "admin"},
		{"admin", false, "public"},
		{"public", true, "public"},
		{"", false, "public"},
		{"other", true, "public"},
	}
	for _, tt := range tests {
		if got := EffectiveMode(tt.mode, tt.auth); got != tt.want {
			t.Errorf("EffectiveMode(%q, %v) = %q, want %q", tt.mode, tt.auth, got, tt.want)
		}
	}
}

func TestRespond_Validation(t *testing.T) {
	svc, _ := newService(t, &fakeLLM{})
	_, err := svc.Respond(context.Background(), Request{Message: "  "})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestRespond_Unavailable(t *testing.T) {
	svc, _ := newService(t, nil)
	if svc.Enabled() {
		t.Error("Enabled with no client")
	}
	if _, err := svc.Respond(context.Background(), Request{Message: "hi"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestRespond_PublicConversation(t *testing.T) {
	llm := &fakeLLM{
		reply:   "We offer tax planning.",
		insight: `{"intent":"services","leadPotential":true,"tags":["tax"],"analysisNotes":"Interested."}`,
	}
	svc, st := newService(t, llm)
	ctx := context.Background()

	resp, err := svc.Respond(ctx, Request{Message: "What do you do?", Mode: "admin", TenantID: "t1", Metadata: json.RawMessage(`{"page":"/"}`)})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Mode != model.AgentModePublic || resp.Message != "We offer tax planning." || resp.ConversationID == "" {
		t.Errorf("response = %+v", resp)
	}

	chat := llm.requests[0]
	if chat.MaxTokens != 1000 || len(chat.Messages) != 2 || chat.Messages[0].Role != "system" {
		t.Errorf("chat request = %+v", chat)
	}
	if !strings.Contains(chat.Messages[0].Content, "PUBLIC mode") {
		t.Errorf("system prompt = %q", chat.Messages[0].Content)
	}
	if llm.requests[1].ResponseFormat == nil || llm.requests[1].ResponseFormat.Type != "json_object" {
		t.Errorf("analysis request = %+v", llm.requests[1])
	}

	conv := st.Conversation(resp.ConversationID)
	if conv == nil || len(conv.Messages) != 3 || conv.TenantID != "t1" || conv.Mode != model.AgentModePublic {
		t.Fatalf("stored conversation = %+v", conv)
	}

	insights, err := svc.Insights(ctx)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(insights))
	}
	in := insights[0]
	if in.Intent != "services" || !in.LeadPotential || in.Sentiment != "neutral" || in.Tags[0] != "tax" {
		t.Errorf("insight = %+v", in)
	}

	stats, _ := svc.Stats(ctx)
	if stats.TotalConversations != 1 || stats.TotalInsights != 1 || stats.LeadPotential != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRespond_ContinuesConversation(t *testing.T) {
	llm := &fakeLLM{reply: "Hello again.", insight: "{}"}
	svc, st := newService(t, llm)
	ctx := context.Background()

	first, err := svc.Respond(ctx, Request{Message: "hi", Mode: "admin", Authenticated: true})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if first.Mode != model.AgentModeAdmin {
		t.Errorf("mode = %s, want admin", first.Mode)
	}
	_, err = svc.Respond(ctx, Request{Message: "status?", Mode: "admin", Authenticated: true, ConversationID: first.ConversationID})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	second := llm.requests[len(llm.requests)-1]
	if len(second.Messages) != 4 {
		t.Fatalf("history sent = %d messages, want 4", len(second.Messages))
	}
	if !strings.Contains(second.Messages[0].Content, "ADMIN mode") {
		t.Errorf("system prompt = %q", second.Messages[0].Content)
	}
	if conv := st.Conversation(first.ConversationID); len(conv.Messages) != 5 {
		t.Errorf("stored messages = %d, want 5", len(conv.Messages))
	}
	// Admin exchanges are not analyzed.
	if insights, _ := svc.Insights(ctx); len(insights) != 0 {
		t.Errorf("insights = %d, want 0", len(insights))
	}
}

func TestRespond_PublicCallerCannotJoinAdminConversation(t *testing.T) {
	llm := &fakeLLM{reply: "ok", insight: "{}"}
	svc, st := newService(t, llm)
	ctx := context.Background()

	admin, err := svc.Respond(ctx, Request{Message: "show revenue", Mode: "admin", Authenticated: true})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	visitor, err := svc.Respond(ctx, Request{Message: "what did they ask?", Mode: "admin", ConversationID: admin.ConversationID})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if visitor.Mode != model.AgentModePublic {
		t.Errorf("mode = %s, want public", visitor.Mode)
	}
	if visitor.ConversationID == admin.ConversationID {
		t.Fatal("anonymous caller reused the admin conversation id")
	}

	var chat ChatRequest
	for _, r := range llm.requests {
		if r.ResponseFormat == nil {
			chat = r
		}
	}
	if len(chat.Messages) != 2 || strings.Contains(chat.Messages[0].Content, "ADMIN mode") {
		t.Errorf("public request saw %d messages, system prompt %q", len(chat.Messages), chat.Messages[0].Content)
	}
	for _, m := range chat.Messages {
		if m.Content == "show revenue" {
			t.Fatal("admin transcript leaked into public request")
		}
	}
	if conv := st.Conversation(admin.ConversationID); conv.Mode != model.AgentModeAdmin || len(conv.Messages) != 3 {
		t.Errorf("admin conversation overwritten: mode %s, %d messages", conv.Mode, len(conv.Messages))
	}
}

func TestRespond_EmptyAnswerFallback(t *testing.T) {
	svc, _ := newService(t, &fakeLLM{reply: "", insight: "{}"})
	resp, err := svc.Respond(context.Background(), Request{Message: "?"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Message != FallbackAnswer {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestRespond_BadInsightIsLogged(t *testing.T) {
	svc, _ := newService(t, &fakeLLM{reply: "ok", insight: "not json"})
	if _, err := svc.Respond(context.Background(), Request{Message: "hi"}); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if insights, _ := svc.Insights(context.Background()); len(insights) != 0 {
		t.Errorf("insights = %d, want 0", len(insights))
	}
}

func TestRespond_CompletionError(t *testing.T) {
	svc, _ := newService(t, &fakeLLM{err: errors.New("boom")})
	if _, err := svc.Respond(context.Background(), Request{Message: "hi"}); err == nil {
		t.Error("Respond succeeded with failing model")
	}
}

func TestRespond_CacheIsBounded(t *testing.T) {
	svc, _ := newService(t, &fakeLLM{reply: "ok", insight: "{}"})
	for i := 0; i < 5; i++ {
		if _, err := svc.Respond(context.Background(), Request{Message: "hi"}); err != nil {
			t.Fatalf("Respond: %v", err)
		}
	}
	if n := svc.CachedConversations(); n != 2 {
		t.Errorf("cached = %d, want 2", n)
	}
}

func TestSummary(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	if err := st.CreateTenant(ctx, &model.Tenant{ID: "t1", Name: "Smith & Co", Status: model.TenantActive}); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	sum, err := svc.Summary(ctx, "t1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Name != "Smith & Co" || sum.Version != SummaryVersion || len(sum.Tools) != 4 {
		t.Errorf("summary = %+v", sum)
	}
	sum, _ = svc.Summary(ctx, "")
	if sum.Name != DefaultBusinessName {
		t.Errorf("name = %q", sum.Name)
	}
}

func TestClient_Complete(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{APIKey: "sk-test", BaseURL: srv.URL + "/", RPS: 100})
	out, err := c.Complete(context.Background(), ChatRequest{Messages: []model.ChatMessage{{Role: "user", Content: "hi"}}, MaxTokens: 10})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello" {
		t.Errorf("content = %q", out)
	}
	if got.Model != DefaultModel || got.MaxTokens != 10 {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"done"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, RPS: 100})
	c.backoff = fastBackOff
	out, err := c.Complete(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "done" || hits.Load() != 3 {
		t.Errorf("out = %q hits = %d", out, hits.Load())
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, RPS: 100})
	c.backoff = fastBackOff
	_, err := c.Complete(context.Background(), ChatRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	out, err := NewClient(ClientOptions{BaseURL: srv.URL}).Complete(context.Background(), ChatRequest{})
	if err != nil || out != "" {
		t.Errorf("Complete = %q, %v", out, err)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, RPS: 100})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := c.Complete(ctx, ChatRequest{}); err == nil {
		t.Fatal("Complete succeeded against a failing server")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Complete ignored cancellation for %v", time.Since(start))
	}
}

func fastBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }
