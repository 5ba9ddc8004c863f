// Package agent answers site visitors and admins through an OpenAI chat
// model and records insights about public conversations.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

const (
	// FallbackAnswer replaces an empty completion.
	FallbackAnswer = "I'm not sure how to respond to that."

	maxTokens           = 1000
	insightLimit        = 50
	DefaultCacheSize    = 1000
	DefaultBusinessName = "Progress Accountants"
	insightWriteTimeout = 10 * time.Second
)

// ErrUnavailable is returned when no completion client is configured.
var ErrUnavailable = errors.New("agent is not configured")

// Options configures a Service.
type Options struct {
	// CacheSize bounds how many conversations are held in memory.
	CacheSize int
	// BusinessName is used in the public prompt and the summary.
	BusinessName string
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Service handles agent conversations. A nil Completer disables Respond.
type Service struct {
	store  store.Store
	llm    Completer
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex // serializes history read-modify-write
	cache *lru.Cache[convKey, []model.ChatMessage]
}

// convKey keys cached transcripts by mode too, so a public caller can never
// continue an admin transcript by sending its id.
type convKey struct {
	id   string
	mode string
}

func otherMode(mode string) string {
	if mode == model.AgentModeAdmin {
		return model.AgentModePublic
	}
	return model.AgentModeAdmin
}

func New(s store.Store, llm Completer, opts Options) (*Service, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.BusinessName == "" {
		opts.BusinessName = DefaultBusinessName
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[convKey, []model.ChatMessage](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	return &Service{store: s, llm: llm, opts: opts, logger: logger, cache: cache}, nil
}

// Enabled reports whether Respond can reach a model.
func (s *Service) Enabled() bool { return s.llm != nil }

// Request is one user message.
type Request struct {
	Message        string          `json:"message"`
	Mode           string          `json:"mode"`
	ConversationID string          `json:"conversationId"`
	Metadata       json.RawMessage `json:"metadata"`
	TenantID       string          `json:"-"`
	// Authenticated callers may use admin mode.
	Authenticated bool `json:"-"`
}

type Response struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	Mode           string `json:"mode"`
}

// EffectiveMode returns the mode a request runs in: admin only for
// authenticated callers, public otherwise.
func EffectiveMode(mode string, authenticated bool) string {
	if mode == model.AgentModeAdmin && authenticated {
		return model.AgentModeAdmin
	}
	return model.AgentModePublic
}

// Respond answers req, persisting the transcript. Public exchanges are
// analyzed into an insight; analysis failures are only logged.
func (s *Service) Respond(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "message", Message: "Message is required"}}}
	}
	if s.llm == nil {
		return nil, ErrUnavailable
	}
	mode := EffectiveMode(req.Mode, req.Authenticated)
	id, history := s.history(req.ConversationID, mode)
	history = append(history, model.ChatMessage{Role: "user", Content: req.Message})

	answer, err := s.llm.Complete(ctx, ChatRequest{Messages: history, MaxTokens: maxTokens})
	if err != nil {
		s.opts.Metrics.ObserveAgent(mode, "error")
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = FallbackAnswer
	}
	history = append(history, model.ChatMessage{Role: "assistant", Content: answer})
	s.remember(id, mode, history)
	s.opts.Metrics.ObserveAgent(mode, "ok")

	conv := &model.AgentConversation{
		ConversationID: id,
		TenantID:       req.TenantID,
		Messages:       history,
		Mode:           mode,
		Metadata:       req.Metadata,
	}
	if err := s.store.UpsertAgentConversation(ctx, conv); err != nil {
		s.logger.Error("failed to save conversation", "err", err, "conversation_id", id)
	}

	if mode == model.AgentModePublic {
		if err := s.recordInsight(ctx, id, req, answer); err != nil {
			s.logger.Error("failed to record conversation insight", "err", err, "conversation_id", id)
		}
	}
	return &Response{Message: answer, ConversationID: id, Mode: mode}, nil
}

// history returns the conversation id to use and a copy of its cached
// transcript, starting a new one with the mode's system prompt when none is
// cached. An id held by a conversation in the other mode is replaced by a
// fresh one.
func (s *Service) history(id, mode string) (string, []model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if h, ok := s.cache.Get(convKey{id, mode}); ok {
			return id, append([]model.ChatMessage(nil), h...)
		}
		if s.cache.Contains(convKey{id, otherMode(mode)}) {
			id = ""
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return id, []model.ChatMessage{{Role: "system", Content: SystemPrompt(mode, s.opts.BusinessName)}}
}

func (s *Service) remember(id, mode string, h []model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(convKey{id, mode}, h)
}

// CachedConversations reports how many transcripts are held in memory.
func (s *Service) CachedConversations() int { return s.cache.Len() }

type analysis struct {
	Intent            string   `json:"intent"`
	Sentiment         string   `json:"sentiment"`
	LeadPotential     bool     `json:"leadPotential"`
	ConfusionDetected bool     `json:"confusionDetected"`
	Tags              []string `json:"tags"`
	AnalysisNotes     string   `json:"analysisNotes"`
}

func (s *Service) recordInsight(ctx context.Context, id string, req Request, answer string) error {
	out, err := s.llm.Complete(ctx, ChatRequest{
		Messages:       []model.ChatMessage{{Role: "user", Content: AnalysisPrompt(s.opts.BusinessName, req.Message, answer)}},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("analyze exchange: %w", err)
	}
	var a analysis
	if strings.TrimSpace(out) != "" {
		if err := json.Unmarshal([]byte(out), &a); err != nil {
			return fmt.Errorf("decode analysis: %w", err)
		}
	}
	if a.Sentiment == "" {
		a.Sentiment = "neutral"
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}

	ins := &model.ConversationInsight{
		ConversationID:    id,
		TenantID:          req.TenantID,
		UserMessage:       req.Message,
		AgentResponse:     answer,
		Mode:              model.AgentModePublic,
		Intent:            a.Intent,
		Sentiment:         a.Sentiment,
		LeadPotential:     a.LeadPotential,
		ConfusionDetected: a.ConfusionDetected,
		Tags:              a.Tags,
		AnalysisNotes:     a.AnalysisNotes,
		Metadata:          req.Metadata,
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insightWriteTimeout)
	defer cancel()
	return s.store.CreateConversationInsight(wctx, ins)
}

// Insights returns the latest public-mode insights.
func (s *Service) Insights(ctx context.Context) ([]*model.ConversationInsight, error) {
	return s.store.ListConversationInsights(ctx, model.AgentModePublic, insightLimit)
}

func (s *Service) Stats(ctx context.Context) (*model.AgentStats, error) {
	return s.store.GetAgentStats(ctx)
}

// Tool is one entry of the instance summary.
type Tool struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Summary describes the instance the agent runs in.
type Summary struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	TenantID    string    `json:"tenantId"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
	Tools       []Tool    `json:"tools"`
	Stats       struct {
		Conversations int `json:"conversations"`
		Insights      int `json:"insights"`
		Leads         int `json:"leads"`
	} `json:"stats"`
}

// SummaryVersion is reported by Summary.
const SummaryVersion = "1.1.1"

var summaryTools = []Tool{
	{ID: "page-builder", Status: "operational", Version: "1.0.4"},
	{ID: "media-manager", Status: "operational", Version: "1.2.1"},
	{ID: "seo-manager", Status: "operational", Version: "0.9.8"},
	{ID: "social-media-generator", Status: "operational", Version: "1.0.0"},
}

// Summary reports the instance with agent counts. The tenant's name is
// used when tenantID names a stored tenant.
func (s *Service) Summary(ctx context.Context, tenantID string) (*Summary, error) {
	stats, err := s.store.GetAgentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	sum := &Summary{
		Name:        s.opts.BusinessName,
		Version:     SummaryVersion,
		TenantID:    tenantID,
		Status:      "operational",
		LastUpdated: time.Now().UTC(),
		Tools:       append([]Tool(nil), summaryTools...),
	}
	if tenantID != "" {
		if t, err := s.store.GetTenant(ctx, tenantID); err == nil {
			sum.Name = t.Name
		}
	}
	sum.Stats.Conversations = stats.TotalConversations
	sum.Stats.Insights = stats.TotalInsights
	sum.Stats.Leads = stats.LeadPotential
	return sum, nil
}
