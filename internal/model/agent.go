package model

import (
	"encoding/json"
	"time"
)

// Agent chat modes.
const (
	AgentModePublic = "public"
	AgentModeAdmin  = "admin"
)

// ChatMessage is one turn of an agent conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentConversation is the persisted transcript of one conversation.
type AgentConversation struct {
	ID             int64           `json:"id"`
	ConversationID string          `json:"conversationId"`
	TenantID       string          `json:"tenantId,omitempty"`
	Messages       []ChatMessage   `json:"messages"`
	Mode           string          `json:"mode"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ConversationInsight is the analysis of one public-mode exchange.
type ConversationInsight struct {
	ID                int64           `json:"id"`
	ConversationID    string          `json:"conversationId"`
	TenantID          string          `json:"tenantId,omitempty"`
	UserMessage       string          `json:"userMessage"`
	AgentResponse     string          `json:"agentResponse"`
	Mode              string          `json:"mode"`
	Intent            string          `json:"intent,omitempty"`
	Sentiment         string          `json:"sentiment"`
	LeadPotential     bool            `json:"leadPotential"`
	ConfusionDetected bool            `json:"confusionDetected"`
	Tags              []string        `json:"tags"`
	AnalysisNotes     string          `json:"analysisNotes,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// AgentStats summarizes stored agent activity.
type AgentStats struct {
	TotalConversations int `json:"totalConversations"`
	TotalInsights      int `json:"totalInsights"`
	LeadPotential      int `json:"leadPotential"`
}
