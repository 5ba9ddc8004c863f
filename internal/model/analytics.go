package model

import (
	"encoding/json"
	"time"
)

// Embed event kinds.
const (
	EmbedPageView = "page_view"
	EmbedEvent    = "event"
)

// EmbedEventRecord is a page view or custom event reported by the embed script.
type EmbedEventRecord struct {
	ID        int64           `json:"id"`
	TenantID  string          `json:"tenantId"`
	SessionID string          `json:"sessionId"`
	Kind      string          `json:"kind"`
	PageURL   string          `json:"pageUrl,omitempty"`
	PageTitle string          `json:"pageTitle,omitempty"`
	Referrer  string          `json:"referrer,omitempty"`
	EventName string          `json:"eventName,omitempty"`
	EventData json.RawMessage `json:"eventData,omitempty"`
	UserAgent string          `json:"userAgent,omitempty"`
	IPAddress string          `json:"ipAddress,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// PageCount is a page URL with its view count.
type PageCount struct {
	PageURL string `json:"pageUrl"`
	Views   int    `json:"views"`
}

// AnalyticsSummary aggregates embed events for a tenant over a window.
type AnalyticsSummary struct {
	TenantID       string      `json:"tenantId"`
	PageViews      int         `json:"pageViews"`
	UniqueSessions int         `json:"uniqueSessions"`
	Events         int         `json:"events"`
	TopPages       []PageCount `json:"topPages"`
}
