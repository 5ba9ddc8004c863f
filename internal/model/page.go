package model

import (
	"encoding/json"
	"time"
)

// PageSEO holds the search settings of a page.
type PageSEO struct {
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	PrimaryKeyword string   `json:"primaryKeyword,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// Page is a tenant page built from JSON components.
type Page struct {
	ID         int64           `json:"id"`
	TenantID   string          `json:"tenantId"`
	Path       string          `json:"path"`
	Title      string          `json:"title"`
	Published  bool            `json:"published"`
	SEO        PageSEO         `json:"seo"`
	Components json.RawMessage `json:"components,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
