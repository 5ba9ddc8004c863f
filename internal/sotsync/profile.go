package sotsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/store"
)

// Defaults fill profile fields the instance has not configured yet.
type Defaults struct {
	BusinessID   string
	BusinessName string
	BusinessType string
	Industry     string
	Description  string
	City         string
	Country      string
}

// DefaultProfile is the profile of the flagship Progress Accountants instance.
var DefaultProfile = Defaults{
	BusinessID:   "progress-accountants",
	BusinessName: "Progress Accountants",
	BusinessType: "Accounting Firm",
	Industry:     "Financial Services",
	Description: "Progress Accountants is a modern accounting firm specializing in complex industries " +
		"like film, music, and construction, offering financial expertise with personalized attention.",
	City:    "Banbury",
	Country: "United Kingdom",
}

// snapshot is everything read from storage for one sync run.
type snapshot struct {
	declaration *model.SOTDeclaration
	tenant      *model.Tenant
	business    *model.BusinessProfile
	pages       int
	users       int
}

// loadSnapshot reads the instance state. Missing rows are tolerated so a
// fresh instance can still report itself; other errors abort the run.
func loadSnapshot(ctx context.Context, s store.Store) (*snapshot, error) {
	var snap snapshot

	decl, err := s.GetLatestSOTDeclaration(ctx)
	if err := ignoreNotFound(err); err != nil {
		return nil, fmt.Errorf("latest declaration: %w", err)
	}
	snap.declaration = decl

	var tenantID string
	if decl != nil {
		tenantID = decl.InstanceID
	}
	if tenantID != "" {
		t, err := s.GetTenant(ctx, tenantID)
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("tenant: %w", err)
		}
		snap.tenant = t
	}

	admin, err := s.FirstAdminUser(ctx, tenantID)
	if err := ignoreNotFound(err); err != nil {
		return nil, fmt.Errorf("admin user: %w", err)
	}
	if admin != nil {
		bp, err := s.GetBusinessProfileByUser(ctx, admin.ID)
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("business profile: %w", err)
		}
		snap.business = bp
	}

	if snap.pages, err = s.CountPages(ctx, tenantID, true); err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if snap.users, err = s.CountUsers(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return &snap, nil
}

// buildProfile assembles the client profile reported to the SOT.
func buildProfile(snap *snapshot, d Defaults, now time.Time) *model.ClientProfile {
	p := &model.ClientProfile{
		BusinessID:    d.BusinessID,
		BusinessName:  d.BusinessName,
		BusinessType:  d.BusinessType,
		Industry:      d.Industry,
		Description:   d.Description,
		Location:      model.ProfileLocation{City: d.City, Country: d.Country},
		DateOnboarded: now,
		LastSync:      now,
	}

	if t := snap.tenant; t != nil {
		p.BusinessID = t.ID
		p.BusinessName = firstNonEmpty(t.Name, p.BusinessName)
		p.DateOnboarded = t.CreatedAt
	} else if snap.declaration != nil && snap.declaration.InstanceID != "" {
		p.BusinessID = snap.declaration.InstanceID
	}

	if bp := snap.business; bp != nil {
		p.BusinessName = firstNonEmpty(bp.BusinessName, p.BusinessName)
		p.Industry = firstNonEmpty(bp.Industry, p.Industry)
		p.Description = firstNonEmpty(bp.Description, p.Description)
		if bp.Location != "" {
			p.Location = parseLocation(bp.Location, p.Location)
		}
		p.Features.HasCustomBranding = bp.Logo != "" || bp.CoverImage != ""
	}

	var tools []string
	if snap.declaration != nil {
		tools = snap.declaration.ToolsSupported
	}
	p.Metrics = model.ProfileMetrics{
		TotalPages: snap.pages,
		TotalUsers: snap.users,
		TotalTools: len(tools),
	}
	p.Features.HasPublishedPages = snap.pages > 0
	p.Features.HasCRM = slices.Contains(tools, "crm")
	p.Features.HasAnalytics = slices.Contains(tools, "analytics")
	return p
}

// parseLocation splits "City, Country". A single value is taken as the city
// and the fallback country is kept.
func parseLocation(s string, fallback model.ProfileLocation) model.ProfileLocation {
	i := strings.LastIndex(s, ",")
	if i < 0 {
		return model.ProfileLocation{City: strings.TrimSpace(s), Country: fallback.Country}
	}
	city := strings.TrimSpace(s[:i])
	country := strings.TrimSpace(s[i+1:])
	return model.ProfileLocation{
		City:    firstNonEmpty(city, fallback.City),
		Country: firstNonEmpty(country, fallback.Country),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func ignoreNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
