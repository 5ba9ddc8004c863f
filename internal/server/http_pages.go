package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/model"
	"github.com/nextmonth/smartsite/internal/seo"
)

// handleListPages handles GET /api/pages.
func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListPages(r.Context(), tenantFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err, "page", "failed to list pages")
		return
	}
	if pages == nil {
		pages = []*model.Page{}
	}
	writeJSON(w, http.StatusOK, pages)
}

type pageInput struct {
	Path       *string         `json:"path"`
	Title      *string         `json:"title"`
	SEO        *model.PageSEO  `json:"seo"`
	Components json.RawMessage `json:"components"`
}

func (in *pageInput) apply(p *model.Page) {
	if in.Path != nil {
		p.Path = strings.TrimSpace(*in.Path)
	}
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.SEO != nil {
		p.SEO = *in.SEO
	}
	if in.Components != nil {
		p.Components = in.Components
	}
}

// handleCreatePage handles POST /api/pages. Pages start unpublished.
func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var in pageInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "page", "failed to create page")
		return
	}
	p := &model.Page{TenantID: tenantFromContext(r.Context())}
	in.apply(p)
	if err := model.ValidatePage(p); err != nil {
		s.fail(w, r, err, "page", "failed to create page")
		return
	}
	if err := s.store.CreatePage(r.Context(), p); err != nil {
		s.fail(w, r, err, "page", "failed to create page")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// scopedPage loads the {id} page. Pages of other tenants are reported as
// missing unless the caller is a super admin.
func (s *Server) scopedPage(w http.ResponseWriter, r *http.Request, msg string) *model.Page {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err, "page", msg)
		return nil
	}
	ctx := r.Context()
	p, err := s.store.GetPage(ctx, id)
	if err != nil {
		s.fail(w, r, err, "page", msg)
		return nil
	}
	if p.TenantID != tenantFromContext(ctx) && !auth.UserFromContext(ctx).IsSuperAdmin {
		writeError(w, http.StatusNotFound, "page not found")
		return nil
	}
	return p
}

// handleGetPage handles GET /api/pages/{id}.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	if p := s.scopedPage(w, r, "failed to get page"); p != nil {
		writeJSON(w, http.StatusOK, p)
	}
}

// handleUpdatePage handles PUT /api/pages/{id}. A published page stays
// published and announces the new content.
func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	p := s.scopedPage(w, r, "failed to update page")
	if p == nil {
		return
	}
	var in pageInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "page", "failed to update page")
		return
	}
	in.apply(p)
	if err := model.ValidatePage(p); err != nil {
		s.fail(w, r, err, "page", "failed to update page")
		return
	}
	if err := s.store.UpdatePage(r.Context(), p); err != nil {
		s.fail(w, r, err, "page", "failed to update page")
		return
	}
	if p.Published {
		s.emit(r.Context(), events.TopicPagePublished, events.PagePublished{Page: p})
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePublishPage handles POST /api/pages/{id}/publish.
func (s *Server) handlePublishPage(w http.ResponseWriter, r *http.Request) {
	s.setPublished(w, r, true)
}

// handleUnpublishPage handles POST /api/pages/{id}/unpublish.
func (s *Server) handleUnpublishPage(w http.ResponseWriter, r *http.Request) {
	s.setPublished(w, r, false)
}

func (s *Server) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	p := s.scopedPage(w, r, "failed to update page")
	if p == nil {
		return
	}
	if p.Published == published {
		writeJSON(w, http.StatusOK, p)
		return
	}
	p.Published = published
	if err := s.store.UpdatePage(r.Context(), p); err != nil {
		s.fail(w, r, err, "page", "failed to update page")
		return
	}
	if published {
		s.emit(r.Context(), events.TopicPagePublished, events.PagePublished{Page: p})
	} else {
		s.emit(r.Context(), events.TopicPageUnpublished, events.PageUnpublished{PageID: p.ID, TenantID: p.TenantID})
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePageKeywords handles GET /api/seo/pages/{id}/keywords. A page that
// cannot be analyzed yields the fallback result rather than an error.
func (s *Server) handlePageKeywords(w http.ResponseWriter, r *http.Request) {
	p := s.scopedPage(w, r, "failed to analyze page")
	if p == nil {
		return
	}
	res, err := seo.AnalyzePage(p)
	if err != nil {
		s.logger.Warn("keyword analysis failed", "err", err, "page_id", p.ID)
		res = seo.ErrorResult()
	}
	writeJSON(w, http.StatusOK, res)
}

type analyzeInput struct {
	Content           string          `json:"content"`
	Components        json.RawMessage `json:"components"`
	Title             string          `json:"title"`
	PrimaryKeyword    string          `json:"primaryKeyword"`
	SecondaryKeywords []string        `json:"secondaryKeywords"`
}

// handleAnalyzeContent handles POST /api/seo/analyze for unsaved content,
// given as plain text or as page components.
func (s *Server) handleAnalyzeContent(w http.ResponseWriter, r *http.Request) {
	var in analyzeInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, "content", "failed to analyze content")
		return
	}
	text := in.Content
	if text == "" && len(in.Components) > 0 {
		var err error
		if text, err = seo.ExtractText(in.Components); err != nil {
			writeError(w, http.StatusBadRequest, "invalid components")
			return
		}
	}
	writeJSON(w, http.StatusOK, seo.Analyze(seo.Input{
		Words:     seo.Words(text),
		Title:     in.Title,
		Primary:   in.PrimaryKeyword,
		Secondary: in.SecondaryKeywords,
	}))
}
