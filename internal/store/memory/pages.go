package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (s *Store) CreatePage(_ context.Context, p *model.Page) error {
	if err := s.lock("CreatePage"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, existing := range s.data.pages {
		if existing.TenantID == p.TenantID && existing.Path == p.Path {
			return errDuplicate("page", p.TenantID+":"+p.Path)
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.ID = s.data.next("pages")
	s.data.pages[p.ID] = clonePage(p)
	return nil
}

func clonePage(p *model.Page) *model.Page {
	c := cp(p)
	c.SEO.Keywords = slices.Clone(p.SEO.Keywords)
	return c
}

func (s *Store) GetPage(_ context.Context, id int64) (*model.Page, error) {
	if err := s.lock("GetPage"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	p, ok := s.data.pages[id]
	if !ok {
		return nil, notFound("page", id)
	}
	return clonePage(p), nil
}

func (s *Store) ListPages(_ context.Context, tenantID string) ([]*model.Page, error) {
	if err := s.lock("ListPages"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.Page
	for _, p := range s.data.pages {
		if tenantID == "" || p.TenantID == tenantID {
			out = append(out, clonePage(p))
		}
	}
	slices.SortFunc(out, func(a, b *model.Page) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (s *Store) UpdatePage(_ context.Context, p *model.Page) error {
	if err := s.lock("UpdatePage"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.data.pages[p.ID]
	if !ok {
		return notFound("page", p.ID)
	}
	p.TenantID, p.CreatedAt = old.TenantID, old.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.data.pages[p.ID] = clonePage(p)
	return nil
}

func (s *Store) CountPages(_ context.Context, tenantID string, publishedOnly bool) (int, error) {
	if err := s.lock("CountPages"); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.data.pages {
		if (tenantID == "" || p.TenantID == tenantID) && (!publishedOnly || p.Published) {
			n++
		}
	}
	return n, nil
}
