package memory

import (
	"context"
	"slices"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (s *Store) CreateSOTDeclaration(_ context.Context, d *model.SOTDeclaration) error {
	if err := s.lock("CreateSOTDeclaration"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = model.DeclarationPending
	}
	if d.ToolsSupported == nil {
		d.ToolsSupported = []string{}
	}
	d.ID = s.data.next("declarations")
	stored := cp(d)
	stored.ToolsSupported = slices.Clone(d.ToolsSupported)
	s.data.declarations[d.ID] = stored
	return nil
}

func (s *Store) UpdateSOTDeclaration(_ context.Context, d *model.SOTDeclaration) error {
	if err := s.lock("UpdateSOTDeclaration"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.data.declarations[d.ID]
	if !ok {
		return notFound("sot declaration", d.ID)
	}
	d.InstanceID, d.CreatedAt = old.InstanceID, old.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	stored := cp(d)
	stored.ToolsSupported = slices.Clone(d.ToolsSupported)
	s.data.declarations[d.ID] = stored
	return nil
}

func (s *Store) sortedDeclarations(instanceID string) []*model.SOTDeclaration {
	var out []*model.SOTDeclaration
	for _, d := range s.data.declarations {
		if instanceID != "" && d.InstanceID != instanceID {
			continue
		}
		c := cp(d)
		c.ToolsSupported = slices.Clone(d.ToolsSupported)
		out = append(out, c)
	}
	sortNewestFirst(out, func(d *model.SOTDeclaration) (time.Time, int64) { return d.CreatedAt, d.ID })
	return out
}

func (s *Store) GetLatestSOTDeclaration(_ context.Context) (*model.SOTDeclaration, error) {
	if err := s.lock("GetLatestSOTDeclaration"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	all := s.sortedDeclarations("")
	if len(all) == 0 {
		return nil, notFound("sot declaration", "latest")
	}
	return all[0], nil
}

func (s *Store) ListSOTDeclarations(_ context.Context, instanceID string) ([]*model.SOTDeclaration, error) {
	if err := s.lock("ListSOTDeclarations"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.sortedDeclarations(instanceID), nil
}

func (s *Store) UpsertSOTClientProfile(_ context.Context, p *model.SOTClientProfile) error {
	if err := s.lock("UpsertSOTClientProfile"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	now := time.Now().UTC()
	p.UpdatedAt = now
	if old, ok := s.data.clientProfile[p.BusinessID]; ok {
		p.ID, p.CreatedAt = old.ID, old.CreatedAt
	} else {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.ID = s.data.next("clientProfile")
	}
	s.data.clientProfile[p.BusinessID] = cp(p)
	return nil
}

func (s *Store) GetSOTClientProfile(_ context.Context, businessID string) (*model.SOTClientProfile, error) {
	if err := s.lock("GetSOTClientProfile"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if businessID != "" {
		p, ok := s.data.clientProfile[businessID]
		if !ok {
			return nil, notFound("client profile", businessID)
		}
		return cp(p), nil
	}
	var latest *model.SOTClientProfile
	for _, p := range s.data.clientProfile {
		if latest == nil || p.UpdatedAt.After(latest.UpdatedAt) ||
			(p.UpdatedAt.Equal(latest.UpdatedAt) && p.ID > latest.ID) {
			latest = p
		}
	}
	if latest == nil {
		return nil, notFound("client profile", "latest")
	}
	return cp(latest), nil
}

func (s *Store) CreateSOTSyncLog(_ context.Context, l *model.SOTSyncLog) error {
	if err := s.lock("CreateSOTSyncLog"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	l.CreatedAt = time.Now().UTC()
	l.ID = s.data.next("syncLogs")
	s.data.syncLogs[l.ID] = cp(l)
	return nil
}

func (s *Store) ListSOTSyncLogs(_ context.Context, limit int) ([]*model.SOTSyncLog, error) {
	if err := s.lock("ListSOTSyncLogs"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.SOTSyncLog
	for _, l := range s.data.syncLogs {
		out = append(out, cp(l))
	}
	sortNewestFirst(out, func(l *model.SOTSyncLog) (time.Time, int64) { return l.CreatedAt, l.ID })
	return truncate(out, limit), nil
}
