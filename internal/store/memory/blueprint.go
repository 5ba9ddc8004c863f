package memory

import (
	"context"
	"sort"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

func (s *Store) CreateBlueprintTemplate(_ context.Context, t *model.BlueprintTemplate) error {
	if err := s.lock("CreateBlueprintTemplate"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	t.ID = s.data.next("templates")
	s.data.templates[t.ID] = cp(t)
	return nil
}

func (s *Store) GetBlueprintTemplate(_ context.Context, id int64) (*model.BlueprintTemplate, error) {
	if err := s.lock("GetBlueprintTemplate"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	t, ok := s.data.templates[id]
	if !ok {
		return nil, notFound("blueprint template", id)
	}
	return cp(t), nil
}

func (s *Store) ListBlueprintTemplates(_ context.Context) ([]*model.BlueprintTemplate, error) {
	if err := s.lock("ListBlueprintTemplates"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.BlueprintTemplate
	for _, t := range s.data.templates {
		out = append(out, cp(t))
	}
	sortNewestFirst(out, func(t *model.BlueprintTemplate) (time.Time, int64) { return t.CreatedAt, t.ID })
	return out, nil
}

func (s *Store) UpdateBlueprintTemplate(_ context.Context, t *model.BlueprintTemplate) error {
	if err := s.lock("UpdateBlueprintTemplate"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.data.templates[t.ID]
	if !ok {
		return notFound("blueprint template", t.ID)
	}
	t.InstanceID, t.TenantID, t.CreatedAt = old.InstanceID, old.TenantID, old.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.data.templates[t.ID] = cp(t)
	return nil
}

func (s *Store) CreateBlueprintExport(_ context.Context, e *model.BlueprintExport) error {
	if err := s.lock("CreateBlueprintExport"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	e.CreatedAt = time.Now().UTC()
	e.ID = s.data.next("exports")
	s.data.exports[e.ID] = cp(e)
	return nil
}

// --- Clone operations ---

func (s *Store) CreateCloneOperation(_ context.Context, op *model.CloneOperation) error {
	if err := s.lock("CreateCloneOperation"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if op.StartedAt.IsZero() {
		op.StartedAt = time.Now().UTC()
	}
	op.ID = s.data.next("clones")
	s.data.clones[op.ID] = cp(op)
	return nil
}

func (s *Store) findClone(requestID string) (*model.CloneOperation, bool) {
	for _, op := range s.data.clones {
		if op.RequestID == requestID {
			return op, true
		}
	}
	return nil, false
}

func (s *Store) UpdateCloneOperation(_ context.Context, op *model.CloneOperation) error {
	if err := s.lock("UpdateCloneOperation"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	old, ok := s.findClone(op.RequestID)
	if !ok {
		return notFound("clone operation", op.RequestID)
	}
	c := cp(old)
	c.Status, c.ErrorMessage, c.Metadata, c.CompletedAt = op.Status, op.ErrorMessage, op.Metadata, op.CompletedAt
	s.data.clones[c.ID] = c
	return nil
}

func (s *Store) GetCloneOperation(_ context.Context, requestID string) (*model.CloneOperation, error) {
	if err := s.lock("GetCloneOperation"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	op, ok := s.findClone(requestID)
	if !ok {
		return nil, notFound("clone operation", requestID)
	}
	return cp(op), nil
}

func (s *Store) ListCloneOperations(_ context.Context, limit int) ([]*model.CloneOperation, error) {
	if err := s.lock("ListCloneOperations"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []*model.CloneOperation
	for _, op := range s.data.clones {
		out = append(out, cp(op))
	}
	sortNewestFirst(out, func(op *model.CloneOperation) (time.Time, int64) { return op.StartedAt, op.ID })
	return truncate(out, limit), nil
}

// Exports returns the stored exports of instanceID in creation order.
func (s *Store) Exports(instanceID string) []*model.BlueprintExport {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.BlueprintExport
	for _, e := range s.data.exports {
		if e.InstanceID == instanceID {
			out = append(out, cp(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
