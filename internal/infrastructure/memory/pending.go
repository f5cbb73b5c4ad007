package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

// PendingStore buffer offline en memoria (tests del cliente). No sobrevive al proceso.
type PendingStore struct {
	mu     sync.Mutex
	lastID int64
	items  []entity.PendingRequest
}

var _ repository.PendingRepository = (*PendingStore)(nil)

// NewPendingStore crea un buffer vacío.
func NewPendingStore() *PendingStore {
	return &PendingStore{}
}

func (s *PendingStore) Append(_ context.Context, p *entity.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.IdempotencyKey == p.IdempotencyKey {
			return domain.ErrDuplicateRequest
		}
	}
	s.lastID++
	p.ID = s.lastID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	cp.Payload = append([]byte(nil), p.Payload...)
	s.items = append(s.items, cp)
	return nil
}

func (s *PendingStore) List(_ context.Context) ([]*entity.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.PendingRequest, 0, len(s.items))
	for _, it := range s.items {
		cp := it
		out = append(out, &cp)
	}
	return out, nil
}

func (s *PendingStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *PendingStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *PendingStore) MarkFailed(_ context.Context, id int64, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Attempts++
			s.items[i].LastError = reason
			t := at
			s.items[i].LastAttemptAt = &t
			return nil
		}
	}
	return domain.ErrNotFound
}
