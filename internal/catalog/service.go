package catalog

import (
	"context"
	"fmt"

	"github.com/seastock/seastock/internal/shared"
)

// RepositoryPort abstracts product persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, p Product) (int64, error)
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	ListLowStock(ctx context.Context) ([]Product, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates product master data operations.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	audit AuditPort
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cache *Cache, audit AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit}
}

// Create inserts a new product after validation. This is the direct
// creation fast path; staff proposals go through the movement ledger.
func (s *Service) Create(ctx context.Context, p Product, actorID int64) (Product, error) {
	if err := s.validate(p); err != nil {
		return Product{}, err
	}
	id, err := s.repo.Insert(ctx, p)
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	s.recordAudit(ctx, actorID, "catalog:create", p)
	return p, nil
}

// Update replaces an existing product's descriptive fields after validation.
// Stored quantities are kept as-is: stock changes only through approved
// movements and executed sales.
func (s *Service) Update(ctx context.Context, p Product, actorID int64) (Product, error) {
	if p.ID == 0 {
		return Product{}, ErrProductNotFound
	}
	current, err := s.repo.Get(ctx, p.ID)
	if err != nil {
		return Product{}, err
	}
	p.QuantityBox = current.QuantityBox
	p.QuantityKg = current.QuantityKg
	if err := s.validate(p); err != nil {
		return Product{}, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return Product{}, err
	}
	s.cache.Invalidate(ctx, p.ID)
	s.recordAudit(ctx, actorID, "catalog:update", p)
	return p, nil
}

// Delete permanently removes a product. Dependent records go with it; the
// handler layer is responsible for operator confirmation.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	s.recordAudit(ctx, actorID, "catalog:delete", p)
	return nil
}

// Get returns a product, served from cache when available.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if s.cache == nil {
		return s.repo.Get(ctx, id)
	}
	return s.cache.GetOrLoad(ctx, id, func(ctx context.Context) (Product, error) {
		return s.repo.Get(ctx, id)
	})
}

// List returns products plus a total count for pagination.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	return s.repo.List(ctx, filter)
}

// ListLowStock returns products at or below their threshold.
func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

// InvalidateCache drops the cached snapshot after an external mutation,
// such as an approved movement or an executed sale.
func (s *Service) InvalidateCache(ctx context.Context, id int64) {
	s.cache.Invalidate(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, p Product) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", p.ID),
		Meta: map[string]any{
			"code": p.Code,
			"name": p.Name,
		},
	})
}
