package business

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrProfileNotFound indicates no profile exists for the lookup key.
var ErrProfileNotFound = errors.New("business: profile not found")

// Repository retrieves tenant business profiles and product catalogs.
type Repository interface {
	GetByAccountID(ctx context.Context, accountID string) (*Profile, error)
	GetByInstanceName(ctx context.Context, instanceName string) (*Profile, error)
	ListProducts(ctx context.Context, accountID string) ([]Product, error)
}

// InMemoryRepository is a Repository for tests and single-tenant dev
// setups.
type InMemoryRepository struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile // accountID -> profile
	instances map[string]string   // instanceName -> accountID
	products  map[string][]Product
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles:  make(map[string]*Profile),
		instances: make(map[string]string),
		products:  make(map[string][]Product),
	}
}

// PutProfile stores a profile and binds the given instance names to it.
func (r *InMemoryRepository) PutProfile(p *Profile, instanceNames ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()
	r.profiles[p.AccountID] = p
	for _, name := range instanceNames {
		r.instances[name] = p.AccountID
	}
}

// PutProducts replaces the catalog for an account.
func (r *InMemoryRepository) PutProducts(accountID string, products []Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[accountID] = products
}

// GetByAccountID returns the profile for an account.
func (r *InMemoryRepository) GetByAccountID(_ context.Context, accountID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[accountID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByInstanceName resolves an instance name to its tenant profile.
func (r *InMemoryRepository) GetByInstanceName(ctx context.Context, instanceName string) (*Profile, error) {
	r.mu.RLock()
	accountID, ok := r.instances[instanceName]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrProfileNotFound
	}
	return r.GetByAccountID(ctx, accountID)
}

// ListProducts returns the catalog for an account.
func (r *InMemoryRepository) ListProducts(_ context.Context, accountID string) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Product(nil), r.products[accountID]...), nil
}
