package repository

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork groups both stores behind a single transaction boundary
type UnitOfWork interface {
	Catalog() CatalogRepository
	Provenance() ProvenanceRepository
	WithTransaction(ctx context.Context, fn func(tx UnitOfWork) error) error
}

// Store is the gorm backed UnitOfWork
type Store struct {
	db         *gorm.DB
	cache      *ProductCache
	catalog    CatalogRepository
	provenance ProvenanceRepository
}

// NewStore wires the catalog and provenance repositories on one database
func NewStore(db *gorm.DB, cache *ProductCache) *Store {
	return &Store{
		db:         db,
		cache:      cache,
		catalog:    NewCatalogRepository(db, cache),
		provenance: NewProvenanceRepository(db),
	}
}

func (s *Store) Catalog() CatalogRepository {
	return s.catalog
}

func (s *Store) Provenance() ProvenanceRepository {
	return s.provenance
}

// DB exposes the underlying handle for health checks
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTransaction runs fn with repositories bound to one database transaction.
// Cached products written inside fn are evicted once the transaction commits.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx UnitOfWork) error) error {
	var touched []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txStore{
			catalog:    &catalogRepository{db: tx, cache: s.cache, touched: &touched},
			provenance: &provenanceRepository{db: tx},
		})
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, touched...)
	return nil
}

type txStore struct {
	catalog    *catalogRepository
	provenance *provenanceRepository
}

func (t *txStore) Catalog() CatalogRepository {
	return t.catalog
}

func (t *txStore) Provenance() ProvenanceRepository {
	return t.provenance
}

// WithTransaction on a bound store joins the running transaction
func (t *txStore) WithTransaction(ctx context.Context, fn func(tx UnitOfWork) error) error {
	return fn(t)
}
