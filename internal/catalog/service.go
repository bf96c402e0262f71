package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound indicates the backend does not know the product.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrInvalidInput indicates an unusable product identifier.
	ErrInvalidInput = errors.New("catalog: invalid input")
)

// Catalog is the product read API consumed by register sessions.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

// Service fronts a Catalog source with a Redis cache. Cache failures fall through to the source.
type Service struct {
	source Catalog
	cache  *Cache
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source Catalog
	Cache  *Cache
	Logger zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	return &Service{source: cfg.Source, cache: cfg.Cache, logger: cfg.Logger}, nil
}

// GetProduct returns the product, serving it from cache when possible.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, fmt.Errorf("product id required: %w", ErrInvalidInput)
	}
	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("product_id", id).Msg("catalog_cache_read_failed")
		} else if ok {
			return p, nil
		}
	}
	return s.GetFresh(ctx, id)
}

// GetFresh bypasses the cache read so stock checks see the backend's current numbers.
// The fresh product is written back to the cache.
func (s *Service) GetFresh(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, fmt.Errorf("product id required: %w", ErrInvalidInput)
	}
	p, err := s.source.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			s.logger.Warn().Err(err).Str("product_id", id).Msg("catalog_cache_write_failed")
		}
	}
	return p, nil
}
