package association

import (
	"context"
	"errors"
	"strings"

	"product-association-service/internal/models"
	"product-association-service/internal/repository"
)

// GlobalTradeIDStrategyName is reported on matches produced by GlobalTradeIDStrategy
const GlobalTradeIDStrategyName = "GlobalTradeId"

// GTINFinder is the catalog lookup the strategy depends on
type GTINFinder interface {
	FindByGlobalTradeIdentifier(ctx context.Context, gtin string) (*models.InternalProduct, error)
}

// GlobalTradeIDStrategy matches on the exact, case-sensitive GTIN
type GlobalTradeIDStrategy struct {
	catalog GTINFinder
}

func NewGlobalTradeIDStrategy(catalog GTINFinder) *GlobalTradeIDStrategy {
	return &GlobalTradeIDStrategy{catalog: catalog}
}

func (s *GlobalTradeIDStrategy) Name() string {
	return GlobalTradeIDStrategyName
}

// FindMatch skips the lookup for blank identifiers. Shared GTINs surface as repository.ErrAmbiguousMatch.
func (s *GlobalTradeIDStrategy) FindMatch(ctx context.Context, record *models.DataProviderProduct) (*models.InternalProduct, error) {
	gtin := record.GTIN()
	if strings.TrimSpace(gtin) == "" {
		return nil, nil
	}

	product, err := s.catalog.FindByGlobalTradeIdentifier(ctx, gtin)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return product, nil
}
