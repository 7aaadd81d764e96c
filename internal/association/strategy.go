package association

import (
	"context"
	"fmt"

	"product-association-service/internal/models"
)

// Strategy finds the internal product an external record refers to.
// A nil product with a nil error means no match. Implementations must not mutate the record.
type Strategy interface {
	Name() string
	FindMatch(ctx context.Context, record *models.DataProviderProduct) (*models.InternalProduct, error)
}

// Result of running the chain on one record
type Result struct {
	Product      *models.InternalProduct
	StrategyName string
}

// Matched reports whether some strategy produced a product
func (r Result) Matched() bool {
	return r.Product != nil
}

// Chain runs strategies in a fixed order; the first match wins
type Chain struct {
	strategies []Strategy
}

// NewChain builds a chain over the given strategies, in order
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Names lists the strategies in evaluation order
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// TryAssociate returns the first match. A strategy error aborts the chain for this record only.
func (c *Chain) TryAssociate(ctx context.Context, record *models.DataProviderProduct) (Result, error) {
	for _, s := range c.strategies {
		product, err := s.FindMatch(ctx, record)
		if err != nil {
			return Result{}, fmt.Errorf("strategy %s: %w", s.Name(), err)
		}
		if product != nil {
			return Result{Product: product, StrategyName: s.Name()}, nil
		}
	}
	return Result{}, nil
}
