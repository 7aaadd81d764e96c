package association

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"product-association-service/internal/models"
	"product-association-service/internal/repository"
)

// MockCatalog is a mock implementation of GTINFinder
type MockCatalog struct {
	mock.Mock
}

var _ GTINFinder = (*MockCatalog)(nil)

func (m *MockCatalog) FindByGlobalTradeIdentifier(ctx context.Context, gtin string) (*models.InternalProduct, error) {
	args := m.Called(ctx, gtin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InternalProduct), args.Error(1)
}

// stubStrategy returns a fixed outcome and counts calls
type stubStrategy struct {
	name    string
	product *models.InternalProduct
	err     error
	calls   int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) FindMatch(ctx context.Context, record *models.DataProviderProduct) (*models.InternalProduct, error) {
	s.calls++
	return s.product, s.err
}

func recordWithGTIN(gtin *string) *models.DataProviderProduct {
	return &models.DataProviderProduct{
		DataProviderID:        "JsonDataProvider",
		ExternalID:            "E1",
		GlobalTradeIdentifier: gtin,
	}
}

func strPtr(s string) *string {
	return &s
}

func TestGlobalTradeIDStrategy_BlankIdentifierSkipsLookup(t *testing.T) {
	for _, gtin := range []*string{nil, strPtr(""), strPtr("   ")} {
		catalog := new(MockCatalog)
		strategy := NewGlobalTradeIDStrategy(catalog)

		product, err := strategy.FindMatch(context.Background(), recordWithGTIN(gtin))

		assert.NoError(t, err)
		assert.Nil(t, product)
		catalog.AssertNotCalled(t, "FindByGlobalTradeIdentifier", mock.Anything, mock.Anything)
	}
}

func TestGlobalTradeIDStrategy_ExactMatch(t *testing.T) {
	catalog := new(MockCatalog)
	expected := &models.InternalProduct{InternalID: "P1", GlobalTradeIdentifier: strPtr("111")}
	catalog.On("FindByGlobalTradeIdentifier", mock.Anything, "111").Return(expected, nil)

	product, err := NewGlobalTradeIDStrategy(catalog).FindMatch(context.Background(), recordWithGTIN(strPtr("111")))

	require.NoError(t, err)
	assert.Same(t, expected, product)
	catalog.AssertExpectations(t)
}

func TestGlobalTradeIDStrategy_NoMatch(t *testing.T) {
	catalog := new(MockCatalog)
	catalog.On("FindByGlobalTradeIdentifier", mock.Anything, "999").Return(nil, repository.ErrNotFound)

	product, err := NewGlobalTradeIDStrategy(catalog).FindMatch(context.Background(), recordWithGTIN(strPtr("999")))

	assert.NoError(t, err)
	assert.Nil(t, product)
}

func TestGlobalTradeIDStrategy_AmbiguousMatchIsAnError(t *testing.T) {
	catalog := new(MockCatalog)
	catalog.On("FindByGlobalTradeIdentifier", mock.Anything, "111").
		Return(nil, fmt.Errorf("%w: two products", repository.ErrAmbiguousMatch))

	product, err := NewGlobalTradeIDStrategy(catalog).FindMatch(context.Background(), recordWithGTIN(strPtr("111")))

	assert.Nil(t, product)
	assert.ErrorIs(t, err, repository.ErrAmbiguousMatch)
}

func TestChain_FirstMatchWins(t *testing.T) {
	miss := &stubStrategy{name: "Miss"}
	hit := &stubStrategy{name: "Hit", product: &models.InternalProduct{InternalID: "P1"}}
	never := &stubStrategy{name: "Never", product: &models.InternalProduct{InternalID: "P2"}}

	chain := NewChain(miss, hit, never)
	result, err := chain.TryAssociate(context.Background(), recordWithGTIN(nil))

	require.NoError(t, err)
	assert.True(t, result.Matched())
	assert.Equal(t, "P1", result.Product.InternalID)
	assert.Equal(t, "Hit", result.StrategyName)
	assert.Equal(t, 1, miss.calls)
	assert.Equal(t, 0, never.calls)
	assert.Equal(t, []string{"Miss", "Hit", "Never"}, chain.Names())
}

func TestChain_NoMatch(t *testing.T) {
	result, err := NewChain(&stubStrategy{name: "A"}, &stubStrategy{name: "B"}).
		TryAssociate(context.Background(), recordWithGTIN(nil))

	require.NoError(t, err)
	assert.False(t, result.Matched())
	assert.Empty(t, result.StrategyName)
}

func TestChain_ErrorStopsChain(t *testing.T) {
	boom := errors.New("store unavailable")
	failing := &stubStrategy{name: "Failing", err: boom}
	next := &stubStrategy{name: "Next", product: &models.InternalProduct{InternalID: "P1"}}

	result, err := NewChain(failing, next).TryAssociate(context.Background(), recordWithGTIN(nil))

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "strategy Failing")
	assert.False(t, result.Matched())
	assert.Equal(t, 0, next.calls)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubStrategy{name: "B"}))
	require.NoError(t, r.Register(&stubStrategy{name: "A"}))

	assert.ErrorIs(t, r.Register(&stubStrategy{name: "A"}), ErrStrategyExists)
	assert.Equal(t, []string{"A", "B"}, r.List())

	_, err := r.Get("C")
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	chain, err := r.BuildChain([]string{"B", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, chain.Names())

	_, err = r.BuildChain([]string{"A", "A"})
	assert.Error(t, err)

	_, err = r.BuildChain(nil)
	assert.Error(t, err)

	_, err = r.BuildChain([]string{"Unknown"})
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(new(MockCatalog))

	assert.Equal(t, []string{GlobalTradeIDStrategyName}, r.List())

	chain, err := r.BuildChain([]string{"GlobalTradeId"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GlobalTradeId"}, chain.Names())
}
