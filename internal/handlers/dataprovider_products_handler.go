package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"product-association-service/internal/models"
	"product-association-service/internal/repository"
)

type DataProviderProductsHandler struct {
	catalog    repository.CatalogRepository
	provenance repository.ProvenanceRepository
}

func NewDataProviderProductsHandler(catalog repository.CatalogRepository, provenance repository.ProvenanceRepository) *DataProviderProductsHandler {
	return &DataProviderProductsHandler{
		catalog:    catalog,
		provenance: provenance,
	}
}

// GetDataProviderProducts lists imported provider records
// GET /api/v1/dataprovider-products?dataProviderId=&gtin=&unassociated=true
func (h *DataProviderProductsHandler) GetDataProviderProducts(c *gin.Context) {
	ctx := c.Request.Context()
	providerID := c.Query("dataProviderId")
	gtin := c.Query("gtin")
	unassociated, _ := strconv.ParseBool(c.DefaultQuery("unassociated", "false"))

	var (
		records []models.DataProviderProduct
		err     error
	)
	switch {
	case unassociated:
		records, err = h.provenance.ListUnassociated(ctx)
	case providerID != "":
		records, err = h.provenance.ListByProvider(ctx, providerID)
	case gtin != "":
		records, err = h.provenance.ListByGlobalTradeIdentifier(ctx, gtin)
	default:
		records, err = h.provenance.List(ctx)
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load data provider products")
		return
	}

	// the query above covers one filter, the rest are applied here
	filtered := make([]models.DataProviderProduct, 0, len(records))
	for _, r := range records {
		if providerID != "" && r.DataProviderID != providerID {
			continue
		}
		if gtin != "" && r.GTIN() != gtin {
			continue
		}
		if unassociated && r.IsAssociated() {
			continue
		}
		filtered = append(filtered, r)
	}

	resolved := make(map[string]*models.InternalProduct)
	for i := range filtered {
		if err := h.resolveAssociation(ctx, &filtered[i], resolved); err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load associated products")
			return
		}
	}

	c.JSON(http.StatusOK, models.DataProviderProductListResponse{
		Success: true,
		Data:    filtered,
		Total:   len(filtered),
	})
}

// GetDataProviderProduct returns the record with the given natural key
// GET /api/v1/dataprovider-products/:providerId/:externalId
func (h *DataProviderProductsHandler) GetDataProviderProduct(c *gin.Context) {
	ctx := c.Request.Context()
	record, err := h.provenance.FindByKey(ctx, c.Param("providerId"), c.Param("externalId"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Data provider product not found")
		} else {
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load data provider product")
		}
		return
	}

	if err := h.resolveAssociation(ctx, record, make(map[string]*models.InternalProduct)); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load associated product")
		return
	}

	c.JSON(http.StatusOK, models.DataProviderProductResponse{
		Success: true,
		Data:    record,
	})
}

// resolveAssociation looks the associated product up in the catalog.
// A reference to a product that no longer exists is left unresolved.
func (h *DataProviderProductsHandler) resolveAssociation(ctx context.Context, record *models.DataProviderProduct, resolved map[string]*models.InternalProduct) error {
	if !record.IsAssociated() {
		return nil
	}
	id := *record.AssociatedProductID

	product, seen := resolved[id]
	if !seen {
		var err error
		product, err = h.catalog.GetByID(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		resolved[id] = product
	}
	record.AssociatedProduct = product
	return nil
}
