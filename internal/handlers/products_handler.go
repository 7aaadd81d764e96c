package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"product-association-service/internal/models"
	"product-association-service/internal/repository"
)

type ProductsHandler struct {
	catalog    repository.CatalogRepository
	provenance repository.ProvenanceRepository
}

func NewProductsHandler(catalog repository.CatalogRepository, provenance repository.ProvenanceRepository) *ProductsHandler {
	return &ProductsHandler{
		catalog:    catalog,
		provenance: provenance,
	}
}

// GetProducts lists the catalog, optionally narrowed by search term or attribute
// GET /api/v1/products?search=&attributeName=&attributeValue=
func (h *ProductsHandler) GetProducts(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		products []models.InternalProduct
		err      error
	)
	attrName := strings.TrimSpace(c.Query("attributeName"))
	attrValue, hasValue := c.GetQuery("attributeValue")
	search := strings.TrimSpace(c.Query("search"))

	switch {
	case attrName != "":
		if !hasValue {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "attributeValue is required with attributeName")
			return
		}
		products, err = h.catalog.FindByAttribute(ctx, attrName, attrValue)
	case search != "":
		products, err = h.catalog.Search(ctx, search)
	default:
		products, err = h.catalog.List(ctx)
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load products")
		return
	}

	if products == nil {
		products = []models.InternalProduct{}
	}
	c.JSON(http.StatusOK, models.ProductListResponse{
		Success: true,
		Data:    products,
		Total:   len(products),
	})
}

// GetProduct returns one catalog product
// GET /api/v1/products/:id
func (h *ProductsHandler) GetProduct(c *gin.Context) {
	product, ok := h.loadProduct(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, models.ProductResponse{
		Success: true,
		Data:    product,
	})
}

// GetProductDataProviderProducts lists provider records associated with a product
// GET /api/v1/products/:id/dataprovider-products
func (h *ProductsHandler) GetProductDataProviderProducts(c *gin.Context) {
	product, ok := h.loadProduct(c)
	if !ok {
		return
	}

	records, err := h.provenance.ListByAssociatedProduct(c.Request.Context(), product.InternalID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load data provider products")
		return
	}
	if records == nil {
		records = []models.DataProviderProduct{}
	}
	for i := range records {
		records[i].AssociatedProduct = product
	}

	c.JSON(http.StatusOK, models.DataProviderProductListResponse{
		Success: true,
		Data:    records,
		Total:   len(records),
	})
}

func (h *ProductsHandler) loadProduct(c *gin.Context) (*models.InternalProduct, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Product ID is required")
		return nil, false
	}

	product, err := h.catalog.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Product not found")
		} else {
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load product")
		}
		return nil, false
	}
	return product, true
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: c.GetString("request_id"),
	})
}
