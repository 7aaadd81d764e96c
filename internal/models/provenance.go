package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DataProviderProduct is a record imported from one data provider.
// Its natural key is (DataProviderID, ExternalID); ID is a storage surrogate.
type DataProviderProduct struct {
	ID                    uuid.UUID               `json:"id" gorm:"type:uuid;primaryKey"`
	DataProviderID        string                  `json:"dataProviderId" gorm:"column:data_provider_id;size:100;not null;uniqueIndex:idx_provider_external"`
	ExternalID            string                  `json:"externalId" gorm:"column:external_id;size:255;not null;uniqueIndex:idx_provider_external"`
	GlobalTradeIdentifier *string                 `json:"globalTradeIdentifier,omitempty" gorm:"column:global_trade_identifier;size:64;index"`
	ImportedAt            time.Time               `json:"importedAt"`
	LastUpdatedAt         time.Time               `json:"lastUpdatedAt"`
	AssociationStrategy   *string                 `json:"associationStrategy,omitempty" gorm:"size:100"`
	AssociatedProductID   *string                 `json:"associatedProductId,omitempty" gorm:"column:associated_product_id;size:255;index"`
	Attributes            []DataProviderAttribute `json:"attributes" gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE"`
	RawData               datatypes.JSON          `json:"rawData,omitempty" gorm:"column:raw_data"`

	// AssociatedProduct is resolved from the catalog by readers, never stored
	AssociatedProduct *InternalProduct `json:"associatedProduct,omitempty" gorm:"-"`
}

// DataProviderAttribute is identified by (name, value) within its record
type DataProviderAttribute struct {
	ID       uint      `json:"-" gorm:"primaryKey"`
	RecordID uuid.UUID `json:"-" gorm:"type:uuid;not null;uniqueIndex:idx_record_attribute"`
	Name     string    `json:"name" gorm:"size:255;not null;uniqueIndex:idx_record_attribute"`
	Value    string    `json:"value" gorm:"size:1024;not null;uniqueIndex:idx_record_attribute"`
}

// BeforeCreate assigns the surrogate ID
func (p *DataProviderProduct) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// SetAttributes replaces the attribute set, coalescing duplicate pairs
func (p *DataProviderProduct) SetAttributes(attrs []Attribute) {
	seen := make(map[Attribute]struct{}, len(attrs))
	p.Attributes = make([]DataProviderAttribute, 0, len(attrs))
	for _, a := range attrs {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		p.Attributes = append(p.Attributes, DataProviderAttribute{RecordID: p.ID, Name: a.Name, Value: a.Value})
	}
}

// FindAttribute returns the first attribute whose name matches case-insensitively
func (p *DataProviderProduct) FindAttribute(name string) (DataProviderAttribute, bool) {
	for _, attr := range p.Attributes {
		if strings.EqualFold(attr.Name, name) {
			return attr, true
		}
	}
	return DataProviderAttribute{}, false
}

// GTIN returns the global trade identifier or an empty string
func (p *DataProviderProduct) GTIN() string {
	if p.GlobalTradeIdentifier == nil {
		return ""
	}
	return *p.GlobalTradeIdentifier
}

// IsAssociated reports whether the record points at an internal product
func (p *DataProviderProduct) IsAssociated() bool {
	return p.AssociatedProductID != nil && *p.AssociatedProductID != ""
}

type DataProviderProductListResponse struct {
	Success bool                  `json:"success"`
	Data    []DataProviderProduct `json:"data"`
	Total   int                   `json:"total"`
}

type DataProviderProductResponse struct {
	Success bool                 `json:"success"`
	Data    *DataProviderProduct `json:"data"`
}

// TableName returns the table name for the DataProviderProduct model
func (DataProviderProduct) TableName() string {
	return "data_provider_products"
}

// TableName returns the table name for the DataProviderAttribute model
func (DataProviderAttribute) TableName() string {
	return "data_provider_attributes"
}
