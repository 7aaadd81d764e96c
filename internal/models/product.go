package models

import (
	"strings"
	"time"
)

// CategoryAttribute is the attribute name mapped from provider records onto internal products
const CategoryAttribute = "Category"

// Attribute is a plain (name, value) pair as received from a provider
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// InternalProduct is a product in the authoritative catalog.
// InternalID is assigned by the catalog seeding process and never generated here.
type InternalProduct struct {
	InternalID            string                     `json:"internalId" gorm:"primaryKey;column:internal_id;size:255"`
	GlobalTradeIdentifier *string                    `json:"globalTradeIdentifier,omitempty" gorm:"column:global_trade_identifier;size:64;index"`
	Attributes            []InternalProductAttribute `json:"attributes" gorm:"foreignKey:ProductID;references:InternalID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time                  `json:"createdAt"`
	UpdatedAt             time.Time                  `json:"updatedAt"`
}

// InternalProductAttribute is identified by (name, value) within its product
type InternalProductAttribute struct {
	ID        uint   `json:"-" gorm:"primaryKey"`
	ProductID string `json:"-" gorm:"column:product_id;size:255;not null;uniqueIndex:idx_product_attribute"`
	Name      string `json:"name" gorm:"size:255;not null;uniqueIndex:idx_product_attribute"`
	Value     string `json:"value" gorm:"size:1024;not null;uniqueIndex:idx_product_attribute"`
}

// HasAttribute reports whether the exact (name, value) pair is present
func (p *InternalProduct) HasAttribute(name, value string) bool {
	for _, attr := range p.Attributes {
		if attr.Name == name && attr.Value == value {
			return true
		}
	}
	return false
}

// AddAttribute adds the pair unless it is already present
func (p *InternalProduct) AddAttribute(name, value string) bool {
	if p.HasAttribute(name, value) {
		return false
	}
	p.Attributes = append(p.Attributes, InternalProductAttribute{
		ProductID: p.InternalID,
		Name:      name,
		Value:     value,
	})
	return true
}

// RemoveAttribute removes the exact (name, value) pair
func (p *InternalProduct) RemoveAttribute(name, value string) bool {
	for i, attr := range p.Attributes {
		if attr.Name == name && attr.Value == value {
			p.Attributes = append(p.Attributes[:i], p.Attributes[i+1:]...)
			return true
		}
	}
	return false
}

// FindAttribute returns the first attribute whose name matches case-insensitively
func (p *InternalProduct) FindAttribute(name string) (InternalProductAttribute, bool) {
	for _, attr := range p.Attributes {
		if strings.EqualFold(attr.Name, name) {
			return attr, true
		}
	}
	return InternalProductAttribute{}, false
}

// GTIN returns the global trade identifier or an empty string
func (p *InternalProduct) GTIN() string {
	if p.GlobalTradeIdentifier == nil {
		return ""
	}
	return *p.GlobalTradeIdentifier
}

// Response types

type ProductResponse struct {
	Success bool             `json:"success"`
	Data    *InternalProduct `json:"data"`
	Message *string          `json:"message,omitempty"`
}

type ProductListResponse struct {
	Success bool              `json:"success"`
	Data    []InternalProduct `json:"data"`
	Total   int               `json:"total"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     Error  `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TableName returns the table name for the InternalProduct model
func (InternalProduct) TableName() string {
	return "internal_products"
}

// TableName returns the table name for the InternalProductAttribute model
func (InternalProductAttribute) TableName() string {
	return "internal_product_attributes"
}
