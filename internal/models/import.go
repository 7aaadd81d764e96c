package models

import (
	"fmt"
	"sync"
	"time"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatJSON ImportFormat = "json"
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, attribute
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}

// ImportResult summarizes one import run. It is never persisted.
// Failed is set only when the run as a whole could not be carried out.
type ImportResult struct {
	mu sync.Mutex

	TotalProducts         int        `json:"totalProducts"`
	AssociatedProducts    int        `json:"associatedProducts"`
	NotAssociatedProducts int        `json:"notAssociatedProducts"`
	StartTime             time.Time  `json:"startTime"`
	EndTime               *time.Time `json:"endTime"`
	Errors                []string   `json:"errors"`
	Failed                bool       `json:"failed"`
}

// NewImportResult starts a result at the given time
func NewImportResult(start time.Time) *ImportResult {
	return &ImportResult{
		StartTime: start,
		Errors:    make([]string, 0),
	}
}

func (r *ImportResult) IncrementTotal() {
	r.mu.Lock()
	r.TotalProducts++
	r.mu.Unlock()
}

func (r *ImportResult) IncrementAssociated() {
	r.mu.Lock()
	r.AssociatedProducts++
	r.mu.Unlock()
}

func (r *ImportResult) IncrementNotAssociated() {
	r.mu.Lock()
	r.NotAssociatedProducts++
	r.mu.Unlock()
}

// AddError appends a human readable error
func (r *ImportResult) AddError(msg string) {
	r.mu.Lock()
	r.Errors = append(r.Errors, msg)
	r.mu.Unlock()
}

// Fail records a run-level error
func (r *ImportResult) Fail(msg string) {
	r.mu.Lock()
	r.Failed = true
	r.Errors = append(r.Errors, msg)
	r.mu.Unlock()
}

// Finish sets the end time
func (r *ImportResult) Finish(end time.Time) {
	r.mu.Lock()
	r.EndTime = &end
	r.mu.Unlock()
}

func (r *ImportResult) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors) > 0
}

func (r *ImportResult) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("ImportResult[total=%d, associated=%d, unassociated=%d, errors=%d]",
		r.TotalProducts, r.AssociatedProducts, r.NotAssociatedProducts, len(r.Errors))
}

// Duration of the run, zero until finished
func (r *ImportResult) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// DataProviderImportColumns returns the column definitions for tabular provider files.
// Columns other than externalId and globalTradeIdentifier become attributes.
func DataProviderImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "externalId", Description: "Identifier of the record in the provider system", Required: true, Type: "string", Example: "EXT-0001"},
		{Name: "globalTradeIdentifier", Description: "GTIN/EAN used for association", Required: false, Type: "string", Example: "4006381333931"},
		{Name: "Category", Description: "Category attribute, mapped onto the associated product", Required: false, Type: "attribute", Example: "Books"},
		{Name: "Brand", Description: "Any further column is stored as a provider attribute", Required: false, Type: "attribute", Example: "Acme"},
	}
}

// DataProviderImportTemplate returns the template definition for provider records
func DataProviderImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "dataprovider-products",
		Version: "1.0",
		Columns: DataProviderImportColumns(),
		SampleData: []map[string]string{
			{"externalId": "EXT-0001", "globalTradeIdentifier": "4006381333931", "Category": "Books", "Brand": "Acme"},
		},
	}
}
