package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"product-association-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProvenanceRepository is the store of data provider records, keyed by (dataProviderId, externalId)
type ProvenanceRepository interface {
	FindByKey(ctx context.Context, dataProviderID, externalID string) (*models.DataProviderProduct, error)
	Save(ctx context.Context, record *models.DataProviderProduct) error
	List(ctx context.Context) ([]models.DataProviderProduct, error)
	ListByProvider(ctx context.Context, dataProviderID string) ([]models.DataProviderProduct, error)
	ListByAssociatedProduct(ctx context.Context, internalID string) ([]models.DataProviderProduct, error)
	ListUnassociated(ctx context.Context) ([]models.DataProviderProduct, error)
	ListByGlobalTradeIdentifier(ctx context.Context, gtin string) ([]models.DataProviderProduct, error)
}

type provenanceRepository struct {
	db *gorm.DB
}

// NewProvenanceRepository creates a provenance repository
func NewProvenanceRepository(db *gorm.DB) ProvenanceRepository {
	return &provenanceRepository{db: db}
}

// FindByKey looks a record up by its natural key
func (r *provenanceRepository) FindByKey(ctx context.Context, dataProviderID, externalID string) (*models.DataProviderProduct, error) {
	var record models.DataProviderProduct
	err := r.db.WithContext(ctx).
		Preload("Attributes", orderAttributes).
		Where("data_provider_id = ? AND external_id = ?", dataProviderID, externalID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Save inserts a new record or updates an existing one, replacing its attribute set.
// A record without ID is inserted; the (provider, external) unique index rejects duplicates.
func (r *provenanceRepository) Save(ctx context.Context, record *models.DataProviderProduct) error {
	if record.DataProviderID == "" {
		return errors.New("data provider record requires a dataProviderId")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if record.ID == uuid.Nil {
			if err := tx.Omit(clause.Associations).Create(record).Error; err != nil {
				return fmt.Errorf("failed to create data provider record %s/%s: %w", record.DataProviderID, record.ExternalID, err)
			}
		} else {
			err := tx.Model(&models.DataProviderProduct{}).
				Where("id = ?", record.ID).
				Updates(map[string]interface{}{
					"global_trade_identifier": record.GlobalTradeIdentifier,
					"last_updated_at":         record.LastUpdatedAt,
					"association_strategy":    record.AssociationStrategy,
					"associated_product_id":   record.AssociatedProductID,
					"raw_data":                record.RawData,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update data provider record %s/%s: %w", record.DataProviderID, record.ExternalID, err)
			}
		}

		if err := tx.Where("record_id = ?", record.ID).Delete(&models.DataProviderAttribute{}).Error; err != nil {
			return fmt.Errorf("failed to clear attributes of record %s: %w", record.ID, err)
		}

		attrs := make([]models.DataProviderAttribute, 0, len(record.Attributes))
		seen := make(map[models.Attribute]struct{}, len(record.Attributes))
		for _, a := range record.Attributes {
			key := models.Attribute{Name: a.Name, Value: a.Value}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			attrs = append(attrs, models.DataProviderAttribute{RecordID: record.ID, Name: a.Name, Value: a.Value})
		}
		if len(attrs) > 0 {
			if err := tx.Create(&attrs).Error; err != nil {
				return fmt.Errorf("failed to write attributes of record %s: %w", record.ID, err)
			}
		}
		record.Attributes = attrs
		return nil
	})
}

// List returns every record
func (r *provenanceRepository) List(ctx context.Context) ([]models.DataProviderProduct, error) {
	return r.find(ctx, r.db)
}

func (r *provenanceRepository) ListByProvider(ctx context.Context, dataProviderID string) ([]models.DataProviderProduct, error) {
	return r.find(ctx, r.db.Where("data_provider_id = ?", dataProviderID))
}

func (r *provenanceRepository) ListByAssociatedProduct(ctx context.Context, internalID string) ([]models.DataProviderProduct, error) {
	return r.find(ctx, r.db.Where("associated_product_id = ?", internalID))
}

func (r *provenanceRepository) ListUnassociated(ctx context.Context) ([]models.DataProviderProduct, error) {
	return r.find(ctx, r.db.Where("associated_product_id IS NULL OR associated_product_id = ''"))
}

func (r *provenanceRepository) ListByGlobalTradeIdentifier(ctx context.Context, gtin string) ([]models.DataProviderProduct, error) {
	return r.find(ctx, r.db.Where("global_trade_identifier = ?", gtin))
}

func (r *provenanceRepository) find(ctx context.Context, query *gorm.DB) ([]models.DataProviderProduct, error) {
	var records []models.DataProviderProduct
	err := query.WithContext(ctx).
		Preload("Attributes", orderAttributes).
		Order("data_provider_id, external_id").
		Find(&records).Error
	return records, err
}
