package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"product-association-service/internal/association"
	"product-association-service/internal/dataprovider"
	"product-association-service/internal/models"
	"product-association-service/internal/repository"
)

const (
	recordErrorPrefix = "Product processing failed: "
	runErrorPrefix    = "Import failed: "
)

// ErrMissingExternalID rejects a matched record that cannot be keyed in the provenance store
var ErrMissingExternalID = errors.New("record has no externalId")

// EventPublisher receives import notifications. Implementations must not block.
type EventPublisher interface {
	PublishProductAssociated(ctx context.Context, record *models.DataProviderProduct, product *models.InternalProduct)
	PublishImportCompleted(ctx context.Context, dataProviderID, sourceName string, result *models.ImportResult)
}

// ImportConfig tunes the pipeline
type ImportConfig struct {
	Workers   int     // 1 processes records sequentially in source order
	WriteRate float64 // persisted records per second, 0 disables throttling
}

// ImportService runs provider records through association and persistence
type ImportService struct {
	store     repository.UnitOfWork
	chain     *association.Chain
	publisher EventPublisher
	limiter   *rate.Limiter
	workers   int
	locks     *KeyedMutex
	logger    *logrus.Entry
	now       func() time.Time
}

// NewImportService creates the pipeline. publisher may be nil.
func NewImportService(store repository.UnitOfWork, chain *association.Chain, publisher EventPublisher, cfg ImportConfig, logger *logrus.Logger) *ImportService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var limiter *rate.Limiter
	if cfg.WriteRate > 0 {
		burst := int(cfg.WriteRate)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.WriteRate), burst)
	}

	return &ImportService{
		store:     store,
		chain:     chain,
		publisher: publisher,
		limiter:   limiter,
		workers:   workers,
		locks:     NewKeyedMutex(),
		logger:    logger.WithField("component", "import-pipeline"),
		now:       time.Now,
	}
}

type parsedRecord struct {
	index  int
	record *dataprovider.Record
}

// ImportProducts imports every record of the source. It never returns an error:
// record failures and run failures are reported inside the result.
func (s *ImportService) ImportProducts(ctx context.Context, source dataprovider.Source) (result *models.ImportResult) {
	result = models.NewImportResult(s.now())
	log := s.logger.WithFields(logrus.Fields{
		"dataProviderId": source.ProviderID(),
		"source":         source.Name(),
	})
	log.Infof("Starting import from %s", source.Name())

	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, source, result, log, fmt.Errorf("panic: %v", r))
		}
	}()

	raws, err := source.Records(ctx)
	if err != nil {
		s.fail(ctx, source, result, log, err)
		return result
	}

	if s.workers == 1 {
		for i, raw := range raws {
			if err := ctx.Err(); err != nil {
				s.fail(ctx, source, result, log, err)
				return result
			}
			if rec, ok := s.parse(i+1, raw, result, log); ok {
				s.handle(ctx, source.ProviderID(), rec, result, log)
			}
		}
	} else {
		s.runParallel(ctx, source.ProviderID(), raws, result, log)
		if err := ctx.Err(); err != nil {
			s.fail(ctx, source, result, log, err)
			return result
		}
	}

	result.Finish(s.now())
	log.WithFields(logrus.Fields{
		"total":        result.TotalProducts,
		"associated":   result.AssociatedProducts,
		"unassociated": result.NotAssociatedProducts,
		"duration":     result.Duration().String(),
	}).Infof("Import completed: %s", result)

	if s.publisher != nil {
		s.publisher.PublishImportCompleted(ctx, source.ProviderID(), source.Name(), result)
	}
	return result
}

// runParallel parses in source order, then routes each record to a worker chosen
// by its externalId so repeated keys are handled by one worker in order.
func (s *ImportService) runParallel(ctx context.Context, providerID string, raws []json.RawMessage, result *models.ImportResult, log *logrus.Entry) {
	queues := make([]chan parsedRecord, s.workers)
	var wg sync.WaitGroup
	for w := range queues {
		queues[w] = make(chan parsedRecord, 16)
		wg.Add(1)
		go func(queue <-chan parsedRecord) {
			defer wg.Done()
			for item := range queue {
				if ctx.Err() != nil {
					continue
				}
				s.handle(ctx, providerID, item, result, log)
			}
		}(queues[w])
	}

dispatch:
	for i, raw := range raws {
		rec, ok := s.parse(i+1, raw, result, log)
		if !ok {
			continue
		}
		select {
		case queues[s.route(rec.record.ExternalID)] <- rec:
		case <-ctx.Done():
			break dispatch
		}
	}

	for _, q := range queues {
		close(q)
	}
	wg.Wait()
}

func (s *ImportService) route(externalID string) int {
	h := fnv.New32a()
	h.Write([]byte(externalID))
	return int(h.Sum32() % uint32(s.workers))
}

func (s *ImportService) parse(index int, raw json.RawMessage, result *models.ImportResult, log *logrus.Entry) (parsedRecord, bool) {
	rec, err := dataprovider.ParseRecord(raw)
	if err != nil {
		result.AddError(fmt.Sprintf("%srecord %d: %v", recordErrorPrefix, index, err))
		log.WithError(err).WithField("record", index).Error("Error parsing product")
		return parsedRecord{}, false
	}
	return parsedRecord{index: index, record: rec}, true
}

// handle associates one parsed record and persists it on a match.
// totalProducts counts a record only once the chain returned without error. Records whose
// strategy failed reached the association attempt but stay out of the total, so that
// total == associated + notAssociated holds for every run without a run-level error.
func (s *ImportService) handle(ctx context.Context, providerID string, item parsedRecord, result *models.ImportResult, log *logrus.Entry) {
	log = log.WithFields(logrus.Fields{"record": item.index, "externalId": item.record.ExternalID})

	defer func() {
		if r := recover(); r != nil {
			s.recordError(result, log, item, fmt.Errorf("panic: %v", r))
		}
	}()

	transient := item.record.Transient(providerID)
	match, err := s.chain.TryAssociate(ctx, transient)
	if err != nil {
		s.recordError(result, log, item, err)
		return
	}
	result.IncrementTotal()

	if !match.Matched() {
		result.IncrementNotAssociated()
		log.Debug("No association found")
		return
	}

	result.IncrementAssociated()
	log.WithFields(logrus.Fields{
		"internalId": match.Product.InternalID,
		"strategy":   match.StrategyName,
	}).Debug("Associated with existing product")

	record, product, err := s.persist(ctx, transient, match, log)
	if err != nil {
		s.recordError(result, log, item, err)
		return
	}

	if s.publisher != nil {
		s.publisher.PublishProductAssociated(ctx, record, product)
	}
}

// persist merges the category and upserts product and provenance in one transaction
func (s *ImportService) persist(ctx context.Context, transient *models.DataProviderProduct, match association.Result, log *logrus.Entry) (*models.DataProviderProduct, *models.InternalProduct, error) {
	// the provenance key would collapse every id-less record onto one row
	if strings.TrimSpace(transient.ExternalID) == "" {
		return nil, nil, ErrMissingExternalID
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("write throttle: %w", err)
		}
	}

	productID := match.Product.InternalID
	release, err := s.locks.Acquire(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var (
		saved   *models.DataProviderProduct
		product *models.InternalProduct
	)
	err = s.store.WithTransaction(ctx, func(tx repository.UnitOfWork) error {
		current, err := tx.Catalog().GetByID(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to reload product %s: %w", productID, err)
		}

		if MergeCategory(transient, current) {
			log.WithField("internalId", productID).Debug("Category mapped onto product")
		}
		if err := tx.Catalog().Upsert(ctx, current); err != nil {
			return err
		}

		now := s.now()
		record, err := tx.Provenance().FindByKey(ctx, transient.DataProviderID, transient.ExternalID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			record = &models.DataProviderProduct{
				DataProviderID: transient.DataProviderID,
				ExternalID:     transient.ExternalID,
				ImportedAt:     now,
			}
		case err != nil:
			return fmt.Errorf("failed to load data provider record: %w", err)
		}

		strategy := match.StrategyName
		record.LastUpdatedAt = now
		record.GlobalTradeIdentifier = transient.GlobalTradeIdentifier
		record.AssociatedProductID = &productID
		record.AssociationStrategy = &strategy
		record.RawData = transient.RawData
		record.Attributes = append([]models.DataProviderAttribute(nil), transient.Attributes...)

		if err := tx.Provenance().Save(ctx, record); err != nil {
			return err
		}

		saved, product = record, current
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, product, nil
}

// MergeCategory copies the record's Category onto the product. An existing category
// with a different value is replaced, so the product ends with exactly one.
func MergeCategory(record *models.DataProviderProduct, product *models.InternalProduct) bool {
	incoming, ok := record.FindAttribute(models.CategoryAttribute)
	if !ok {
		return false
	}

	var existing []models.InternalProductAttribute
	for _, attr := range product.Attributes {
		if strings.EqualFold(attr.Name, models.CategoryAttribute) {
			existing = append(existing, attr)
		}
	}
	if len(existing) == 1 && existing[0].Value == incoming.Value {
		return false
	}

	for _, attr := range existing {
		product.RemoveAttribute(attr.Name, attr.Value)
	}
	product.AddAttribute(models.CategoryAttribute, incoming.Value)
	return true
}

func (s *ImportService) recordError(result *models.ImportResult, log *logrus.Entry, item parsedRecord, err error) {
	result.AddError(fmt.Sprintf("%srecord %d (externalId=%q): %v", recordErrorPrefix, item.index, item.record.ExternalID, err))
	log.WithError(err).Error("Error processing product")
}

func (s *ImportService) fail(ctx context.Context, source dataprovider.Source, result *models.ImportResult, log *logrus.Entry, err error) {
	result.Fail(runErrorPrefix + err.Error())
	result.Finish(s.now())
	log.WithError(err).Error("Import failed")

	if s.publisher != nil {
		s.publisher.PublishImportCompleted(ctx, source.ProviderID(), source.Name(), result)
	}
}
