package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
	"product-association-service/internal/models"
)

const (
	StreamName = "DATAPROVIDER_EVENTS"

	SubjectProductAssociated = "dataprovider.product.associated"
	SubjectImportCompleted   = "dataprovider.import.completed"

	publishTimeout = 10 * time.Second
)

// ProductAssociatedEvent is emitted after a provider record has been linked and persisted
type ProductAssociatedEvent struct {
	EventID             string             `json:"eventId"`
	EventType           string             `json:"eventType"`
	Timestamp           time.Time          `json:"timestamp"`
	DataProviderID      string             `json:"dataProviderId"`
	ExternalID          string             `json:"externalId"`
	InternalID          string             `json:"internalId"`
	AssociationStrategy string             `json:"associationStrategy"`
	Category            string             `json:"category,omitempty"`
	Attributes          []models.Attribute `json:"attributes,omitempty"`
}

// ImportCompletedEvent is emitted once per import run, failed runs included
type ImportCompletedEvent struct {
	EventID               string     `json:"eventId"`
	EventType             string     `json:"eventType"`
	Timestamp             time.Time  `json:"timestamp"`
	DataProviderID        string     `json:"dataProviderId"`
	Source                string     `json:"source"`
	TotalProducts         int        `json:"totalProducts"`
	AssociatedProducts    int        `json:"associatedProducts"`
	NotAssociatedProducts int        `json:"notAssociatedProducts"`
	ErrorCount            int        `json:"errorCount"`
	Failed                bool       `json:"failed"`
	StartTime             time.Time  `json:"startTime"`
	EndTime               *time.Time `json:"endTime,omitempty"`
}

// Publisher sends import events to NATS JetStream
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *logrus.Entry
	wg     sync.WaitGroup
}

// NewPublisher connects to NATS and makes sure the events stream exists
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	entry := logger.WithField("component", "dataprovider-events")

	nc, err := nats.Connect(natsURL,
		nats.Name("product-association-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			entry.WithError(err).Warn("NATS disconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"dataprovider.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		entry.WithError(err).Warn("Failed to ensure dataprovider stream (may already exist)")
	}

	p := newPublisher(js, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(js jetstream.JetStream, logger *logrus.Logger) *Publisher {
	return &Publisher{
		js:     js,
		logger: logger.WithField("component", "dataprovider-events"),
	}
}

// Close waits for in-flight publishes and drains the connection
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.wg.Wait()
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
}

// PublishProductAssociated publishes a dataprovider.product.associated event
func (p *Publisher) PublishProductAssociated(ctx context.Context, record *models.DataProviderProduct, product *models.InternalProduct) {
	if p == nil {
		return
	}
	p.publish(SubjectProductAssociated, BuildProductAssociatedEvent(record, product))
}

// PublishImportCompleted publishes a dataprovider.import.completed event
func (p *Publisher) PublishImportCompleted(ctx context.Context, dataProviderID, sourceName string, result *models.ImportResult) {
	if p == nil {
		return
	}
	p.publish(SubjectImportCompleted, BuildImportCompletedEvent(dataProviderID, sourceName, result))
}

// BuildProductAssociatedEvent creates the event payload for an associated record
func BuildProductAssociatedEvent(record *models.DataProviderProduct, product *models.InternalProduct) *ProductAssociatedEvent {
	event := &ProductAssociatedEvent{
		EventID:        uuid.New().String(),
		EventType:      SubjectProductAssociated,
		Timestamp:      time.Now().UTC(),
		DataProviderID: record.DataProviderID,
		ExternalID:     record.ExternalID,
		InternalID:     product.InternalID,
	}
	if record.AssociationStrategy != nil {
		event.AssociationStrategy = *record.AssociationStrategy
	}
	if category, ok := product.FindAttribute(models.CategoryAttribute); ok {
		event.Category = category.Value
	}
	for _, attr := range record.Attributes {
		event.Attributes = append(event.Attributes, models.Attribute{Name: attr.Name, Value: attr.Value})
	}
	return event
}

// BuildImportCompletedEvent creates the run summary event
func BuildImportCompletedEvent(dataProviderID, sourceName string, result *models.ImportResult) *ImportCompletedEvent {
	return &ImportCompletedEvent{
		EventID:               uuid.New().String(),
		EventType:             SubjectImportCompleted,
		Timestamp:             time.Now().UTC(),
		DataProviderID:        dataProviderID,
		Source:                sourceName,
		TotalProducts:         result.TotalProducts,
		AssociatedProducts:    result.AssociatedProducts,
		NotAssociatedProducts: result.NotAssociatedProducts,
		ErrorCount:            len(result.Errors),
		Failed:                result.Failed,
		StartTime:             result.StartTime,
		EndTime:               result.EndTime,
	}
}

// publish marshals the event and sends it asynchronously to not block the import
func (p *Publisher) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("Failed to encode event")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if _, err := p.js.Publish(pubCtx, subject, data); err != nil {
			p.logger.WithField("subject", subject).WithError(err).Error("Failed to publish event")
			return
		}
		p.logger.WithField("subject", subject).Debug("Event published successfully")
	}()
}
