package dataprovider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"product-association-service/internal/models"
	"gorm.io/datatypes"
)

// Record is one provider entry after parsing
type Record struct {
	ExternalID            string
	GlobalTradeIdentifier *string
	Attributes            []models.Attribute
	Raw                   json.RawMessage
}

// ParseRecord decodes a raw JSON object. Unknown fields are ignored and missing
// optional fields stay empty. externalId falls back to the legacy internalId field.
func ParseRecord(raw json.RawMessage) (*Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("record is not a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("malformed record: %w", err)
	}

	record := &Record{Raw: append(json.RawMessage(nil), trimmed...)}

	externalID, ok, err := scalarField(fields, "externalId")
	if err != nil {
		return nil, err
	}
	if !ok {
		if externalID, _, err = scalarField(fields, "internalId"); err != nil {
			return nil, err
		}
	}
	record.ExternalID = externalID

	gtin, ok, err := scalarField(fields, "globalTradeIdentifier")
	if err != nil {
		return nil, err
	}
	if ok {
		record.GlobalTradeIdentifier = &gtin
	}

	attrs, err := parseAttributes(fields["attributes"])
	if err != nil {
		return nil, err
	}
	record.Attributes = attrs

	return record, nil
}

// Transient builds the not yet persisted provider product handed to the association chain
func (r *Record) Transient(dataProviderID string) *models.DataProviderProduct {
	product := &models.DataProviderProduct{
		DataProviderID:        dataProviderID,
		ExternalID:            r.ExternalID,
		GlobalTradeIdentifier: r.GlobalTradeIdentifier,
		RawData:               datatypes.JSON(r.Raw),
	}
	product.SetAttributes(r.Attributes)
	return product
}

func parseAttributes(raw json.RawMessage) ([]models.Attribute, error) {
	if isNull(raw) {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] != '[' {
		return nil, errors.New("attributes must be an array")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("malformed attributes: %w", err)
	}

	seen := make(map[models.Attribute]struct{}, len(items))
	attrs := make([]models.Attribute, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("attribute %d is not an object", i)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, fmt.Errorf("malformed attribute %d: %w", i, err)
		}

		name, ok, err := scalarField(fields, "name")
		if err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, err)
		}
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("attribute %d has no name", i)
		}
		value, _, err := scalarField(fields, "value")
		if err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, err)
		}

		attr := models.Attribute{Name: name, Value: value}
		if _, dup := seen[attr]; dup {
			continue
		}
		seen[attr] = struct{}{}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// scalarField renders a string, number or boolean as text. ok is false for absent or null fields.
func scalarField(fields map[string]json.RawMessage, key string) (string, bool, error) {
	raw, present := fields[key]
	if !present || isNull(raw) {
		return "", false, nil
	}

	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, fmt.Errorf("field %s: %w", key, err)
		}
		return s, true, nil
	case '{', '[':
		return "", false, fmt.Errorf("field %s must be a scalar value", key)
	default:
		// numbers and booleans keep their literal text
		return string(trimmed), true, nil
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
