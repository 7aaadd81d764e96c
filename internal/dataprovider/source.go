package dataprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Provider identifiers stored on provenance records
const (
	JSONProviderID = "JsonDataProvider"
	CSVProviderID  = "CsvDataProvider"
	XLSXProviderID = "XlsxDataProvider"
)

var (
	ErrEmptySource = errors.New("source is empty")
	ErrNotArray    = errors.New("expected JSON array at root level")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Source yields the raw records of one import run. An error from Records fails the whole run.
type Source interface {
	ProviderID() string
	Name() string
	Records(ctx context.Context) ([]json.RawMessage, error)
}

// JSONFileSource reads a JSON array from disk
type JSONFileSource struct {
	path string
}

func NewJSONFileSource(path string) *JSONFileSource {
	return &JSONFileSource{path: path}
}

func (s *JSONFileSource) ProviderID() string { return JSONProviderID }

func (s *JSONFileSource) Name() string { return s.path }

func (s *JSONFileSource) Records(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return decodeArray(data)
}

// JSONSource reads a JSON array held in memory, e.g. a request body
type JSONSource struct {
	name string
	data []byte
}

func NewJSONSource(name string, data []byte) *JSONSource {
	return &JSONSource{name: name, data: data}
}

func (s *JSONSource) ProviderID() string { return JSONProviderID }

func (s *JSONSource) Name() string { return s.name }

func (s *JSONSource) Records(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return decodeArray(s.data)
}

func decodeArray(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	if data[0] != '[' {
		return nil, ErrNotArray
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	return records, nil
}
