package dataprovider

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"product-association-service/internal/models"
)

const (
	columnExternalID       = "externalid"
	columnLegacyInternalID = "internalid"
	columnGTIN             = "globaltradeidentifier"
)

var legacyEncodings = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"windows-1251": charmap.Windows1251,
	"cp1251":       charmap.Windows1251,
}

// CSVSource reads a spreadsheet exported as CSV. Columns other than the
// identifier columns become attributes named after their header.
type CSVSource struct {
	name     string
	data     []byte
	encoding string
}

// NewCSVSource creates a CSV source. An empty encoding means UTF-8, with a
// Windows-1252 fallback for input that is not valid UTF-8.
func NewCSVSource(name string, data []byte, encoding string) *CSVSource {
	return &CSVSource{name: name, data: data, encoding: strings.ToLower(strings.TrimSpace(encoding))}
}

func (s *CSVSource) ProviderID() string { return CSVProviderID }

func (s *CSVSource) Name() string { return s.name }

func (s *CSVSource) Records(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoded, err := s.decode()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(decoded)) == 0 {
		return nil, ErrEmptySource
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = detectDelimiter(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv read error: %w", err)
	}
	return rowsToRecords(rows)
}

func (s *CSVSource) decode() ([]byte, error) {
	data := bytes.TrimPrefix(s.data, utf8BOM)

	enc, known := legacyEncodings[s.encoding]
	switch {
	case s.encoding == "" || s.encoding == "utf-8" || s.encoding == "utf8":
		if utf8.Valid(data) {
			return data, nil
		}
		enc = charmap.Windows1252
	case !known:
		return nil, fmt.Errorf("unsupported encoding %q", s.encoding)
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s input: %w", s.encoding, err)
	}
	return decoded, nil
}

// detectDelimiter picks ';' when the header line uses it more than ','
func detectDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	if bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		return ';'
	}
	return ','
}

// XLSXSource reads the first sheet of an Excel workbook
type XLSXSource struct {
	name string
	data []byte
}

func NewXLSXSource(name string, data []byte) *XLSXSource {
	return &XLSXSource{name: name, data: data}
}

func (s *XLSXSource) ProviderID() string { return XLSXProviderID }

func (s *XLSXSource) Name() string { return s.name }

func (s *XLSXSource) Records(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(bytes.NewReader(s.data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("no sheets found in Excel file")
	}

	sheetName := sheets[0]
	// Prefer the template's "Products" sheet if it exists
	for _, name := range sheets {
		if strings.EqualFold(name, templateSheet) {
			sheetName = name
			break
		}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	return rowsToRecords(rows)
}

// tabularRecord mirrors the JSON record layout so tabular rows share ParseRecord
type tabularRecord struct {
	ExternalID            string             `json:"externalId"`
	GlobalTradeIdentifier *string            `json:"globalTradeIdentifier,omitempty"`
	Attributes            []models.Attribute `json:"attributes"`
	Row                   int                `json:"row"`
}

func rowsToRecords(rows [][]string) ([]json.RawMessage, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySource
	}

	headers := make([]string, len(rows[0]))
	idCol, gtinCol := -1, -1
	for i, h := range rows[0] {
		h = strings.TrimSuffix(strings.TrimSpace(h), " *")
		headers[i] = h
		switch strings.ToLower(h) {
		case columnExternalID:
			idCol = i
		case columnLegacyInternalID:
			if idCol < 0 {
				idCol = i
			}
		case columnGTIN:
			gtinCol = i
		}
	}
	if idCol < 0 {
		return nil, errors.New("missing externalId column")
	}

	records := make([]json.RawMessage, 0, len(rows)-1)
	for rowIdx, row := range rows[1:] {
		if blankRow(row) {
			continue
		}

		rec := tabularRecord{Attributes: make([]models.Attribute, 0), Row: rowIdx + 2}
		for i, value := range row {
			if i >= len(headers) {
				break
			}
			value = strings.TrimSpace(value)
			switch {
			case i == idCol:
				rec.ExternalID = value
			case i == gtinCol:
				if value != "" {
					gtin := value
					rec.GlobalTradeIdentifier = &gtin
				}
			case strings.EqualFold(headers[i], columnLegacyInternalID), headers[i] == "":
				// legacy id column shadowed by externalId, or unnamed column
			case value != "":
				rec.Attributes = append(rec.Attributes, models.Attribute{Name: headers[i], Value: value})
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %d: %w", rec.Row, err)
		}
		records = append(records, data)
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
