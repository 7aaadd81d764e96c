package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"product-association-service/internal/dataprovider"
	"product-association-service/internal/models"
)

// MockImporter is a mock implementation of Importer
type MockImporter struct {
	mock.Mock
}

func (m *MockImporter) ImportProducts(ctx context.Context, source dataprovider.Source) *models.ImportResult {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*models.ImportResult)
}

// Helper to setup test router
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func resultWith(total, associated, notAssociated int, errs ...string) *models.ImportResult {
	r := models.NewImportResult(time.Now())
	r.TotalProducts = total
	r.AssociatedProducts = associated
	r.NotAssociatedProducts = notAssociated
	for _, e := range errs {
		r.AddError(e)
	}
	r.Finish(time.Now())
	return r
}

func TestImportJSON_StatusMapping(t *testing.T) {
	failed := resultWith(0, 0, 0)
	failed.Fail("Import failed: expected JSON array at root level")

	tests := []struct {
		name     string
		result   *models.ImportResult
		expected int
	}{
		{"success", resultWith(2, 1, 1), http.StatusOK},
		{"record errors", resultWith(1, 1, 0, "Product processing failed: record 2: attributes must be an array"), http.StatusMultiStatus},
		{"run failure", failed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := new(MockImporter)
			importer.On("ImportProducts", mock.Anything, mock.AnythingOfType("*dataprovider.JSONSource")).Return(tt.result)

			handler := NewImportHandler(importer, "unused.json", 0, quietLogger())
			router := setupTestRouter()
			router.POST("/import/json", handler.ImportJSON)

			req := httptest.NewRequest(http.MethodPost, "/import/json", bytes.NewBufferString(`[{"externalId":"E1"}]`))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.EqualValues(t, tt.result.TotalProducts, body["totalProducts"])
			assert.Contains(t, body, "errors")
			importer.AssertExpectations(t)
		})
	}
}

func TestImportJSON_EmptyBodyUsesConfiguredFile(t *testing.T) {
	importer := new(MockImporter)
	importer.On("ImportProducts", mock.Anything, mock.MatchedBy(func(src dataprovider.Source) bool {
		_, ok := src.(*dataprovider.JSONFileSource)
		return ok && src.Name() == "sample-data/products.json"
	})).Return(resultWith(0, 0, 0))

	handler := NewImportHandler(importer, "sample-data/products.json", 0, quietLogger())
	router := setupTestRouter()
	router.POST("/import/json", handler.ImportJSON)

	req := httptest.NewRequest(http.MethodPost, "/import/json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	importer.AssertExpectations(t)
}

func TestImportJSON_NilResultIsServerError(t *testing.T) {
	importer := new(MockImporter)
	importer.On("ImportProducts", mock.Anything, mock.Anything).Return(nil)

	handler := NewImportHandler(importer, "unused.json", 0, quietLogger())
	router := setupTestRouter()
	router.POST("/import/json", handler.ImportJSON)

	req := httptest.NewRequest(http.MethodPost, "/import/json", bytes.NewBufferString(`[]`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestImportJSON_RateLimited(t *testing.T) {
	importer := new(MockImporter)
	importer.On("ImportProducts", mock.Anything, mock.Anything).Return(resultWith(0, 0, 0)).Once()

	handler := NewImportHandler(importer, "unused.json", time.Hour, quietLogger())
	router := setupTestRouter()
	router.POST("/import/json", handler.ImportJSON)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/import/json", bytes.NewBufferString(`[]`)))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/import/json", bytes.NewBufferString(`[]`)))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "3600", second.Header().Get("Retry-After"))

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
	importer.AssertNumberOfCalls(t, "ImportProducts", 1)
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/import/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestImportUpload_DispatchesByExtension(t *testing.T) {
	workbook := excelize.NewFile()
	require.NoError(t, workbook.SetSheetRow("Sheet1", "A1", &[]interface{}{"externalId"}))
	xlsx, err := workbook.WriteToBuffer()
	require.NoError(t, err)
	workbook.Close()

	tests := []struct {
		filename   string
		data       []byte
		providerID string
	}{
		{"products.json", []byte(`[]`), dataprovider.JSONProviderID},
		{"products.CSV", []byte("externalId\nE1\n"), dataprovider.CSVProviderID},
		{"products.xlsx", xlsx.Bytes(), dataprovider.XLSXProviderID},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			importer := new(MockImporter)
			importer.On("ImportProducts", mock.Anything, mock.MatchedBy(func(src dataprovider.Source) bool {
				return src.ProviderID() == tt.providerID && src.Name() == tt.filename
			})).Return(resultWith(0, 0, 0))

			handler := NewImportHandler(importer, "unused.json", 0, quietLogger())
			router := setupTestRouter()
			router.POST("/import/upload", handler.ImportUpload)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartUpload(t, tt.filename, tt.data, map[string]string{"encoding": "windows-1252"}))

			assert.Equal(t, http.StatusOK, w.Code)
			importer.AssertExpectations(t)
		})
	}
}

func TestImportUpload_Rejections(t *testing.T) {
	importer := new(MockImporter)
	handler := NewImportHandler(importer, "unused.json", 0, quietLogger())
	router := setupTestRouter()
	router.POST("/import/upload", handler.ImportUpload)

	t.Run("unsupported extension", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartUpload(t, "products.txt", []byte("x"), nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_FORMAT")
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/import/upload", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "FILE_REQUIRED")
	})

	importer.AssertNotCalled(t, "ImportProducts", mock.Anything, mock.Anything)
}

func TestGetImportTemplate(t *testing.T) {
	handler := NewImportHandler(new(MockImporter), "unused.json", 0, quietLogger())
	router := setupTestRouter()
	router.GET("/import/template", handler.GetImportTemplate)

	t.Run("json", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/import/template", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Success  bool                  `json:"success"`
			Template models.ImportTemplate `json:"template"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "externalId", body.Template.Columns[0].Name)
	})

	t.Run("csv", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/import/template?format=csv", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "dataprovider_import_template.csv")
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("externalId,globalTradeIdentifier,Category,Brand")))
	})

	t.Run("xlsx", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/import/template?format=xlsx", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		assert.Contains(t, f.GetSheetList(), "Products")
	})
}

func TestImportStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, ImportStatusCode(nil))
	assert.Equal(t, http.StatusOK, ImportStatusCode(resultWith(1, 1, 0)))
	assert.Equal(t, http.StatusMultiStatus, ImportStatusCode(resultWith(1, 1, 0, "boom")))
}
