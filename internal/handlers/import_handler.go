package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"product-association-service/internal/dataprovider"
	"product-association-service/internal/models"
)

// MaxUploadBytes bounds request bodies and uploaded files
const MaxUploadBytes = 32 << 20

// Importer runs one import over a source
type Importer interface {
	ImportProducts(ctx context.Context, source dataprovider.Source) *models.ImportResult
}

type ImportHandler struct {
	importer   Importer
	sourcePath string
	limiter    *rate.Limiter
	logger     *logrus.Entry
}

// NewImportHandler creates the import handler. A zero triggerInterval disables trigger rate limiting.
func NewImportHandler(importer Importer, sourcePath string, triggerInterval time.Duration, logger *logrus.Logger) *ImportHandler {
	var limiter *rate.Limiter
	if triggerInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(triggerInterval), 1)
	}
	return &ImportHandler{
		importer:   importer,
		sourcePath: sourcePath,
		limiter:    limiter,
		logger:     logger.WithField("component", "import-handler"),
	}
}

// ImportJSON imports the configured JSON file, or the request body when one is sent
// POST /api/v1/dataprovider/import/json
func (h *ImportHandler) ImportJSON(c *gin.Context) {
	if !h.allow(c) {
		return
	}

	var body []byte
	if c.Request.Body != nil {
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxUploadBytes+1))
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body")
			return
		}
		if len(data) > MaxUploadBytes {
			respondError(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body exceeds the upload limit")
			return
		}
		body = data
	}

	var source dataprovider.Source
	if len(bytes.TrimSpace(body)) == 0 {
		source = dataprovider.NewJSONFileSource(h.sourcePath)
	} else {
		source = dataprovider.NewJSONSource("request-body", body)
	}

	h.logger.WithField("source", source.Name()).Info("Import request received for JSON data provider")
	h.run(c, source)
}

// ImportUpload imports an uploaded JSON, CSV or XLSX file
// POST /api/v1/dataprovider/import/upload
func (h *ImportHandler) ImportUpload(c *gin.Context) {
	if !h.allow(c) {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a JSON, CSV or Excel file")
		return
	}
	defer file.Close()

	if header.Size > MaxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FILE", "Failed to read uploaded file")
		return
	}

	var source dataprovider.Source
	switch detectFormat(header.Filename) {
	case models.ImportFormatJSON:
		source = dataprovider.NewJSONSource(header.Filename, data)
	case models.ImportFormatCSV:
		source = dataprovider.NewCSVSource(header.Filename, data, c.PostForm("encoding"))
	case models.ImportFormatXLSX:
		source = dataprovider.NewXLSXSource(header.Filename, data)
	default:
		respondError(c, http.StatusBadRequest, "INVALID_FORMAT", "Only JSON, CSV and XLSX files are supported")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"source":         header.Filename,
		"dataProviderId": source.ProviderID(),
		"bytes":          len(data),
	}).Info("Import upload received")
	h.run(c, source)
}

// GetImportTemplate returns the template definition or a template file
// GET /api/v1/dataprovider/import/template?format=json|csv|xlsx
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	template := models.DataProviderImportTemplate()

	switch models.ImportFormat(c.DefaultQuery("format", "json")) {
	case models.ImportFormatCSV:
		data, err := dataprovider.CSVTemplate(template)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "TEMPLATE_FAILED", err.Error())
			return
		}
		c.Header("Content-Disposition", "attachment; filename=dataprovider_import_template.csv")
		c.Data(http.StatusOK, "text/csv", data)
	case models.ImportFormatXLSX:
		data, err := dataprovider.XLSXTemplate(template)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "TEMPLATE_FAILED", err.Error())
			return
		}
		c.Header("Content-Disposition", "attachment; filename=dataprovider_import_template.xlsx")
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// run imports detached from client cancellation and maps the outcome to a status:
// 200 without errors, 207 with record errors, 500 when the run failed.
func (h *ImportHandler) run(c *gin.Context, source dataprovider.Source) {
	result := h.importer.ImportProducts(context.WithoutCancel(c.Request.Context()), source)

	status := ImportStatusCode(result)
	entry := h.logger.WithFields(logrus.Fields{"source": source.Name(), "status": status})
	switch status {
	case http.StatusOK:
		entry.Infof("Import successful: %s", result)
	case http.StatusMultiStatus:
		entry.Warnf("Import completed with errors: %s", result)
	default:
		entry.Errorf("Import failed: %s", result)
	}

	c.JSON(status, result)
}

// ImportStatusCode maps an import result onto an HTTP status
func ImportStatusCode(result *models.ImportResult) int {
	switch {
	case result == nil || result.Failed:
		return http.StatusInternalServerError
	case result.HasErrors():
		return http.StatusMultiStatus
	default:
		return http.StatusOK
	}
}

func (h *ImportHandler) allow(c *gin.Context) bool {
	if h.limiter == nil || h.limiter.Allow() {
		return true
	}
	c.Header("Retry-After", fmt.Sprintf("%.0f", h.retryAfter().Seconds()))
	respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "An import was triggered too recently, retry later")
	return false
}

func (h *ImportHandler) retryAfter() time.Duration {
	every := time.Duration(float64(time.Second) / float64(h.limiter.Limit()))
	if every < time.Second {
		return time.Second
	}
	return every
}

func detectFormat(filename string) models.ImportFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return models.ImportFormatJSON
	case ".csv":
		return models.ImportFormatCSV
	case ".xlsx":
		return models.ImportFormatXLSX
	default:
		return ""
	}
}
