package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/metrics"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/portable"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
)

// multipartOverhead leaves room for the form encoding around the archive.
const multipartOverhead = 1 << 20

// ImportResponse is the body of every POST /admin/yaml answer.
type ImportResponse struct {
	Success bool   `json:"success"`
	Errors  string `json:"errors,omitempty"`
}

type TransferHandler struct {
	importer *portable.Importer
	exporter *portable.Exporter
	maxSize  int64
	tempDir  string
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewTransferHandler(importer *portable.Importer, exporter *portable.Exporter, maxSize int64, tempDir string, m *metrics.Metrics, logger zerolog.Logger) *TransferHandler {
	return &TransferHandler{
		importer: importer,
		exporter: exporter,
		maxSize:  maxSize,
		tempDir:  tempDir,
		metrics:  m,
		logger:   logger,
	}
}

// Import accepts an archive of challenges in the "file" field and imports it.
func (h *TransferHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)

	file, err := c.FormFile(transfer.FileField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(c, http.StatusRequestEntityTooLarge, "Archive too large")
			return
		}
		h.logger.Warn().Err(err).Msg("Failed to get file from form")
		h.reject(c, http.StatusBadRequest, "No file provided")
		return
	}

	if file.Size > h.maxSize {
		h.logger.Warn().Int64("size", file.Size).Int64("max", h.maxSize).Msg("Archive too large")
		h.reject(c, http.StatusRequestEntityTooLarge, "Archive too large")
		return
	}
	h.metrics.ArchiveSize.Observe(float64(file.Size))

	src, err := file.Open()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to open uploaded archive")
		h.fail(c, "Failed to process archive")
		return
	}
	defer src.Close()

	dir, manifest, err := portable.ExtractManifest(src, file.Filename, h.tempDir, h.maxSize)
	if err != nil {
		h.logger.Warn().Err(err).Str("filename", file.Filename).Msg("Refused archive")
		switch {
		case errors.Is(err, portable.ErrArchiveTooLarge):
			h.reject(c, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, portable.ErrUnsafePath),
			errors.Is(err, portable.ErrMissingManifest),
			errors.Is(err, portable.ErrInvalidArchive):
			h.reject(c, http.StatusBadRequest, err.Error())
		default:
			h.fail(c, "Failed to unpack archive")
		}
		return
	}
	defer os.RemoveAll(dir)

	report, err := h.importer.ImportFile(c.Request.Context(), manifest, portable.ImportOptions{
		Move:   true,
		Source: "upload",
	})
	h.metrics.Challenges.WithLabelValues("created").Add(float64(len(report.Created)))
	h.metrics.Challenges.WithLabelValues("updated").Add(float64(len(report.Updated)))

	if err != nil {
		if portable.IsRejection(err) {
			h.logger.Info().Err(err).Int("written", report.Total()).Msg("Import rejected")
			h.metrics.Imports.WithLabelValues(metrics.OutcomeRejected).Inc()
			c.JSON(http.StatusOK, ImportResponse{Success: false, Errors: err.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("Import failed")
		h.fail(c, "Failed to import challenges")
		return
	}

	h.logger.Info().
		Str("filename", file.Filename).
		Int("created", len(report.Created)).
		Int("updated", len(report.Updated)).
		Msg("Archive imported")
	h.metrics.Imports.WithLabelValues(metrics.OutcomeSuccess).Inc()
	c.JSON(http.StatusOK, ImportResponse{Success: true})
}

func (h *TransferHandler) reject(c *gin.Context, status int, msg string) {
	h.metrics.Imports.WithLabelValues(metrics.OutcomeInvalid).Inc()
	c.JSON(status, ImportResponse{Success: false, Errors: msg})
}

func (h *TransferHandler) fail(c *gin.Context, msg string) {
	h.metrics.Imports.WithLabelValues(metrics.OutcomeError).Inc()
	c.JSON(http.StatusInternalServerError, ImportResponse{Success: false, Errors: msg})
}

// Export streams every challenge as export.tar.gz.
func (h *TransferHandler) Export(c *gin.Context) {
	f, err := os.CreateTemp(h.tempDir, "portable-export-*.tar.gz")
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create export file")
		h.exportFailed(c)
		return
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := h.exporter.Export(c.Request.Context(), f); err != nil {
		h.logger.Error().Err(err).Msg("Export failed")
		h.exportFailed(c)
		return
	}

	size, err := f.Seek(0, io.SeekCurrent)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to rewind export file")
		h.exportFailed(c)
		return
	}

	h.metrics.Exports.WithLabelValues(metrics.OutcomeSuccess).Inc()
	c.DataFromReader(http.StatusOK, size, "application/gzip", f, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, portable.ExportName),
	})
}

func (h *TransferHandler) exportFailed(c *gin.Context) {
	h.metrics.Exports.WithLabelValues(metrics.OutcomeError).Inc()
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to export challenges"})
}
