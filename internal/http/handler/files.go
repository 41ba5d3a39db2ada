package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// FileHandler serves stored challenge attachments.
type FileHandler struct {
	storage storage.Storage
	logger  zerolog.Logger
}

func NewFileHandler(storage storage.Storage, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		storage: storage,
		logger:  logger,
	}
}

func (h *FileHandler) GetFile(c *gin.Context) {
	fileID := strings.TrimPrefix(c.Param("fileId"), "/")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "File ID is required",
		})
		return
	}

	file, fileInfo, err := h.storage.Open(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "File not found",
			})
			return
		}
		h.logger.Error().Err(err).Str("fileId", fileID).Msg("Failed to open file")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to open file",
		})
		return
	}
	defer file.Close()

	contentType := fileInfo.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, fileInfo.Size, contentType, file, nil)
}
