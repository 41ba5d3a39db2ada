package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
)

//go:embed templates/transfer.html
var templates embed.FS

var transferPage = template.Must(template.ParseFS(templates, "templates/transfer.html"))

type pageData struct {
	AssetsPath     string
	Endpoint       string
	ErrorMode      string
	FileField      string
	ImportButtonID string
	ImportFormID   string
	FilePickerID   string
	SuccessAlertID string
	ErrorAlertID   string
}

// PageHandler renders the admin transfer page.
type PageHandler struct {
	data   pageData
	logger zerolog.Logger
}

func NewPageHandler(assetsPath string, mode transfer.ContentMode, logger zerolog.Logger) *PageHandler {
	return &PageHandler{
		data: pageData{
			AssetsPath:     assetsPath,
			Endpoint:       transfer.Endpoint,
			ErrorMode:      mode.String(),
			FileField:      transfer.FileField,
			ImportButtonID: transfer.ImportButtonID,
			ImportFormID:   transfer.ImportFormID,
			FilePickerID:   transfer.FilePickerID,
			SuccessAlertID: transfer.SuccessAlertID,
			ErrorAlertID:   transfer.ErrorAlertID,
		},
		logger: logger,
	}
}

func (h *PageHandler) Transfer(c *gin.Context) {
	var buf bytes.Buffer
	if err := transferPage.Execute(&buf, h.data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render transfer page")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
