package term

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
)

func TestFileForm_SnapshotAndReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.tar")
	require.NoError(t, os.WriteFile(path, []byte("plain text archive"), 0644))

	form := NewFileForm(path, transfer.FormValue{Name: "nonce", Value: "n"})

	data, err := form.Snapshot()
	require.NoError(t, err)
	require.Len(t, data.Files, 1)
	assert.Equal(t, transfer.FileField, data.Files[0].Field)
	assert.Equal(t, "export.tar", data.Files[0].Filename)
	assert.Equal(t, "text/plain; charset=utf-8", data.Files[0].ContentType)
	assert.Equal(t, []transfer.FormValue{{Name: "nonce", Value: "n"}}, data.Values)

	form.Reset()
	assert.Empty(t, form.Path())

	_, err = form.Snapshot()
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestFileForm_MissingFile(t *testing.T) {
	form := NewFileForm(filepath.Join(t.TempDir(), "missing.tar.gz"))

	_, err := form.Snapshot()
	assert.Error(t, err)
}

func TestRegion_ShowIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegion(&buf, Failure, "")

	r.SetText("Invalid YAML")
	r.Show()
	r.Show()

	assert.True(t, r.Visible())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Invalid YAML")))

	r.Hide()
	r.Hide()
	assert.False(t, r.Visible())

	r.Show()
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("Invalid YAML")))
}

func TestRegion_SetHTMLKeepsMarkup(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegion(&buf, Success, "")

	r.SetHTML("<b>ok</b>")
	r.Show()

	assert.Contains(t, buf.String(), "<b>ok</b>")
}
