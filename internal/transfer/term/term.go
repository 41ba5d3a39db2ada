// Package term binds the transfer controller to a terminal: a file on disk stands in
// for the import form and feedback regions print to a writer.
package term

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
)

// ErrNoFile is returned by Snapshot when no file has been chosen.
var ErrNoFile = errors.New("no file chosen")

// FileForm is an import form backed by a path on disk.
type FileForm struct {
	mu     sync.Mutex
	path   string
	values []transfer.FormValue
}

// NewFileForm returns a form with path chosen in its file input and values in its
// other fields.
func NewFileForm(path string, values ...transfer.FormValue) *FileForm {
	return &FileForm{path: path, values: values}
}

// Path returns the chosen file, empty after Reset.
func (f *FileForm) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

func (f *FileForm) Snapshot() (transfer.FormData, error) {
	f.mu.Lock()
	path := f.path
	values := append([]transfer.FormValue(nil), f.values...)
	f.mu.Unlock()

	if path == "" {
		return transfer.FormData{}, ErrNoFile
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return transfer.FormData{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return transfer.FormData{
		Values: values,
		Files: []transfer.FormFile{{
			Field:       transfer.FileField,
			Filename:    filepath.Base(path),
			ContentType: mimetype.Detect(content).String(),
			Content:     content,
		}},
	}, nil
}

func (f *FileForm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = ""
	f.values = nil
}

// Kind selects how a region renders.
type Kind int

const (
	Success Kind = iota
	Failure
)

// Region prints its content once each time it becomes visible.
type Region struct {
	mu      sync.Mutex
	w       io.Writer
	kind    Kind
	text    string
	visible bool
}

// NewRegion returns a hidden region writing to w. text is the initial content.
func NewRegion(w io.Writer, kind Kind, text string) *Region {
	return &Region{w: w, kind: kind, text: text}
}

func (r *Region) Show() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.visible {
		return
	}
	r.visible = true

	switch r.kind {
	case Success:
		fmt.Fprintf(r.w, "\033[32m✓\033[0m %s\n", r.text)
	default:
		fmt.Fprintf(r.w, "\033[31m✗\033[0m %s\n", r.text)
	}
}

func (r *Region) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = false
}

func (r *Region) SetText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
}

// SetHTML stores markup verbatim; a terminal has nothing to render it with.
func (r *Region) SetHTML(markup string) {
	r.SetText(markup)
}

// Visible reports whether the region is shown.
func (r *Region) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// Trigger announces when a submission starts.
type Trigger struct {
	w io.Writer
}

func NewTrigger(w io.Writer) *Trigger {
	return &Trigger{w: w}
}

func (t *Trigger) SetDisabled(disabled bool) {
	if disabled {
		fmt.Fprintln(t.w, "  uploading...")
	}
}
