package portable

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/domain"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
)

// ExportName is the filename offered for exported archives.
const ExportName = "export.tar.gz"

type Exporter struct {
	repo   repository.Challenges
	store  storage.Storage
	logger zerolog.Logger
	now    func() time.Time
}

func NewExporter(repo repository.Challenges, store storage.Storage, logger zerolog.Logger) *Exporter {
	return &Exporter{
		repo:   repo,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

type exportedFile struct {
	name      string
	storageID string
}

// Export writes every challenge as a gzipped tar holding the manifest and the
// attachments it references. The archive imports back as is.
func (e *Exporter) Export(ctx context.Context, w io.Writer) error {
	challenges, err := e.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list challenges: %w", err)
	}

	specs := make([]ChallengeSpec, 0, len(challenges))
	var files []exportedFile
	for _, c := range challenges {
		names := attachmentNames(c)
		for n, f := range c.Files {
			files = append(files, exportedFile{name: names[n], storageID: f.StorageID})
		}
		specs = append(specs, specFromChallenge(c, names))
	}

	var manifest bytes.Buffer
	if err := EncodeManifest(&manifest, specs); err != nil {
		return err
	}

	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)
	modTime := e.now()

	if err := tw.WriteHeader(&tar.Header{
		Name:    ManifestName,
		Mode:    0644,
		Size:    int64(manifest.Len()),
		ModTime: modTime,
	}); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := tw.Write(manifest.Bytes()); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	for _, f := range files {
		if err := e.writeAttachment(ctx, tw, f, modTime); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close gzip: %w", err)
	}

	e.logger.Info().Int("challenges", len(specs)).Int("files", len(files)).Msg("Export finished")
	return nil
}

func (e *Exporter) writeAttachment(ctx context.Context, tw *tar.Writer, f exportedFile, modTime time.Time) error {
	rc, info, err := e.store.Open(ctx, f.storageID)
	if err != nil {
		return fmt.Errorf("failed to open attachment %s: %w", f.storageID, err)
	}
	defer rc.Close()

	if err := tw.WriteHeader(&tar.Header{
		Name:    f.name,
		Mode:    0644,
		Size:    info.Size,
		ModTime: modTime,
	}); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", f.name, err)
	}
	if _, err := io.CopyN(tw, rc, info.Size); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.name, err)
	}
	return nil
}

// attachmentNames places a challenge's files under files/<id>/, numbering repeated names.
func attachmentNames(c domain.Challenge) []string {
	seen := make(map[string]int, len(c.Files))
	names := make([]string, len(c.Files))

	for n, f := range c.Files {
		base := path.Base(strings.ReplaceAll(f.OriginalName, `\`, "/"))
		if base == "." || base == "/" || base == ".." {
			base = "file"
		}

		name := base
		if count := seen[base]; count > 0 {
			ext := path.Ext(base)
			name = strings.TrimSuffix(base, ext) + "_" + strconv.Itoa(count) + ext
		}
		seen[base]++

		names[n] = path.Join(FilesDir, c.ID, name)
	}
	return names
}
