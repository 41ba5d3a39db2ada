package portable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/domain"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/events"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
)

// ImportOptions controls a single import.
type ImportOptions struct {
	// BaseDir is the directory manifest file paths are relative to.
	BaseDir string
	// SkipOnError skips invalid challenges instead of failing the import.
	SkipOnError bool
	// Move removes attachment sources once they are stored.
	Move bool
	// Source tags published events, e.g. "upload" or "cli".
	Source string
}

// Report summarizes an import.
type Report struct {
	Created []string
	Updated []string
	Skipped []string
}

// Total is the number of challenges written.
func (r Report) Total() int {
	return len(r.Created) + len(r.Updated)
}

type Importer struct {
	repo      repository.Challenges
	store     storage.Storage
	publisher events.Publisher
	logger    zerolog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewImporter(repo repository.Challenges, store storage.Storage, publisher events.Publisher, logger zerolog.Logger) *Importer {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Importer{
		repo:      repo,
		store:     store,
		publisher: publisher,
		logger:    logger,
		validate:  newValidator(),
		now:       time.Now,
	}
}

// ImportFile imports the manifest at path; attachments are resolved next to it.
func (i *Importer) ImportFile(ctx context.Context, manifest string, opts ImportOptions) (Report, error) {
	f, err := os.Open(manifest)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Dir(manifest)
	}
	return i.Import(ctx, f, opts)
}

// Import reads a manifest stream and creates or updates its challenges. The whole
// manifest is parsed before anything is written. Challenges written before a failing
// one stay written and their events are published.
func (i *Importer) Import(ctx context.Context, r io.Reader, opts ImportOptions) (Report, error) {
	specs, err := DecodeManifest(r)
	if err != nil {
		return Report{}, err
	}

	var (
		report    Report
		published []events.Event
	)
	defer func() {
		if err := i.publisher.Publish(ctx, published...); err != nil {
			i.logger.Warn().Err(err).Int("events", len(published)).Msg("Failed to publish import events")
		}
	}()

	for n, spec := range specs {
		if errs := problems(i.validate, spec, n+1); len(errs) > 0 {
			if !opts.SkipOnError {
				return report, &ValidationError{Problems: errs}
			}
			for _, p := range errs {
				i.logger.Warn().Str("problem", p).Msg("Skipping challenge")
			}
			report.Skipped = append(report.Skipped, strings.TrimSpace(spec.Name))
			continue
		}

		event, err := i.upsert(ctx, normalize(spec), opts)
		if err != nil {
			if opts.SkipOnError && IsRejection(err) {
				i.logger.Warn().Err(err).Str("name", spec.Name).Msg("Skipping challenge")
				report.Skipped = append(report.Skipped, strings.TrimSpace(spec.Name))
				continue
			}
			return report, err
		}

		if event.Action == events.ChallengeCreated {
			report.Created = append(report.Created, event.Name)
		} else {
			report.Updated = append(report.Updated, event.Name)
		}
		published = append(published, event)
	}

	i.logger.Info().
		Int("created", len(report.Created)).
		Int("updated", len(report.Updated)).
		Int("skipped", len(report.Skipped)).
		Msg("Import finished")

	return report, nil
}

func normalize(spec ChallengeSpec) ChallengeSpec {
	spec.Name = strings.TrimSpace(spec.Name)
	description := strings.TrimSpace(*spec.Description)
	spec.Description = &description
	category := strings.TrimSpace(*spec.Category)
	spec.Category = &category
	if spec.Type == "" {
		spec.Type = string(domain.TypeStandard)
	}

	flags := make([]FlagSpec, len(spec.Flags))
	for n, f := range spec.Flags {
		content := strings.TrimSpace(*f.Flag)
		flags[n] = FlagSpec{Flag: &content, Type: f.Type}
		if flags[n].Type == "" {
			flags[n].Type = domain.DefaultFlagType
		}
	}
	spec.Flags = flags
	return spec
}

func (i *Importer) upsert(ctx context.Context, spec ChallengeSpec, opts ImportOptions) (events.Event, error) {
	existing, err := i.repo.GetByName(ctx, spec.Name)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return events.Event{}, fmt.Errorf("failed to look up %q: %w", spec.Name, err)
	}

	now := i.now()

	var (
		c      *domain.Challenge
		action events.Action
		stale  []domain.ChallengeFile
	)

	if existing != nil {
		i.logger.Info().Str("name", spec.Name).Str("id", existing.ID).Msg("Updating challenge: duplicate found")

		c = existing
		stale = c.Files
		c.Description = *spec.Description
		c.Category = *spec.Category
		if spec.Type == string(domain.TypeStandard) {
			c.Value = *spec.Value
		}
		c.UpdatedAt = now
		action = events.ChallengeUpdated
	} else {
		i.logger.Info().Str("name", spec.Name).Msg("Adding challenge")

		c = &domain.Challenge{
			ID:          uuid.New().String(),
			Name:        spec.Name,
			Description: *spec.Description,
			Category:    *spec.Category,
			Value:       *spec.Value,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		switch domain.ChallengeType(spec.Type) {
		case domain.TypeStandard:
			c.Type = domain.TypeStandard
		case domain.TypeDynamic:
			c.Type = domain.TypeDynamic
			c.Minimum = *spec.Minimum
			c.Decay = *spec.Decay
		default:
			return events.Event{}, fmt.Errorf("%w: %q", ErrUnknownChallengeType, spec.Type)
		}
		action = events.ChallengeCreated
	}

	c.Tags = append([]string(nil), spec.Tags...)
	c.Flags = make([]domain.Flag, 0, len(spec.Flags))
	for _, f := range spec.Flags {
		c.Flags = append(c.Flags, domain.Flag{Content: *f.Flag, Type: f.Type})
	}

	files, err := i.storeFiles(ctx, c.ID, spec.Files, opts)
	if err != nil {
		return events.Event{}, err
	}
	c.Files = files

	if action == events.ChallengeCreated {
		err = i.repo.Create(ctx, c)
	} else {
		err = i.repo.Update(ctx, c)
	}
	if err != nil {
		i.discard(ctx, files)
		return events.Event{}, fmt.Errorf("failed to save %q: %w", c.Name, err)
	}

	i.discard(ctx, stale)

	return events.Event{
		Action:      action,
		ChallengeID: c.ID,
		Name:        c.Name,
		Category:    c.Category,
		Source:      opts.Source,
		OccurredAt:  now,
	}, nil
}

func (i *Importer) storeFiles(ctx context.Context, challengeID string, names []string, opts ImportOptions) ([]domain.ChallengeFile, error) {
	var stored []domain.ChallengeFile

	for _, name := range names {
		rel := filepath.FromSlash(path.Clean(name))
		if !filepath.IsLocal(rel) {
			i.discard(ctx, stored)
			return nil, &ValidationError{Problems: []string{fmt.Sprintf("file %q is outside the manifest directory", name)}}
		}
		src := filepath.Join(opts.BaseDir, rel)

		info, err := i.storeFile(ctx, challengeID, src, opts.Move)
		if err != nil {
			i.discard(ctx, stored)
			if errors.Is(err, os.ErrNotExist) {
				return nil, &ValidationError{Problems: []string{fmt.Sprintf("file %q does not exist", name)}}
			}
			return nil, err
		}

		stored = append(stored, domain.ChallengeFile{
			StorageID:    info.ID,
			OriginalName: filepath.Base(src),
			ContentType:  info.ContentType,
			Size:         info.Size,
			CreatedAt:    i.now(),
		})
	}

	return stored, nil
}

func (i *Importer) storeFile(ctx context.Context, challengeID, src string, move bool) (storage.FileInfo, error) {
	f, err := os.Open(src)
	if err != nil {
		return storage.FileInfo{}, err
	}
	defer f.Close()

	info, err := i.store.Save(ctx, f, storage.SaveOptions{
		Directory:    path.Join("challenges", challengeID),
		OriginalName: filepath.Base(src),
	})
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to store %s: %w", filepath.Base(src), err)
	}

	if move {
		f.Close()
		if err := os.Remove(src); err != nil {
			i.logger.Warn().Err(err).Str("path", src).Msg("Failed to remove moved file")
		}
	}
	return info, nil
}

func (i *Importer) discard(ctx context.Context, files []domain.ChallengeFile) {
	for _, f := range files {
		if err := i.store.Delete(ctx, f.StorageID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			i.logger.Warn().Err(err).Str("storage_id", f.StorageID).Msg("Failed to delete attachment")
		}
	}
}
