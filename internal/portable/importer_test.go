package portable

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/domain"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/events"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
)

const warmup = `
name: "  Warmup  "
description: "  Say hi  "
value: 100
category: " misc "
flags:
  - flag: "  flag{hello}  "
  - flag: "^flag.*$"
    type: regex
tags: [easy, intro]
`

func TestImport_CreatesChallenge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	report, err := e.importer.Import(ctx, strings.NewReader(warmup), ImportOptions{Source: "test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Warmup"}, report.Created)
	assert.Equal(t, 1, report.Total())

	c, err := e.repo.GetByName(ctx, "Warmup")
	require.NoError(t, err)
	assert.Equal(t, "Say hi", c.Description)
	assert.Equal(t, "misc", c.Category)
	assert.Equal(t, 100, c.Value)
	assert.Equal(t, domain.TypeStandard, c.Type)
	assert.Equal(t, []string{"easy", "intro"}, c.Tags)
	assert.Equal(t, []domain.Flag{
		{Content: "flag{hello}", Type: "static"},
		{Content: "^flag.*$", Type: "regex"},
	}, c.Flags)

	require.Len(t, e.publisher.events, 1)
	assert.Equal(t, events.ChallengeCreated, e.publisher.events[0].Action)
	assert.Equal(t, c.ID, e.publisher.events[0].ChallengeID)
	assert.Equal(t, "test", e.publisher.events[0].Source)
}

func TestImport_UpdatesChallengeWithSameName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.importer.Import(ctx, strings.NewReader(warmup), ImportOptions{})
	require.NoError(t, err)
	before, err := e.repo.GetByName(ctx, "Warmup")
	require.NoError(t, err)

	report, err := e.importer.Import(ctx, strings.NewReader(`
name: Warmup
description: Say hello
value: 150
category: intro
flags: [{flag: "flag{new}"}]
`), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Warmup"}, report.Updated)

	after, err := e.repo.GetByName(ctx, "Warmup")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "Say hello", after.Description)
	assert.Equal(t, "intro", after.Category)
	assert.Equal(t, 150, after.Value)
	assert.Empty(t, after.Tags)
	assert.Equal(t, []domain.Flag{{Content: "flag{new}", Type: "static"}}, after.Flags)

	require.Len(t, e.publisher.events, 2)
	assert.Equal(t, events.ChallengeUpdated, e.publisher.events[1].Action)
}

func TestImport_DynamicUpdateKeepsValue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	dynamic := `
name: Scaling
description: d
value: 500
category: crypto
type: dynamic
minimum: 100
decay: 20
flags: [{flag: x}]
`
	_, err := e.importer.Import(ctx, strings.NewReader(dynamic), ImportOptions{})
	require.NoError(t, err)

	c, err := e.repo.GetByName(ctx, "Scaling")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeDynamic, c.Type)
	assert.Equal(t, 100, c.Minimum)
	assert.Equal(t, 20, c.Decay)

	_, err = e.importer.Import(ctx, strings.NewReader(strings.Replace(dynamic, "value: 500", "value: 900", 1)), ImportOptions{})
	require.NoError(t, err)

	c, err = e.repo.GetByName(ctx, "Scaling")
	require.NoError(t, err)
	assert.Equal(t, 500, c.Value)
}

func TestImport_MissingFieldRejects(t *testing.T) {
	e := newEnv(t)

	_, err := e.importer.Import(context.Background(), strings.NewReader(warmup+`
---
name: NoFlags
description: d
value: 1
category: c
`), ImportOptions{})

	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Contains(t, err.Error(), `challenge "NoFlags": missing field 'flags'`)

	// earlier documents stay imported
	_, err = e.repo.GetByName(context.Background(), "Warmup")
	assert.NoError(t, err)
}

func TestImport_SkipOnError(t *testing.T) {
	e := newEnv(t)

	report, err := e.importer.Import(context.Background(), strings.NewReader(`
name: NoFlags
description: d
value: 1
category: c
---
name: Missing file
description: d
value: 1
category: c
flags: [{flag: x}]
files: [nope.txt]
`+"---"+warmup), ImportOptions{SkipOnError: true, BaseDir: t.TempDir()})

	require.NoError(t, err)
	assert.Equal(t, []string{"NoFlags", "Missing file"}, report.Skipped)
	assert.Equal(t, []string{"Warmup"}, report.Created)
}

func TestImport_InvalidYAMLWritesNothing(t *testing.T) {
	e := newEnv(t)

	_, err := e.importer.Import(context.Background(), strings.NewReader(warmup+"---\nname: [broken\n"), ImportOptions{})
	require.ErrorIs(t, err, ErrInvalidManifest)
	assert.True(t, IsRejection(err))

	list, err := e.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, e.publisher.events)
}

func TestImportFile_StoresAndMovesAttachments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "files"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "files", "notes.txt"), []byte("read me"), 0644))
	manifest := filepath.Join(dir, "export.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(warmup+"files: [files/notes.txt]\n"), 0644))

	_, err := e.importer.ImportFile(ctx, manifest, ImportOptions{Move: true})
	require.NoError(t, err)

	c, err := e.repo.GetByName(ctx, "Warmup")
	require.NoError(t, err)
	require.Len(t, c.Files, 1)
	assert.Equal(t, "notes.txt", c.Files[0].OriginalName)
	assert.Equal(t, int64(7), c.Files[0].Size)
	assert.True(t, strings.HasPrefix(c.Files[0].StorageID, "challenges/"+c.ID+"/"))

	rc, _, err := e.store.Open(ctx, c.Files[0].StorageID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "read me", string(data))

	_, err = os.Stat(filepath.Join(dir, "files", "notes.txt"))
	assert.True(t, os.IsNotExist(err))

	// re-importing replaces the stored attachment
	require.NoError(t, os.WriteFile(filepath.Join(dir, "files", "notes.txt"), []byte("v2"), 0644))
	_, err = e.importer.ImportFile(ctx, manifest, ImportOptions{})
	require.NoError(t, err)

	_, _, err = e.store.Open(ctx, c.Files[0].StorageID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestImport_RejectsEscapingFilePaths(t *testing.T) {
	e := newEnv(t)

	_, err := e.importer.Import(context.Background(), strings.NewReader(warmup+"files: [../../etc/passwd]\n"),
		ImportOptions{BaseDir: t.TempDir()})

	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Contains(t, err.Error(), "outside the manifest directory")
}

func TestImport_BlankNameRejects(t *testing.T) {
	e := newEnv(t)

	_, err := e.importer.Import(context.Background(), strings.NewReader(`
name: "   "
description: d
value: 1
category: c
flags: [{flag: x}]
`), ImportOptions{})

	require.Error(t, err)
	assert.True(t, IsRejection(err))

	list, err := e.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestImport_PublishesEventsBeforeFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	report, err := e.importer.Import(ctx, strings.NewReader(warmup+`
---
name: Second
description: d
value: 1
category: c
flags: [{flag: x}]
files: [missing.bin]
`), ImportOptions{BaseDir: t.TempDir(), Source: "test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `file "missing.bin" does not exist`)
	assert.Equal(t, []string{"Warmup"}, report.Created)

	c, err := e.repo.GetByName(ctx, "Warmup")
	require.NoError(t, err)

	require.Len(t, e.publisher.events, 1)
	assert.Equal(t, events.ChallengeCreated, e.publisher.events[0].Action)
	assert.Equal(t, c.ID, e.publisher.events[0].ChallengeID)
}
