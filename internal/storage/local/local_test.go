package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
)

func TestLocalStorage_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir(), "http://ctf.local/")
	require.NoError(t, err)

	info, err := s.Save(ctx, bytes.NewReader([]byte("flag{local}")), storage.SaveOptions{
		Directory:    "challenges/abc",
		OriginalName: "notes.TXT",
	})
	require.NoError(t, err)

	assert.Contains(t, info.ID, "challenges/abc/")
	assert.Contains(t, info.ID, ".txt")
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, "text/plain; charset=utf-8", info.ContentType)
	assert.Equal(t, "http://ctf.local/files/"+info.ID, info.URL)

	rc, opened, err := s.Open(ctx, info.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()

	assert.Equal(t, "flag{local}", string(data))
	assert.Equal(t, info.Size, opened.Size)

	require.NoError(t, s.Delete(ctx, info.ID))
	_, err = os.Stat(info.Path)
	assert.True(t, os.IsNotExist(err))

	_, _, err = s.Open(ctx, info.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, info.ID), storage.ErrNotFound)
}

func TestLocalStorage_KeepsGivenContentType(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	info, err := s.Save(context.Background(), bytes.NewReader([]byte("x")), storage.SaveOptions{
		ContentType:  "application/x-custom",
		OriginalName: "bin",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/x-custom", info.ContentType)
}

func TestLocalStorage_RejectsEscapingIDs(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	_, _, err = s.Open(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)

	assert.Error(t, s.Delete(context.Background(), "/etc/passwd"))
}
