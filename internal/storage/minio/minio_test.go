package minio

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

func newTestStorage(t *testing.T) *ObjectStorage {
	t.Helper()

	endpoint := os.Getenv("PORTABLE_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("PORTABLE_TEST_MINIO_ENDPOINT not set")
	}

	s, err := NewObjectStorage(context.Background(), Config{
		Endpoint:      endpoint,
		AccessKey:     os.Getenv("PORTABLE_TEST_MINIO_ACCESS_KEY"),
		SecretKey:     os.Getenv("PORTABLE_TEST_MINIO_SECRET_KEY"),
		Bucket:        "portable-test",
		PublicBaseURL: "http://ctf.local",
	})
	require.NoError(t, err)
	return s
}

func TestObjectStorage_SaveOpenDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	info, err := s.Save(ctx, bytes.NewReader([]byte("flag{object}")), storage.SaveOptions{
		Directory:    "challenges/abc",
		OriginalName: "notes.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", info.ContentType)
	assert.Equal(t, "http://ctf.local/files/"+info.ID, info.URL)

	rc, opened, err := s.Open(ctx, info.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "flag{object}", string(data))
	assert.Equal(t, int64(12), opened.Size)

	require.NoError(t, s.Delete(ctx, info.ID))

	_, _, err = s.Open(ctx, info.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
