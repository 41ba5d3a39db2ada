package portable

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

func tarball(t *testing.T, compressed bool, members ...member) []byte {
	t.Helper()

	var (
		buf bytes.Buffer
		zw  *gzip.Writer
		out io.Writer = &buf
	)
	if compressed {
		zw = gzip.NewWriter(&buf)
		out = zw
	}
	tw := tar.NewWriter(out)

	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Mode: 0644, Typeflag: m.typeflag, Linkname: m.linkname}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(m.body))
		}
		if hdr.Typeflag == tar.TypeDir {
			hdr.Mode = 0755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(m.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	if zw != nil {
		require.NoError(t, zw.Close())
	}
	return buf.Bytes()
}

func TestCompressionFor(t *testing.T) {
	tests := []struct {
		name string
		want Compression
	}{
		{"export.tar", Plain},
		{"EXPORT.TAR", Plain},
		{"export.tar.bz2", Bzip2},
		{"export.bz2", Bzip2},
		{"export.tar.gz", Gzip},
		{"export.tgz", Gzip},
		{"export.zip", Gzip},
		{"", Gzip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompressionFor(tt.name))
		})
	}
}

func TestExtract(t *testing.T) {
	archive := tarball(t, true,
		member{name: "files/", typeflag: tar.TypeDir},
		member{name: "files/a.txt", body: "alpha"},
		member{name: "./challenges.yaml", body: "name: x\n"},
		member{name: "files/link", typeflag: tar.TypeSymlink, linkname: "a.txt"},
	)

	dst := t.TempDir()
	require.NoError(t, Extract(bytes.NewReader(archive), Gzip, dst, 0))

	data, err := os.ReadFile(filepath.Join(dst, "files", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	data, err = os.ReadFile(filepath.Join(dst, "challenges.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: x\n", string(data))

	target, err := os.Readlink(filepath.Join(dst, "files", "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)
}

func TestExtract_Plain(t *testing.T) {
	archive := tarball(t, false, member{name: "challenges.yaml", body: "---\n"})

	dst := t.TempDir()
	require.NoError(t, Extract(bytes.NewReader(archive), Plain, dst, 0))
	assert.FileExists(t, filepath.Join(dst, "challenges.yaml"))
}

func TestExtract_RejectsUnsafeMembers(t *testing.T) {
	tests := []struct {
		name   string
		member member
	}{
		{"absolute", member{name: "/etc/passwd", body: "x"}},
		{"parent", member{name: "../escape.txt", body: "x"}},
		{"nested parent", member{name: "files/../../escape.txt", body: "x"}},
		{"absolute link", member{name: "files/link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"}},
		{"parent link", member{name: "files/link", typeflag: tar.TypeSymlink, linkname: "../../secret"}},
		{"parent hardlink", member{name: "files/link", typeflag: tar.TypeLink, linkname: "../outside"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := tarball(t, true, tt.member)
			dst := t.TempDir()

			err := Extract(bytes.NewReader(archive), Gzip, dst, 0)
			assert.ErrorIs(t, err, ErrUnsafePath)

			_, statErr := os.Stat(filepath.Join(filepath.Dir(dst), "escape.txt"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestExtract_SizeLimit(t *testing.T) {
	archive := tarball(t, true,
		member{name: "a.txt", body: strings.Repeat("a", 60)},
		member{name: "b.txt", body: strings.Repeat("b", 60)},
	)

	err := Extract(bytes.NewReader(archive), Gzip, t.TempDir(), 100)
	assert.ErrorIs(t, err, ErrArchiveTooLarge)

	assert.NoError(t, Extract(bytes.NewReader(archive), Gzip, t.TempDir(), 120))
}

func TestExtract_InvalidData(t *testing.T) {
	garbage := []byte("this is not an archive at all, just some text")

	for _, c := range []Compression{Gzip, Bzip2} {
		err := Extract(bytes.NewReader(garbage), c, t.TempDir(), 0)
		assert.ErrorIs(t, err, ErrInvalidArchive)
	}

	// a gzip archive read as bzip2
	err := Extract(bytes.NewReader(tarball(t, true, member{name: "a", body: "a"})), Bzip2, t.TempDir(), 0)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestExtractManifest(t *testing.T) {
	tmp := t.TempDir()
	archive := tarball(t, true,
		member{name: "challenges.yaml", body: "name: x\n"},
		member{name: "files/a.txt", body: "alpha"},
	)

	dir, manifest, err := ExtractManifest(bytes.NewReader(archive), "export.tar.gz", tmp, 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestName), manifest)
	assert.Equal(t, tmp, filepath.Dir(dir))
	assert.FileExists(t, filepath.Join(dir, "files", "a.txt"))
}

func TestExtractManifest_Failures(t *testing.T) {
	tests := []struct {
		name     string
		archive  func(t *testing.T) []byte
		filename string
		maxBytes int64
		want     error
	}{
		{
			name: "missing manifest",
			archive: func(t *testing.T) []byte {
				return tarball(t, true, member{name: "export.yaml", body: "name: x\n"})
			},
			filename: "export.tar.gz",
			want:     ErrMissingManifest,
		},
		{
			name: "manifest is a directory",
			archive: func(t *testing.T) []byte {
				return tarball(t, false, member{name: "challenges.yaml/", typeflag: tar.TypeDir})
			},
			filename: "export.tar",
			want:     ErrMissingManifest,
		},
		{
			name: "wrong compression for name",
			archive: func(t *testing.T) []byte {
				return tarball(t, false, member{name: "challenges.yaml", body: "name: x\n"})
			},
			filename: "export.tar.gz",
			want:     ErrInvalidArchive,
		},
		{
			name: "unsafe member",
			archive: func(t *testing.T) []byte {
				return tarball(t, true, member{name: "../challenges.yaml", body: "name: x\n"})
			},
			filename: "export.tgz",
			want:     ErrUnsafePath,
		},
		{
			name: "over size limit",
			archive: func(t *testing.T) []byte {
				return tarball(t, true,
					member{name: "files/a.txt", body: strings.Repeat("a", 64)},
					member{name: "challenges.yaml", body: "name: x\n"},
				)
			},
			filename: "export.tar.gz",
			maxBytes: 70,
			want:     ErrArchiveTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()

			_, _, err := ExtractManifest(bytes.NewReader(tt.archive(t)), tt.filename, tmp, tt.maxBytes)
			assert.ErrorIs(t, err, tt.want)

			entries, readErr := os.ReadDir(tmp)
			require.NoError(t, readErr)
			assert.Empty(t, entries)
		})
	}
}
