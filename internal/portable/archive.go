package portable

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Compression of an uploaded archive.
type Compression int

const (
	Gzip Compression = iota
	Plain
	Bzip2
)

// CompressionFor picks the compression from an archive's filename. Anything that is not
// a .tar or .bz2 file is read as gzip.
func CompressionFor(filename string) Compression {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".tar"):
		return Plain
	case strings.HasSuffix(name, ".bz2"):
		return Bzip2
	default:
		return Gzip
	}
}

// Extract unpacks the archive read from r into dst. Members that would land outside dst
// abort the extraction; the caller owns cleaning dst up. maxBytes bounds the total
// size of extracted regular files, 0 means no limit.
func Extract(r io.Reader, compression Compression, dst string, maxBytes int64) error {
	var src io.Reader
	switch compression {
	case Plain:
		src = r
	case Bzip2:
		src = bzip2.NewReader(r)
	default:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		defer zr.Close()
		src = zr
	}

	tr := tar.NewReader(src)
	var written int64

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}

		name, err := safeName(hdr.Name)
		if err != nil {
			return err
		}
		if hdr.Linkname != "" {
			if _, err := safeName(hdr.Linkname); err != nil {
				return err
			}
		}
		if name == "" {
			continue
		}
		target := filepath.Join(dst, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
		case tar.TypeReg:
			if maxBytes > 0 && written+hdr.Size > maxBytes {
				return ErrArchiveTooLarge
			}
			n, err := writeFile(target, tr)
			written += n
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", name, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", path.Dir(name), err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to link %s: %w", name, err)
			}
		case tar.TypeLink:
			linked, _ := safeName(hdr.Linkname)
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", path.Dir(name), err)
			}
			if err := os.Link(filepath.Join(dst, linked), target); err != nil {
				return fmt.Errorf("failed to link %s: %w", name, err)
			}
		}
	}

	return nil
}

// ExtractManifest unpacks an uploaded archive into a fresh directory below tmpDir and
// returns the directory and the manifest path. The directory is removed on error.
func ExtractManifest(r io.Reader, filename, tmpDir string, maxBytes int64) (dir, manifest string, err error) {
	tmp, err := os.MkdirTemp(tmpDir, "portable-import-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(tmp)
		}
	}()

	if err = Extract(r, CompressionFor(filename), tmp, maxBytes); err != nil {
		return "", "", err
	}

	manifest = filepath.Join(tmp, ManifestName)
	info, statErr := os.Lstat(manifest)
	if statErr != nil || !info.Mode().IsRegular() {
		return "", "", ErrMissingManifest
	}
	return tmp, manifest, nil
}

func safeName(name string) (string, error) {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	clean := path.Clean(name)
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

func writeFile(target string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, r)
}
