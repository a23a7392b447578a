package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"golang.org/x/mod/sumdb/dirhash"
)

type Bundler struct {
	staging *StagingManager
	sugar   *zap.SugaredLogger
}

// BundlePrefix archives every staged file under prefix into __<dirname>.zip inside the
// prefix directory. It returns nil without error when there was nothing to archive.
func (b *Bundler) BundlePrefix(prefix string) (*Bundle, error) {
	prefixDir := b.staging.LocalPathFor(prefix)
	bundlePath := filepath.Join(prefixDir, bundleNameFor(prefixDir))

	entryCount, err := writeBundle(prefixDir, bundlePath)
	if err != nil {
		os.Remove(bundlePath)
		return nil, fmt.Errorf("error bundling %s: %w", prefixDir, err)
	}
	if entryCount == 0 {
		b.sugar.Errorf("nothing staged under %s, not creating a bundle", prefixDir)
		if err := os.Remove(bundlePath); err != nil {
			b.sugar.Errorf("error deleting empty bundle %s: %v", bundlePath, err)
		}
		return nil, nil
	}

	digest, err := DigestFile(bundlePath)
	if err != nil {
		return nil, err
	}
	h1, err := dirhash.HashZip(bundlePath, dirhash.Hash1)
	if err != nil {
		b.sugar.Warnf("error computing member hash for %s: %v", bundlePath, err)
	}

	b.sugar.Infow("created bundle", "path", bundlePath, "entries", entryCount, "etag", digest.ETag, "h1", h1)
	return &Bundle{
		Path:       bundlePath,
		PrefixDir:  prefixDir,
		EntryCount: entryCount,
		ETag:       digest.ETag,
		H1Checksum: h1,
	}, nil
}

func writeBundle(prefixDir string, bundlePath string) (int, error) {
	out, err := os.Create(bundlePath)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entryCount := 0
	err = filepath.WalkDir(prefixDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.HasSuffix(d.Name(), PARTIAL_SUFFIX) {
			return nil
		}
		// bundles (this one included) sit at the prefix root and never go into an archive.
		// A nested prefix of the same batch leaves its own bundle further down.
		if filepath.Dir(path) == prefixDir && isBundleName(d.Name()) {
			return nil
		}
		if d.Name() == bundleNameFor(filepath.Dir(path)) {
			return nil
		}
		rel, err := filepath.Rel(prefixDir, path)
		if err != nil {
			return err
		}
		if err := addBundleEntry(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		entryCount += 1
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return entryCount, out.Close()
}

func addBundleEntry(zw *zip.Writer, path string, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("error adding %s to bundle: %w", path, err)
	}
	return nil
}
