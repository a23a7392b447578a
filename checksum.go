package main

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DigestFile streams path through MD5 and returns the base64 form (comparable to a
// Content-MD5 header) and the hex form (comparable to a single-part ETag).
func DigestFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("error opening %s for checksumming: %w", path, err)
	}
	defer f.Close()

	return DigestReader(f)
}

func DigestReader(r io.Reader) (Digest, error) {
	hasher := md5.New()
	buf := make([]byte, CHECKSUM_CHUNK_SIZE)
	// wrapping r hides any WriterTo so the copy always goes through buf
	if _, err := io.CopyBuffer(hasher, struct{ io.Reader }{r}, buf); err != nil {
		return Digest{}, fmt.Errorf("error checksumming: %w", err)
	}
	sum := hasher.Sum(nil)
	return Digest{
		ContentMD5: base64.StdEncoding.EncodeToString(sum),
		ETag:       hex.EncodeToString(sum),
	}, nil
}

// S3 and BOS both hand back ETags wrapped in double quotes
func normalizeETag(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}

// converts a single-part hex ETag into the base64 Content-MD5 form; multipart ETags
// ("<hex>-<parts>") are not an MD5 of the content and yield ""
func contentMD5FromETag(etag string) string {
	raw, err := hex.DecodeString(normalizeETag(etag))
	if err != nil || len(raw) != md5.Size {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}
