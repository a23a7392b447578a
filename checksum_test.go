package main

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestDigestFile(t *testing.T) {
	tests := []struct {
		name           string
		contents       []byte
		wantContentMD5 string
		wantETag       string
	}{
		{
			name:           "empty file",
			contents:       []byte{},
			wantContentMD5: "1B2M2Y8AsgTpgAmY7PhCfg==",
			wantETag:       "d41d8cd98f00b204e9800998ecf8427e",
		},
		{
			name:           "short file",
			contents:       []byte("hello world"),
			wantContentMD5: "XrY7u+Ae7tCTyyK7j1rNww==",
			wantETag:       "5eb63bbbe01eeed093cb22bb8f5acdc3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "file")
			writeTestFile(t, path, tt.contents)

			got, err := DigestFile(path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ContentMD5 != tt.wantContentMD5 {
				t.Errorf("ContentMD5 = %q, want %q", got.ContentMD5, tt.wantContentMD5)
			}
			if got.ETag != tt.wantETag {
				t.Errorf("ETag = %q, want %q", got.ETag, tt.wantETag)
			}
		})
	}
}

func TestDigestFile_SpansManyChunks(t *testing.T) {
	contents := bytes.Repeat([]byte("0123456789abcdef"), CHECKSUM_CHUNK_SIZE)
	path := filepath.Join(t.TempDir(), "big")
	writeTestFile(t, path, contents)

	first, err := DigestFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := DigestFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("digest changed between runs: %v then %v", first, second)
	}

	sum := md5.Sum(contents)
	if first.ETag != hex.EncodeToString(sum[:]) {
		t.Errorf("ETag = %q, want %q", first.ETag, hex.EncodeToString(sum[:]))
	}
}

func TestDigestFile_Missing(t *testing.T) {
	_, err := DigestFile(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestNormalizeETag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"abc"`, "abc"},
		{"abc", "abc"},
		{`"`, `"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeETag(tt.in); got != tt.want {
			t.Errorf("normalizeETag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentMD5FromETag(t *testing.T) {
	tests := []struct {
		name string
		etag string
		want string
	}{
		{"quoted single part", `"5eb63bbbe01eeed093cb22bb8f5acdc3"`, "XrY7u+Ae7tCTyyK7j1rNww=="},
		{"bare single part", "5eb63bbbe01eeed093cb22bb8f5acdc3", "XrY7u+Ae7tCTyyK7j1rNww=="},
		{"multipart", `"5eb63bbbe01eeed093cb22bb8f5acdc3-4"`, ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contentMD5FromETag(tt.etag); got != tt.want {
				t.Errorf("contentMD5FromETag(%q) = %q, want %q", tt.etag, got, tt.want)
			}
		})
	}
}
