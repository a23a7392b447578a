package main

import (
	"context"
	"io"
)

type StorageTier int

const (
	TIER_STANDARD StorageTier = iota
	TIER_INFREQUENT
	TIER_COLD
	TIER_ARCHIVE
)

func (t StorageTier) String() string {
	switch t {
	case TIER_INFREQUENT:
		return "infrequent"
	case TIER_COLD:
		return "cold"
	case TIER_ARCHIVE:
		return "archive"
	default:
		return "standard"
	}
}

// a data object found under one of the batch prefixes
type TransferUnit struct {
	Key       string
	Size      int64
	Tier      StorageTier
	LocalPath string
}

type PrefixBatch struct {
	Prefixes []string
}

// objects found under a batch's prefixes, split the same way the source lays them out
type BatchListing struct {
	DirectoryMarkers []string
	Units            []TransferUnit
}

func (b BatchListing) TotalSize() int64 {
	var total int64
	for _, u := range b.Units {
		total += u.Size
	}
	return total
}

type Bundle struct {
	Path       string
	PrefixDir  string
	EntryCount int
	ETag       string
	H1Checksum string
}

type Digest struct {
	ContentMD5 string
	ETag       string
}

type IntegrityOutcome int

const (
	INTEGRITY_MATCH IntegrityOutcome = iota
	INTEGRITY_MISMATCH
	INTEGRITY_TERMINAL_MISMATCH
)

type IntegrityResult struct {
	Expected string
	Computed string
	Outcome  IntegrityOutcome
}

type UnitState int

const (
	UNIT_NOT_STAGED UnitState = iota
	UNIT_ALREADY_PRESENT
	UNIT_VERIFIED
	UNIT_SKIPPED_ARCHIVED
	UNIT_TERMINAL_MISMATCH
	UNIT_FAILED
)

func (s UnitState) String() string {
	switch s {
	case UNIT_ALREADY_PRESENT:
		return "already-present"
	case UNIT_VERIFIED:
		return "verified"
	case UNIT_SKIPPED_ARCHIVED:
		return "skipped-archived"
	case UNIT_TERMINAL_MISMATCH:
		return "terminal-mismatch"
	case UNIT_FAILED:
		return "failed"
	default:
		return "not-staged"
	}
}

type UploadState int

const (
	UPLOAD_VERIFIED UploadState = iota
	UPLOAD_RECOVERED
	UPLOAD_TERMINAL_MISMATCH
	UPLOAD_FAILED
)

func (s UploadState) String() string {
	switch s {
	case UPLOAD_VERIFIED:
		return "verified"
	case UPLOAD_RECOVERED:
		return "recovered"
	case UPLOAD_TERMINAL_MISMATCH:
		return "terminal-mismatch"
	default:
		return "failed"
	}
}

type ListEntry struct {
	Key  string
	Size int64
}

type ListPage struct {
	Entries     []ListEntry
	IsTruncated bool
	NextMarker  string
}

type ObjectMetadata struct {
	Tier       StorageTier
	ContentMD5 string
	ETag       string
}

type SourceStore interface {
	ListObjects(ctx context.Context, bucket string, prefix string, maxKeys int, marker string) (ListPage, error)
	GetObjectMetadata(ctx context.Context, bucket string, key string) (ObjectMetadata, error)
	GetObjectToFile(ctx context.Context, bucket string, key string, localPath string) (ObjectMetadata, error)
}

type DestinationStore interface {
	PutObject(ctx context.Context, bucket string, key string, body io.ReadSeeker, size int64, storageClass StorageTier, metadata map[string]string) (string, error)
	HeadObject(ctx context.Context, bucket string, key string) (string, error)
}

type PrefixSource interface {
	Prefixes() ([]string, error)
}
