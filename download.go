package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	MAX_VERIFY_ATTEMPTS = 2
	PARTIAL_SUFFIX      = ".objspiegel-partial"
)

type Downloader struct {
	source  SourceStore
	bucket  string
	staging *StagingManager
	ledger  *FailureLedger
	runner  operationRunner
	sugar   *zap.SugaredLogger
}

// TransferUnitToStaging brings one object into staging and verifies it. The first attempt
// checks the content digest only; the re-fetch after a mismatch must match both the content
// digest and the ETag or the unit is recorded as a terminal mismatch.
func (d *Downloader) TransferUnitToStaging(ctx context.Context, unit TransferUnit, batch PrefixBatch) UnitState {
	if d.staging.Exists(unit.Key) {
		d.sugar.Debugf("%s already staged at %s, not downloading", unit.Key, unit.LocalPath)
		return UNIT_ALREADY_PRESENT
	}

	var meta ObjectMetadata
	err := d.runner.run(ctx, fmt.Sprintf("metadata %s", unit.Key), func(ctx context.Context) error {
		var err error
		meta, err = d.source.GetObjectMetadata(ctx, d.bucket, unit.Key)
		return err
	})
	if err != nil {
		d.sugar.Errorf("error getting metadata for %s: %v", unit.Key, err)
		return UNIT_FAILED
	}
	if meta.Tier == TIER_ARCHIVE {
		d.sugar.Errorw("skipping archived object, restore it before migrating", "key", unit.Key, "error", errArchivedObject)
		return UNIT_SKIPPED_ARCHIVED
	}

	if err := os.MkdirAll(filepath.Dir(unit.LocalPath), os.FileMode(0755)); err != nil {
		d.sugar.Errorf("error creating directory for %s: %v", unit.LocalPath, err)
		return UNIT_FAILED
	}

	for attempt := 1; attempt <= MAX_VERIFY_ATTEMPTS; attempt++ {
		d.sugar.Debugf("starting download attempt %d for %s", attempt, unit.Key)
		remote, err := d.fetch(ctx, unit)
		if err != nil {
			d.sugar.Errorf("error downloading %s: %v", unit.Key, err)
			return UNIT_FAILED
		}
		local, err := DigestFile(unit.LocalPath)
		if err != nil {
			d.sugar.Errorf("error checksumming %s: %v", unit.LocalPath, err)
			d.removeLocal(unit.LocalPath)
			return UNIT_FAILED
		}
		metricBytesDownloaded.Add(float64(unit.Size))

		result := verifyDownload(attempt, remote, local)
		switch result.Outcome {
		case INTEGRITY_MATCH:
			if result.Expected == "" {
				d.sugar.Warnf("source returned no usable digest for %s, accepting it unverified", unit.Key)
			} else if attempt == 1 {
				d.sugar.Infof("downloaded and verified %s, content_md5 %s", unit.Key, result.Expected)
			} else {
				d.sugar.Warnf("re-downloaded %s and verified it against content_md5 %s and etag %s", unit.Key, remote.ContentMD5, remote.ETag)
			}
			return UNIT_VERIFIED
		case INTEGRITY_MISMATCH:
			d.sugar.Warnf("downloaded %s is corrupt: expected content_md5 %s, got %s; deleting and downloading again", unit.Key, result.Expected, result.Computed)
			d.removeLocal(unit.LocalPath)
		case INTEGRITY_TERMINAL_MISMATCH:
			d.sugar.Errorf("re-downloaded %s is still corrupt: expected %s, got %s", unit.Key, result.Expected, result.Computed)
			d.removeLocal(unit.LocalPath)
			d.recordFailure(unit.Key, batch)
			return UNIT_TERMINAL_MISMATCH
		}
	}

	return UNIT_FAILED
}

// fetch writes into a partial file and only moves it into place once the transfer
// completed, so an interrupted run never leaves something that looks already staged
func (d *Downloader) fetch(ctx context.Context, unit TransferUnit) (ObjectMetadata, error) {
	partial := unit.LocalPath + PARTIAL_SUFFIX
	var remote ObjectMetadata
	err := d.runner.run(ctx, fmt.Sprintf("download %s", unit.Key), func(ctx context.Context) error {
		var err error
		remote, err = d.source.GetObjectToFile(ctx, d.bucket, unit.Key, partial)
		return err
	})
	if err != nil {
		d.removeLocal(partial)
		return remote, err
	}
	if err := os.Rename(partial, unit.LocalPath); err != nil {
		d.removeLocal(partial)
		return remote, fmt.Errorf("error moving %s into place: %w", partial, err)
	}
	if remote.ContentMD5 == "" {
		remote.ContentMD5 = contentMD5FromETag(remote.ETag)
	}
	return remote, nil
}

func (d *Downloader) removeLocal(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.sugar.Errorf("error deleting %s: %v", path, err)
	}
}

// recordFailure writes the key and every batch prefix it lives under to the download ledgers
func (d *Downloader) recordFailure(key string, batch PrefixBatch) {
	recordToLedger(d.ledger, d.sugar, key, LEDGER_DOWNLOAD_PATHS)
	for _, prefix := range batch.Prefixes {
		if strings.HasPrefix(key, prefix) {
			recordToLedger(d.ledger, d.sugar, prefix, LEDGER_DOWNLOAD_PREFIXES)
		}
	}
}

func verifyDownload(attempt int, remote ObjectMetadata, local Digest) IntegrityResult {
	if attempt == 1 {
		result := IntegrityResult{Expected: remote.ContentMD5, Computed: local.ContentMD5}
		if remote.ContentMD5 == "" || remote.ContentMD5 == local.ContentMD5 {
			result.Outcome = INTEGRITY_MATCH
		} else {
			result.Outcome = INTEGRITY_MISMATCH
		}
		return result
	}

	result := IntegrityResult{
		Expected: remote.ContentMD5 + " " + normalizeETag(remote.ETag),
		Computed: local.ContentMD5 + " " + local.ETag,
	}
	if remote.ContentMD5 == local.ContentMD5 && strings.EqualFold(normalizeETag(remote.ETag), local.ETag) {
		result.Outcome = INTEGRITY_MATCH
	} else {
		result.Outcome = INTEGRITY_TERMINAL_MISMATCH
	}
	return result
}

func recordToLedger(ledger *FailureLedger, sugar *zap.SugaredLogger, value string, ledgerName string) {
	added, err := ledger.Record(value, ledgerName)
	if err != nil {
		sugar.Errorf("error recording %s in ledger %s: %v", value, ledgerName, err)
		return
	}
	if added {
		metricLedgerRecords.WithLabelValues(ledgerName).Inc()
		sugar.Warnf("recorded %s in ledger %s", value, ledgerName)
	}
}
