package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

type Uploader struct {
	destination  DestinationStore
	bucket       string
	keyPrefix    string
	storageClass StorageTier
	staging      *StagingManager
	ledger       *FailureLedger
	runner       operationRunner
	sugar        *zap.SugaredLogger
}

// DestinationKeyFor places a bundle at its staging-relative path under the configured prefix
func (u *Uploader) DestinationKeyFor(bundlePath string) (string, error) {
	key, err := u.staging.KeyFor(bundlePath)
	if err != nil {
		return "", err
	}
	if u.keyPrefix == "" {
		return key, nil
	}
	return strings.TrimSuffix(u.keyPrefix, "/") + "/" + key, nil
}

// Upload puts the bundle and compares the returned ETag with the local one. A mismatch is
// retried once with a freshly computed local ETag; a second mismatch is recorded and the
// staged files are kept.
func (u *Uploader) Upload(ctx context.Context, bundle Bundle) UploadState {
	destKey, err := u.DestinationKeyFor(bundle.Path)
	if err != nil {
		u.sugar.Errorf("error computing destination key for %s: %v", bundle.Path, err)
		return UPLOAD_FAILED
	}
	metadata := map[string]string{}
	if bundle.H1Checksum != "" {
		metadata[BUNDLE_H1_METADATA_KEY] = bundle.H1Checksum
	}

	localETag := bundle.ETag
	for attempt := 1; attempt <= MAX_VERIFY_ATTEMPTS; attempt++ {
		if attempt > 1 {
			digest, err := DigestFile(bundle.Path)
			if err != nil {
				u.sugar.Errorf("error checksumming %s before re-upload: %v", bundle.Path, err)
				return UPLOAD_FAILED
			}
			localETag = digest.ETag
		}

		remoteETag, err := u.put(ctx, bundle.Path, destKey, metadata)
		if err != nil {
			u.sugar.Errorf("error uploading %s to s3://%s/%s: %v", bundle.Path, u.bucket, destKey, err)
			return UPLOAD_FAILED
		}

		if strings.EqualFold(remoteETag, localETag) {
			if attempt == 1 {
				u.sugar.Infof("uploaded %s to s3://%s/%s, etag %s", bundle.Path, u.bucket, destKey, remoteETag)
				u.staging.Cleanup(bundle.PrefixDir)
				return UPLOAD_VERIFIED
			}
			u.sugar.Warnf("re-uploaded %s to s3://%s/%s and verified etag %s", bundle.Path, u.bucket, destKey, remoteETag)
			u.staging.Cleanup(bundle.PrefixDir)
			return UPLOAD_RECOVERED
		}

		if attempt == 1 {
			u.sugar.Warnf("upload of %s returned etag %s, expected %s; uploading again", bundle.Path, remoteETag, localETag)
			continue
		}
		u.sugar.Errorf("re-upload of %s returned etag %s, expected %s; keeping staged files", bundle.Path, remoteETag, localETag)
		u.recordFailure(bundle)
		return UPLOAD_TERMINAL_MISMATCH
	}

	return UPLOAD_FAILED
}

func (u *Uploader) put(ctx context.Context, localPath string, destKey string, metadata map[string]string) (string, error) {
	var etag string
	err := u.runner.run(ctx, fmt.Sprintf("upload %s", destKey), func(ctx context.Context) error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		etag, err = u.destination.PutObject(ctx, u.bucket, destKey, f, info.Size(), u.storageClass, metadata)
		if err != nil {
			return err
		}
		metricBytesUploaded.Add(float64(info.Size()))
		return nil
	})
	return normalizeETag(etag), err
}

// recordFailure writes the bundle key and its directory key to the upload ledgers
func (u *Uploader) recordFailure(bundle Bundle) {
	bundleKey, err := u.staging.KeyFor(bundle.Path)
	if err != nil {
		u.sugar.Errorf("error computing ledger entry for %s: %v", bundle.Path, err)
		return
	}
	recordToLedger(u.ledger, u.sugar, bundleKey, LEDGER_UPLOAD_PATHS)

	dirKey, err := u.staging.KeyFor(bundle.PrefixDir)
	if err != nil {
		u.sugar.Errorf("error computing ledger entry for %s: %v", bundle.PrefixDir, err)
		return
	}
	recordToLedger(u.ledger, u.sugar, dirKey+"/", LEDGER_UPLOAD_PREFIXES)
}
