package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Reconciler checks bundles left in staging by an earlier run against what the destination
// holds. Bundles the destination has with a matching ETag are cleaned up; the rest are recorded.
type Reconciler struct {
	prefixes PrefixSource
	uploader *Uploader
	ledger   *FailureLedger
	sugar    *zap.SugaredLogger
}

type ReconcileSummary struct {
	Verified   int
	Mismatched int
	Missing    int
	Failed     int
}

func (r *Reconciler) Run(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	prefixes, err := r.prefixes.Prefixes()
	if err != nil {
		return summary, err
	}
	for _, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		for _, bundlePath := range r.uploader.staging.FindBundles(prefix) {
			r.reconcileBundle(ctx, bundlePath, &summary)
		}
	}
	r.sugar.Infow("reconcile finished",
		"verified", summary.Verified,
		"mismatched", summary.Mismatched,
		"missing", summary.Missing,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (r *Reconciler) reconcileBundle(ctx context.Context, bundlePath string, summary *ReconcileSummary) {
	u := r.uploader
	destKey, err := u.DestinationKeyFor(bundlePath)
	if err != nil {
		r.sugar.Errorf("error computing destination key for %s: %v", bundlePath, err)
		summary.Failed += 1
		return
	}
	local, err := DigestFile(bundlePath)
	if err != nil {
		r.sugar.Errorf("error checksumming %s: %v", bundlePath, err)
		summary.Failed += 1
		return
	}

	var remoteETag string
	err = u.runner.run(ctx, fmt.Sprintf("head %s", destKey), func(ctx context.Context) error {
		var err error
		remoteETag, err = u.destination.HeadObject(ctx, u.bucket, destKey)
		return err
	})
	switch {
	case err != nil && isNotFoundError(err):
		r.sugar.Warnf("%s is not present at s3://%s/%s", bundlePath, u.bucket, destKey)
		summary.Missing += 1
		r.recordFailure(bundlePath)
		return
	case err != nil:
		r.sugar.Errorf("error checking s3://%s/%s: %v", u.bucket, destKey, err)
		summary.Failed += 1
		return
	}

	if !strings.EqualFold(normalizeETag(remoteETag), local.ETag) {
		r.sugar.Warnf("s3://%s/%s has etag %s but %s has %s", u.bucket, destKey, remoteETag, bundlePath, local.ETag)
		summary.Mismatched += 1
		r.recordFailure(bundlePath)
		return
	}

	r.sugar.Infof("s3://%s/%s matches %s, cleaning up", u.bucket, destKey, bundlePath)
	summary.Verified += 1
	u.staging.Cleanup(filepath.Dir(bundlePath))
}

func (r *Reconciler) recordFailure(bundlePath string) {
	bundleKey, err := r.uploader.staging.KeyFor(bundlePath)
	if err != nil {
		r.sugar.Errorf("error computing ledger entry for %s: %v", bundlePath, err)
		return
	}
	recordToLedger(r.ledger, r.sugar, bundleKey, LEDGER_RECONCILE_PATHS)
	dirKey, err := r.uploader.staging.KeyFor(filepath.Dir(bundlePath))
	if err != nil {
		r.sugar.Errorf("error computing ledger entry for %s: %v", filepath.Dir(bundlePath), err)
		return
	}
	recordToLedger(r.ledger, r.sugar, dirKey+"/", LEDGER_RECONCILE_PREFIXES)
}
