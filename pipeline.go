package main

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const BYTES_PER_GB = 1024 * 1024 * 1024

type Pipeline struct {
	prefixes            PrefixSource
	lister              *PrefixLister
	staging             *StagingManager
	downloader          *Downloader
	bundler             *Bundler
	uploader            *Uploader
	batchSize           int
	maxBatchBytes       int64
	downloadConcurrency int
	uploadConcurrency   int
	sugar               *zap.SugaredLogger
}

// RunSummary counts what happened across all batches of a run
type RunSummary struct {
	mu             sync.Mutex
	Batches        int
	BatchesFailed  int
	BatchesSkipped int
	EmptyBundles   int
	Units          map[UnitState]int
	Uploads        map[UploadState]int
}

func newRunSummary() *RunSummary {
	return &RunSummary{Units: make(map[UnitState]int), Uploads: make(map[UploadState]int)}
}

func (r *RunSummary) addUnit(state UnitState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Units[state] += 1
	metricDownloads.WithLabelValues(state.String()).Inc()
}

func (r *RunSummary) addUpload(state UploadState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Uploads[state] += 1
	metricUploads.WithLabelValues(state.String()).Inc()
}

// makeBatches groups prefixes in order, at most size per batch
func makeBatches(prefixes []string, size int) []PrefixBatch {
	if size < 1 {
		size = 1
	}
	var batches []PrefixBatch
	for start := 0; start < len(prefixes); start += size {
		end := min(start+size, len(prefixes))
		batches = append(batches, PrefixBatch{Prefixes: append([]string{}, prefixes[start:end]...)})
	}
	return batches
}

// Run processes every batch from the prefix source to completion, one after another
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	summary := newRunSummary()
	prefixes, err := p.prefixes.Prefixes()
	if err != nil {
		return summary, err
	}
	batches := makeBatches(prefixes, p.batchSize)
	p.sugar.Infof("migrating %d prefixes in %d batches", len(prefixes), len(batches))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			p.sugar.Warnf("stopping before batch %d of %d: %v", i+1, len(batches), err)
			p.logSummary(summary)
			return summary, err
		}
		p.sugar.Infof("starting batch %d of %d: %v", i+1, len(batches), batch.Prefixes)
		p.RunBatch(ctx, batch, summary)
	}

	p.logSummary(summary)
	return summary, nil
}

// RunBatch lists, downloads, bundles and uploads one batch. Failures are logged and
// recorded in the summary rather than returned.
func (p *Pipeline) RunBatch(ctx context.Context, batch PrefixBatch, summary *RunSummary) {
	started := time.Now()
	defer func() {
		metricBatchDuration.Observe(time.Since(started).Seconds())
	}()
	summary.Batches += 1

	listing, err := p.lister.ListBatch(ctx, batch)
	if err != nil {
		summary.BatchesFailed += 1
		metricBatches.WithLabelValues("listing-failed").Inc()
		return
	}
	metricObjectsListed.Add(float64(len(listing.Units)))

	total := listing.TotalSize()
	p.sugar.Infof("batch %v holds %d objects and %d directory markers, %.5f GB", batch.Prefixes, len(listing.Units), len(listing.DirectoryMarkers), float64(total)/BYTES_PER_GB)
	if p.maxBatchBytes > 0 && total > p.maxBatchBytes {
		p.sugar.Warnf("batch %v is %.5f GB, over the %.5f GB limit; skipping it", batch.Prefixes, float64(total)/BYTES_PER_GB, float64(p.maxBatchBytes)/BYTES_PER_GB)
		summary.BatchesSkipped += 1
		metricBatches.WithLabelValues("skipped-oversize").Inc()
		return
	}

	p.staging.EnsureDirectories(batch.Prefixes, listing.DirectoryMarkers)

	var downloads errgroup.Group
	downloads.SetLimit(max(p.downloadConcurrency, 1))
	for _, unit := range listing.Units {
		downloads.Go(func() error {
			summary.addUnit(p.downloader.TransferUnitToStaging(ctx, unit, batch))
			return nil
		})
	}
	downloads.Wait()

	var bundles []Bundle
	bundled := make(map[string]bool)
	for _, prefix := range batch.Prefixes {
		if bundled[prefix] {
			continue
		}
		bundled[prefix] = true
		p.staging.RemoveStaleBundles(prefix)
		bundle, err := p.bundler.BundlePrefix(prefix)
		if err != nil {
			p.sugar.Errorf("error bundling prefix %s: %v", prefix, err)
			continue
		}
		if bundle == nil {
			summary.EmptyBundles += 1
			continue
		}
		bundles = append(bundles, *bundle)
	}

	var uploads errgroup.Group
	uploads.SetLimit(max(p.uploadConcurrency, 1))
	if nestedBundles(bundles) {
		// cleaning up an outer prefix removes the inner one, so the inner bundle goes first
		p.sugar.Infof("batch %v has nested prefixes; uploading deepest first, one at a time", batch.Prefixes)
		sort.SliceStable(bundles, func(i, j int) bool {
			return len(bundles[i].PrefixDir) > len(bundles[j].PrefixDir)
		})
		uploads.SetLimit(1)
	}
	for _, bundle := range bundles {
		uploads.Go(func() error {
			summary.addUpload(p.uploader.Upload(ctx, bundle))
			return nil
		})
	}
	uploads.Wait()

	metricBatches.WithLabelValues("completed").Inc()
	p.sugar.Infof("finished batch %v in %s", batch.Prefixes, time.Since(started).Round(time.Millisecond))
}

// nestedBundles reports whether any bundle's prefix directory lies inside another's
func nestedBundles(bundles []Bundle) bool {
	for i := range bundles {
		for j := range bundles {
			if i == j {
				continue
			}
			rel, err := filepath.Rel(bundles[i].PrefixDir, bundles[j].PrefixDir)
			if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}

func (p *Pipeline) logSummary(summary *RunSummary) {
	p.sugar.Infow("run finished",
		"batches", summary.Batches,
		"batches_failed", summary.BatchesFailed,
		"batches_skipped", summary.BatchesSkipped,
		"empty_bundles", summary.EmptyBundles,
		"units_verified", summary.Units[UNIT_VERIFIED],
		"units_already_present", summary.Units[UNIT_ALREADY_PRESENT],
		"units_skipped_archived", summary.Units[UNIT_SKIPPED_ARCHIVED],
		"units_terminal_mismatch", summary.Units[UNIT_TERMINAL_MISMATCH],
		"units_failed", summary.Units[UNIT_FAILED],
		"uploads_verified", summary.Uploads[UPLOAD_VERIFIED],
		"uploads_recovered", summary.Uploads[UPLOAD_RECOVERED],
		"uploads_terminal_mismatch", summary.Uploads[UPLOAD_TERMINAL_MISMATCH],
		"uploads_failed", summary.Uploads[UPLOAD_FAILED],
	)
}
