package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type PrefixLister struct {
	source   SourceStore
	bucket   string
	pageSize int
	staging  *StagingManager
	runner   operationRunner
	sugar    *zap.SugaredLogger
}

// ListBatch enumerates every object under every prefix of the batch. Any listing error
// abandons the whole batch; the operator re-runs it. Keys seen under more than one
// prefix of the batch are listed once.
func (p *PrefixLister) ListBatch(ctx context.Context, batch PrefixBatch) (BatchListing, error) {
	var listing BatchListing
	seen := make(map[string]bool)
	for _, prefix := range batch.Prefixes {
		if err := p.listPrefix(ctx, prefix, &listing, seen); err != nil {
			p.sugar.Errorf("error listing prefix %s in bucket %s: %v", prefix, p.bucket, err)
			return BatchListing{}, err
		}
	}
	return listing, nil
}

func (p *PrefixLister) listPrefix(ctx context.Context, prefix string, listing *BatchListing, seen map[string]bool) error {
	marker := ""
	pages := 0
	for {
		var page ListPage
		err := p.runner.run(ctx, fmt.Sprintf("list %s", prefix), func(ctx context.Context) error {
			var err error
			page, err = p.source.ListObjects(ctx, p.bucket, prefix, p.pageSize, marker)
			return err
		})
		if err != nil {
			return err
		}
		pages += 1

		for _, entry := range page.Entries {
			if seen[entry.Key] {
				continue
			}
			seen[entry.Key] = true
			if !p.staging.Owns(entry.Key) {
				p.sugar.Errorf("skipping %s: key does not map to a path below staging root %s", entry.Key, p.staging.Root())
				continue
			}
			if isDirectoryMarker(entry) {
				listing.DirectoryMarkers = append(listing.DirectoryMarkers, entry.Key)
				continue
			}
			listing.Units = append(listing.Units, TransferUnit{
				Key:       entry.Key,
				Size:      entry.Size,
				LocalPath: p.staging.LocalPathFor(entry.Key),
			})
		}

		if !page.IsTruncated {
			break
		}
		next := page.NextMarker
		if next == "" && len(page.Entries) > 0 {
			// a truncated page without a marker resumes after its last key
			next = page.Entries[len(page.Entries)-1].Key
		}
		if next == "" {
			break
		}
		if next == marker {
			return fmt.Errorf("listing of %s did not advance past marker %q", prefix, marker)
		}
		marker = next
	}
	p.sugar.Debugf("listed prefix %s in %d pages", prefix, pages)
	return nil
}

func isDirectoryMarker(entry ListEntry) bool {
	return entry.Size == 0 && strings.HasSuffix(entry.Key, "/")
}
