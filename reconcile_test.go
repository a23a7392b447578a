package main

import (
	"context"
	"errors"
	"os"
	"testing"
)

func newTestReconciler(t *testing.T, destination DestinationStore, prefixes []string) *Reconciler {
	u := newTestUploader(t, destination, "")
	return &Reconciler{
		prefixes: mockPrefixSource{prefixes: prefixes},
		uploader: u,
		ledger:   u.ledger,
		sugar:    testSugar,
	}
}

func TestReconciler_Run(t *testing.T) {
	t.Run("matching bundle is cleaned up", func(t *testing.T) {
		dest := newFakeDestination()
		r := newTestReconciler(t, dest.store(), []string{"a/b/"})
		bundle := stageBundle(t, r.uploader)
		data, err := os.ReadFile(bundle.Path)
		if err != nil {
			t.Fatal(err)
		}
		dest.objects["a/b/__b.zip"] = data

		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Verified != 1 {
			t.Errorf("summary = %+v", summary)
		}
		if _, err := os.Stat(bundle.PrefixDir); !os.IsNotExist(err) {
			t.Errorf("staging should be cleaned up: %v", err)
		}
	})

	t.Run("different destination object is recorded", func(t *testing.T) {
		dest := newFakeDestination()
		r := newTestReconciler(t, dest.store(), []string{"a/b/"})
		bundle := stageBundle(t, r.uploader)
		dest.objects["a/b/__b.zip"] = []byte("something else")

		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Mismatched != 1 {
			t.Errorf("summary = %+v", summary)
		}
		if _, err := os.Stat(bundle.Path); err != nil {
			t.Errorf("bundle must be kept: %v", err)
		}
		paths, _ := r.ledger.Entries(LEDGER_RECONCILE_PATHS)
		if len(paths) != 1 || paths[0] != "a/b/__b.zip" {
			t.Errorf("path ledger = %v", paths)
		}
		prefixes, _ := r.ledger.Entries(LEDGER_RECONCILE_PREFIXES)
		if len(prefixes) != 1 || prefixes[0] != "a/b/" {
			t.Errorf("prefix ledger = %v", prefixes)
		}
	})

	t.Run("missing destination object is recorded", func(t *testing.T) {
		r := newTestReconciler(t, newFakeDestination().store(), []string{"a/b/"})
		stageBundle(t, r.uploader)

		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Missing != 1 {
			t.Errorf("summary = %+v", summary)
		}
		paths, _ := r.ledger.Entries(LEDGER_RECONCILE_PATHS)
		if len(paths) != 1 {
			t.Errorf("path ledger = %v", paths)
		}
	})

	t.Run("head failure is not recorded", func(t *testing.T) {
		dest := mockDestinationStore{
			headObjectFunc: func(ctx context.Context, bucket string, key string) (string, error) {
				return "", errors.New("access denied")
			},
		}
		r := newTestReconciler(t, dest, []string{"a/b/"})
		stageBundle(t, r.uploader)

		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Failed != 1 {
			t.Errorf("summary = %+v", summary)
		}
		paths, _ := r.ledger.Entries(LEDGER_RECONCILE_PATHS)
		if len(paths) != 0 {
			t.Errorf("expected empty ledger, got %v", paths)
		}
	})

	t.Run("prefix without bundles is ignored", func(t *testing.T) {
		r := newTestReconciler(t, newFakeDestination().store(), []string{"nothing/here/"})
		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary != (ReconcileSummary{}) {
			t.Errorf("summary = %+v", summary)
		}
	})
}
