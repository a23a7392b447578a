package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

var retrySleep = func(retries int) {
	time.Sleep(time.Duration(retries*retries) * time.Second)
}

// operationRunner applies the per-operation timeout to remote calls and retries transient
// failures a bounded number of times. Integrity mismatches are never seen here.
type operationRunner struct {
	timeout          time.Duration
	transientRetries int
	sugar            *zap.SugaredLogger
}

func (r operationRunner) run(ctx context.Context, description string, op func(ctx context.Context) error) error {
	retries := 0
	for {
		opCtx := ctx
		cancel := func() {}
		if r.timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		err := op(opCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransientError(err) {
			return err
		}
		if retries >= r.transientRetries {
			r.sugar.Errorf("transient error during %s, giving up after %d retries: %v", description, retries, err)
			return err
		}
		retries += 1
		metricTransientRetries.Inc()
		r.sugar.Warnf("transient error during %s, retry %d of %d: %v", description, retries, r.transientRetries, err)
		retrySleep(retries)
	}
}
