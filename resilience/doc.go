// Package resilience retries operations that fail with transient errors.
//
// Retry and RetryFunc back off exponentially between attempts and stop early
// when the context ends or the error is not worth retrying. By default an
// error is retried only when it carries an AppError marked Retryable:
//
//	l, err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() (*ledger.Ledger, error) {
//	    return ledger.Open(ctx, dsn, log)
//	})
package resilience
