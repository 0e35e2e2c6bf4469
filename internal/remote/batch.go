package remote

import (
	"context"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
)

// BatchItem is one submission inside a bulk request.
type BatchItem struct {
	Config model.TaskConfig
	Inputs []model.TaskInput
}

// BatchResult reports the outcome of one batch item. A failed item never
// aborts its siblings.
type BatchResult struct {
	Index       int
	RemoteJobID string
	Err         error
}

// SubmitBatch submits every item with at most window concurrent calls,
// retrying each item independently under the policy. Results come back in
// item order with per-item errors collected alongside successes.
func SubmitBatch(ctx context.Context, client Client, policy RetryPolicy, items []BatchItem, creds string, window int) []BatchResult {
	if window <= 0 {
		window = 5
	}
	results := make([]BatchResult, len(items))
	sem := make(chan struct{}, window)
	done := make(chan int, len(items))

	for i := range items {
		go func(idx int) {
			sem <- struct{}{}
			defer func() {
				<-sem
				done <- idx
			}()

			item := items[idx]
			var jobID string
			err := policy.Do(ctx, "batch-submit", func() error {
				var callErr error
				jobID, callErr = client.Submit(ctx, item.Config, item.Inputs, creds)
				return callErr
			})
			results[idx] = BatchResult{Index: idx, RemoteJobID: jobID, Err: err}
		}(i)
	}

	for range items {
		<-done
	}
	return results
}
