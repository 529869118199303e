package client

import (
	"context"
	"sync"

	"github.com/hiddenpath/ai-protocol-go/message"
)

// BatchResult pairs one batch input's outcome with its original index,
// so callers can correlate results back to requests after concurrent
// execution reorders completion.
type BatchResult struct {
	Index    int
	Response *message.Response
	Stats    CallStats
	Err      error
}

// ExecuteBatch runs every request in reqs through Execute, bounded to at
// most maxConcurrency requests inflight at once. It returns one
// BatchResult per input, in input order, regardless of completion order.
// maxConcurrency <= 0 selects a default of 10, reduced for very small
// batches (min(10, max(1, len(reqs)/2)) below four requests) so a
// handful of requests doesn't spin up concurrency that never overlaps.
func (c *Client) ExecuteBatch(ctx context.Context, reqs []*message.Request, maxConcurrency int) []BatchResult {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultBatchConcurrency(len(reqs))
	}
	results := make([]BatchResult, len(reqs))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *message.Request) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = BatchResult{Index: i, Err: ctx.Err()}
				return
			}
			resp, stats, err := c.Execute(ctx, req)
			results[i] = BatchResult{Index: i, Response: resp, Stats: stats, Err: err}
		}(i, req)
	}
	wg.Wait()
	return results
}

func defaultBatchConcurrency(n int) int {
	if n >= 4 {
		return 10
	}
	c := n / 2
	if c < 1 {
		c = 1
	}
	return c
}
