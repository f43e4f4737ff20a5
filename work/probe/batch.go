package probe

import (
	"context"
	"sync"

	"iptv-player/work/client"
	"iptv-player/work/logger"
	"iptv-player/work/types"
)

// RecordFunc receives each finished probe with its index in the input slice.
// It is called from worker goroutines, possibly concurrently.
type RecordFunc func(index int, result types.ProbeResult)

// ProbeBatch probes urls in groups of concurrency and returns one result per
// input, in input order. Failing probes never abort their siblings.
func (p *Prober) ProbeBatch(ctx context.Context, urls []string, concurrency int) []types.ProbeResult {
	return p.ProbeGroups(ctx, urls, concurrency, nil)
}

// ProbeGroups probes urls in consecutive groups of groupSize. All probes of a
// group run concurrently; the next group starts only after every probe of the
// current group has finished and record has returned for it. A groupSize of 0
// or less uses the configured batch size. Once ctx is done no further group is
// started; the remaining slots carry a canceled result and are not recorded.
func (p *Prober) ProbeGroups(ctx context.Context, urls []string, groupSize int, record RecordFunc) []types.ProbeResult {
	results := make([]types.ProbeResult, len(urls))
	if len(urls) == 0 {
		return results
	}
	if groupSize <= 0 {
		groupSize = p.batchSize
	}
	if groupSize <= 0 {
		groupSize = 1
	}

	groups := (len(urls) + groupSize - 1) / groupSize
	logger.Debug("{probe/batch - ProbeGroups} Probing %d urls in %d groups of %d", len(urls), groups, groupSize)

	for start := 0; start < len(urls); start += groupSize {
		if ctx.Err() != nil {
			logger.Debug("{probe/batch - ProbeGroups} Canceled with %d of %d urls unprobed", len(urls)-start, len(urls))
			for i := start; i < len(urls); i++ {
				results[i] = canceledResult(urls[i])
			}
			break
		}
		end := min(start+groupSize, len(urls))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			p.submit(func() {
				defer wg.Done()
				results[i] = p.runOne(ctx, i, urls[i], record)
			})
		}
		wg.Wait()
	}

	return results
}

func canceledResult(rawURL string) types.ProbeResult {
	return types.ProbeResult{URL: rawURL, Error: string(client.ReasonCanceled)}
}

// runOne probes and records one url. A panicking recorder is contained so the
// group still completes.
func (p *Prober) runOne(ctx context.Context, index int, rawURL string, record RecordFunc) (result types.ProbeResult) {
	result = p.Probe(ctx, rawURL)
	if record == nil {
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("{probe/batch - runOne} Recording result %d failed: %v", index, r)
		}
	}()
	record(index, result)
	return result
}

// submit hands task to the worker pool, falling back to a goroutine when no
// pool is configured or the pool refuses the task.
func (p *Prober) submit(task func()) {
	if p.submitter != nil {
		err := p.submitter.Submit(task)
		if err == nil {
			return
		}
		logger.Warn("{probe/batch - submit} Worker pool rejected task, using goroutine: %v", err)
	}
	go task()
}
