package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"iptv-player/work/logger"
	"iptv-player/work/types"
)

// Tester re-tests stored channels and records the outcome. An empty id list
// means every channel.
type Tester interface {
	TestChannels(ctx context.Context, ids []string) ([]types.ChannelTestResult, error)
}

// Watcher periodically re-tests every stored channel in the background so the
// online/offline status shown in listings does not go stale between manual
// tests. A zero interval disables it.
type Watcher struct {
	tester   Tester
	interval time.Duration

	enabled  atomic.Bool   // true between Start and Stop
	sweeping atomic.Bool   // true while a sweep is in flight
	stopChan chan struct{} // closed by Stop
	wg       sync.WaitGroup
}

// SweepSummary counts the outcome of one sweep.
type SweepSummary struct {
	Total   int
	Online  int
	Offline int
	Elapsed time.Duration
}

// New creates a Watcher. It does nothing until Start is called.
//
// Parameters:
//   - tester: channel tester, normally the channels service
//   - interval: time between sweeps, 0 disables the watcher
//
// Returns:
//   - *Watcher: ready for Start
func New(tester Tester, interval time.Duration) *Watcher {
	return &Watcher{
		tester:   tester,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling it twice, or on a disabled watcher,
// is a no-op. The loop ends when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	if w.interval <= 0 {
		logger.Debug("{watcher/watcher - Start} Background re-test disabled")
		return
	}

	if !w.enabled.CompareAndSwap(false, true) {
		return
	}

	logger.Info("{watcher/watcher - Start} Re-testing all channels every %s", w.interval)

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop ends the sweep loop and waits for an in-flight sweep to return.
func (w *Watcher) Stop() {
	if !w.enabled.CompareAndSwap(true, false) {
		return
	}

	close(w.stopChan)
	w.wg.Wait()
	logger.Debug("{watcher/watcher - Stop} Watcher stopped")
}

// Running reports whether the sweep loop is active.
func (w *Watcher) Running() bool {
	return w.enabled.Load()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// a sweep blocked on upstream I/O must notice Stop
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, ok := w.Sweep(ctx); !ok {
				logger.Debug("{watcher/watcher - loop} Previous sweep still running, skipping tick")
			}
		}
	}
}

// Sweep tests every channel once. The bool is false when another sweep was
// already running and this call did nothing.
func (w *Watcher) Sweep(ctx context.Context) (SweepSummary, bool) {
	if !w.sweeping.CompareAndSwap(false, true) {
		return SweepSummary{}, false
	}
	defer w.sweeping.Store(false)

	start := time.Now()
	results, err := w.tester.TestChannels(ctx, nil)
	if err != nil {
		logger.Error("{watcher/watcher - Sweep} Channel sweep failed: %v", err)
		return SweepSummary{Elapsed: time.Since(start)}, true
	}

	summary := SweepSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case types.StatusOnline:
			summary.Online++
		case types.StatusOffline:
			summary.Offline++
		}
	}
	summary.Elapsed = time.Since(start)

	logger.Info("{watcher/watcher - Sweep} Tested %d channels in %s: %d online, %d offline",
		summary.Total, summary.Elapsed.Round(time.Millisecond), summary.Online, summary.Offline)
	return summary, true
}
