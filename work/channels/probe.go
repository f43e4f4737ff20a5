package channels

import (
	"context"
	"errors"
	"sync"

	"iptv-player/work/database"
	"iptv-player/work/logger"
	"iptv-player/work/types"
	"iptv-player/work/utils"
)

// notFoundMessage is reported for batch ids that match no channel.
const notFoundMessage = "channel not found"

// TestChannel probes one channel and records the outcome.
//
// Parameters:
//   - ctx: bounds the probe and the write
//   - id: channel id
//
// Returns:
//   - *types.ChannelTestResult: recorded status with the probe details
//   - error: database.ErrNotFound for an unknown id, ErrTestInProgress when the
//     same channel is already being tested, or a store error
func (s *Service) TestChannel(ctx context.Context, id string) (*types.ChannelTestResult, error) {
	rawURL, err := s.db.GetChannelURL(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, busy := s.testing.LoadOrStore(id, struct{}{}); busy {
		return nil, ErrTestInProgress
	}
	defer s.testing.Delete(id)

	result := s.prober.Probe(ctx, rawURL)
	status := statusOf(result)

	logger.Debug("{channels/probe - TestChannel} %s -> %s in %dms", utils.LogURL(s.cfg, rawURL), status, result.ResponseTime)

	if err := s.db.RecordTestResult(ctx, id, status, result.ResponseTime); err != nil {
		return nil, err
	}
	s.cache.InvalidateStats()

	return &types.ChannelTestResult{ID: id, Status: status, ProbeResult: result}, nil
}

// TestChannels probes the given channels, or every channel when ids is empty,
// in groups of the configured batch size. Each result is stored before the
// next group starts. Unknown ids, and channels already under test elsewhere,
// are reported with status unknown and do not stop the batch. Channels left
// unprobed because ctx ended are reported the same way and keep their stored
// status. Results are returned in ids order.
func (s *Service) TestChannels(ctx context.Context, ids []string) ([]types.ChannelTestResult, error) {
	if len(ids) == 0 {
		all, err := s.db.ChannelIDs(ctx)
		if err != nil {
			return nil, err
		}
		ids = all
	}

	results := make([]types.ChannelTestResult, len(ids))
	var (
		urls       []string
		owner      []int // urls[i] belongs to results[owner[i]]
		registered []string
	)
	defer func() {
		for _, id := range registered {
			s.testing.Delete(id)
		}
	}()

	for i, id := range ids {
		results[i].ID = id
		rawURL, err := s.db.GetChannelURL(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			results[i].Status = types.StatusUnknown
			results[i].Error = notFoundMessage
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, busy := s.testing.LoadOrStore(id, struct{}{}); busy {
			results[i].Status = types.StatusUnknown
			results[i].Error = ErrTestInProgress.Error()
			continue
		}
		registered = append(registered, id)
		urls = append(urls, rawURL)
		owner = append(owner, i)
	}

	logger.Info("{channels/probe - TestChannels} Testing %d channels (%d skipped)", len(urls), len(ids)-len(urls))

	var mu sync.Mutex
	probed := s.prober.ProbeGroups(ctx, urls, s.prober.BatchSize(), func(index int, result types.ProbeResult) {
		slot := owner[index]
		status := statusOf(result)

		mu.Lock()
		results[slot].Status = status
		results[slot].ProbeResult = result
		mu.Unlock()

		id := ids[slot]
		if err := s.db.RecordTestResult(ctx, id, status, result.ResponseTime); err != nil {
			logger.Warn("{channels/probe - TestChannels} Failed to record result for %s: %v", id, err)
		}
	})

	for i, result := range probed {
		if slot := owner[i]; results[slot].Status == "" {
			results[slot].Status = types.StatusUnknown
			results[slot].ProbeResult = result
		}
	}

	s.cache.InvalidateStats()
	return results, nil
}

func statusOf(result types.ProbeResult) types.ChannelStatus {
	if result.Success {
		return types.StatusOnline
	}
	return types.StatusOffline
}
