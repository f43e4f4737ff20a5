package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"iptv-player/work/cache"
	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/database"
	"iptv-player/work/parser"
	"iptv-player/work/probe"
	"iptv-player/work/types"
)

// maxListBytes bounds a fetched or uploaded channel list.
const maxListBytes = 32 << 20

// PastedContentName labels imports made from pasted text.
const PastedContentName = "Pasted content"

// ErrTestInProgress is returned when a channel is already being tested.
var ErrTestInProgress = errors.New("channel test already in progress")

// ImportResult summarises a completed import.
type ImportResult struct {
	Count   int                  `json:"count"`
	Groups  []string             `json:"groups"`
	History *types.ImportHistory `json:"history,omitempty"`
}

// Service ties the channel store to the prober, the upstream client and the
// derived-view cache. Every mutation goes through it so the cache stays honest.
type Service struct {
	db      *database.DB
	prober  *probe.Prober
	cache   *cache.Cache
	client  *client.HeaderSettingClient
	cfg     *config.Config
	testing *xsync.MapOf[string, struct{}]
}

// NewService creates a channel service.
func NewService(cfg *config.Config, db *database.DB, prober *probe.Prober, c *cache.Cache, httpClient *client.HeaderSettingClient) *Service {
	return &Service{
		db:      db,
		prober:  prober,
		cache:   c,
		client:  httpClient,
		cfg:     cfg,
		testing: xsync.NewMapOf[string, struct{}](),
	}
}

// List returns channels matching filter.
func (s *Service) List(ctx context.Context, filter types.ChannelFilter) ([]types.Channel, error) {
	return s.db.ListChannels(ctx, filter)
}

// Get returns one channel or database.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*types.Channel, error) {
	return s.db.GetChannel(ctx, id)
}

// Create stores a single channel.
func (s *Service) Create(ctx context.Context, ch types.Channel) (*types.Channel, error) {
	if err := validateChannel(ch); err != nil {
		return nil, err
	}
	stored, err := s.db.InsertChannel(ctx, ch)
	if err != nil {
		return nil, err
	}
	s.cache.Clear()
	return stored, nil
}

// CreateMany stores channels without removing existing ones.
func (s *Service) CreateMany(ctx context.Context, chans []types.Channel) (int, error) {
	for i := range chans {
		if err := validateChannel(chans[i]); err != nil {
			return 0, fmt.Errorf("channel %d: %w", i, err)
		}
	}
	n, err := s.db.InsertChannels(ctx, chans)
	if err != nil {
		return 0, err
	}
	s.cache.Clear()
	return n, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, upd types.ChannelUpdate) (*types.Channel, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if upd.URL != nil && strings.TrimSpace(*upd.URL) == "" {
		return nil, &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	ch, err := s.db.UpdateChannel(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Clear()
	return ch, nil
}

// SetStatus overrides a channel's status.
func (s *Service) SetStatus(ctx context.Context, id string, status types.ChannelStatus) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	if err := s.db.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.cache.InvalidateStats()
	return nil
}

// Delete removes one channel.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteChannel(ctx, id); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

// DeleteAll removes every channel.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.db.DeleteAllChannels(ctx)
	if err != nil {
		return 0, err
	}
	s.cache.Clear()
	return n, nil
}

// Stats returns status counts, served from cache when fresh.
func (s *Service) Stats(ctx context.Context) (types.ChannelStats, error) {
	if stats, ok := s.cache.GetStats(); ok {
		return stats, nil
	}
	stats, err := s.db.Stats(ctx)
	if err != nil {
		return stats, err
	}
	s.cache.SetStats(stats)
	return stats, nil
}

// Groups returns the distinct group titles, served from cache when fresh.
func (s *Service) Groups(ctx context.Context) ([]string, error) {
	if groups, ok := s.cache.GetGroups(); ok {
		return groups, nil
	}
	groups, err := s.db.Groups(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetGroups(groups)
	return groups, nil
}

// Export renders every channel as an extended M3U list.
func (s *Service) Export(ctx context.Context) (string, error) {
	if content, ok := s.cache.GetM3U8(); ok {
		return content, nil
	}
	all, err := s.db.ListChannels(ctx, types.ChannelFilter{})
	if err != nil {
		return "", err
	}
	content := parser.RenderChannelList(all)
	s.cache.SetM3U8(content)
	return content, nil
}

// ValidationError reports a rejected channel field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func validateChannel(ch types.Channel) error {
	if strings.TrimSpace(ch.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(ch.URL) == "" {
		return &ValidationError{Field: "url", Reason: "is required"}
	}
	if ch.Status != "" && !ch.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", ch.Status)}
	}
	return nil
}

// hostLabel names a URL import after its host, as the UI shows it.
func hostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}

// readLimited reads at most maxListBytes from r.
func readLimited(r io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxListBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
