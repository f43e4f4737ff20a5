package channels

import (
	"context"
	"fmt"
	"io"
	"strings"

	"iptv-player/work/client"
	"iptv-player/work/logger"
	"iptv-player/work/parser"
	"iptv-player/work/types"
	"iptv-player/work/utils"
)

// ImportFromURL fetches a channel list with the upstream client and replaces
// every stored channel with its contents.
func (s *Service) ImportFromURL(ctx context.Context, rawURL string) (*ImportResult, error) {
	if err := client.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	logger.Info("{channels/imports - ImportFromURL} Fetching channel list from %s", utils.LogURL(s.cfg, rawURL))

	content, err := s.client.FetchText(ctx, rawURL, maxListBytes)
	if err != nil {
		return nil, err
	}

	return s.importList(ctx, content, types.ImportHistory{
		Name: hostLabel(rawURL),
		URL:  rawURL,
		Type: types.ImportURL,
	})
}

// ImportText replaces every stored channel with a pasted channel list.
func (s *Service) ImportText(ctx context.Context, content string) (*ImportResult, error) {
	return s.importList(ctx, content, types.ImportHistory{
		Name: PastedContentName,
		Type: types.ImportText,
	})
}

// ImportFile replaces every stored channel with an uploaded channel list.
func (s *Service) ImportFile(ctx context.Context, r io.Reader, filename string) (*ImportResult, error) {
	content, err := readLimited(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if filename == "" {
		filename = "upload.m3u"
	}
	return s.importList(ctx, content, types.ImportHistory{
		Name: filename,
		Type: types.ImportFile,
	})
}

// importList parses content, swaps the channel table in one transaction and
// records the import. A failed history write is logged, not returned.
func (s *Service) importList(ctx context.Context, content string, entry types.ImportHistory) (*ImportResult, error) {
	source := entry.URL
	if source == "" {
		source = entry.Name
	}

	list, err := parser.ParseChannelList(strings.NewReader(content), source)
	if err != nil {
		return nil, err
	}

	n, err := s.db.ReplaceChannels(ctx, list.Channels)
	if err != nil {
		return nil, err
	}
	s.cache.Clear()

	entry.ChannelCount = n
	history, err := s.db.AddImportHistory(ctx, entry)
	if err != nil {
		logger.Warn("{channels/imports - importList} Failed to record import history: %v", err)
	}

	logger.Info("{channels/imports - importList} Imported %d channels in %d groups from %s", n, len(list.Groups), entry.Type)

	return &ImportResult{Count: n, Groups: list.Groups, History: history}, nil
}

// History returns recent imports, newest first.
func (s *Service) History(ctx context.Context) ([]types.ImportHistory, error) {
	return s.db.ListImportHistory(ctx)
}

// AddHistory records an import made elsewhere, e.g. by the browser.
func (s *Service) AddHistory(ctx context.Context, entry types.ImportHistory) (*types.ImportHistory, error) {
	if strings.TrimSpace(entry.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "is required"}
	}
	switch entry.Type {
	case types.ImportURL, types.ImportFile, types.ImportText:
	default:
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown import type %q", entry.Type)}
	}
	entry.ID = ""
	entry.ImportedAt = 0
	return s.db.AddImportHistory(ctx, entry)
}

// DeleteHistory removes one import history entry.
func (s *Service) DeleteHistory(ctx context.Context, id string) error {
	return s.db.DeleteImportHistory(ctx, id)
}

// ClearHistory removes every import history entry.
func (s *Service) ClearHistory(ctx context.Context) error {
	return s.db.ClearImportHistory(ctx)
}
