package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/grafana/regexp"

	"iptv-player/work/types"
)

// DefaultGroup is assigned to channels without a group-title or #EXTGRP.
const DefaultGroup = "Uncategorized"

var attrPattern = regexp.MustCompile(`([A-Za-z0-9_-]+)="([^"]*)"`)

// EmptyContentError reports a body that is empty or carries no recognisable
// playlist markers.
type EmptyContentError struct {
	Source string // URL or label of the content
	Reason string
}

func (e *EmptyContentError) Error() string {
	if e.Source == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Source)
}

// ChannelList is the result of parsing an M3U channel list.
type ChannelList struct {
	Channels []types.Channel
	Groups   []string // Distinct groups in first-seen order
}

// ParseChannelList reads an extended M3U channel list. Each #EXTINF line opens a
// channel that is completed by the next non-comment line, which becomes its URL.
//
// Parameters:
//   - reader: M3U text
//   - source: label used in errors (URL, file name, or "text")
//
// Returns:
//   - *ChannelList: channels in document order with their distinct groups
//   - error: *EmptyContentError when no channel could be extracted
func ParseChannelList(reader io.Reader, source string) (*ChannelList, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	list := &ChannelList{}
	seenGroups := make(map[string]bool)

	var current map[string]string
	var pendingGroup string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			current = ParseEXTINF(line)
			pendingGroup = ""
		case strings.HasPrefix(line, "#EXTGRP:"):
			pendingGroup = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
		case strings.HasPrefix(line, "#"):
			continue
		case current != nil:
			ch := channelFromAttrs(current, pendingGroup, line)
			if !seenGroups[ch.GroupTitle] {
				seenGroups[ch.GroupTitle] = true
				list.Groups = append(list.Groups, ch.GroupTitle)
			}
			list.Channels = append(list.Channels, ch)
			current = nil
			pendingGroup = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading channel list: %w", err)
	}

	if len(list.Channels) == 0 {
		return nil, &EmptyContentError{Source: source, Reason: "invalid M3U content"}
	}
	return list, nil
}

func channelFromAttrs(attrs map[string]string, extgrp, url string) types.Channel {
	group := attrs["group-title"]
	if group == "" {
		group = extgrp
	}
	if group == "" {
		group = DefaultGroup
	}

	name := attrs["name"]
	if name == "" {
		name = attrs["tvg-name"]
	}
	if name == "" {
		name = "Unknown"
	}

	return types.Channel{
		Name:       name,
		URL:        url,
		Logo:       attrs["tvg-logo"],
		GroupTitle: group,
		TvgID:      attrs["tvg-id"],
		TvgName:    attrs["tvg-name"],
		Status:     types.StatusUnknown,
	}
}

// ParseEXTINF splits an #EXTINF line into its duration, quoted attributes and the
// display name that follows the last comma outside quotes. The name is stored
// under the "name" key.
func ParseEXTINF(line string) map[string]string {
	attrs := make(map[string]string)

	line = strings.TrimPrefix(line, "#EXTINF:")

	lastComma := -1
	inQuotes := false
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == '"' {
			inQuotes = !inQuotes
		} else if line[i] == ',' && !inQuotes {
			lastComma = i
			break
		}
	}

	attrPart := line
	if lastComma != -1 {
		attrPart = line[:lastComma]
		if name := strings.TrimSpace(line[lastComma+1:]); name != "" {
			attrs["name"] = name
		}
	}

	if fields := strings.Fields(attrPart); len(fields) > 0 && !strings.Contains(fields[0], "=") {
		attrs["duration"] = fields[0]
	}

	for _, m := range attrPattern.FindAllStringSubmatch(attrPart, -1) {
		attrs[strings.ToLower(m[1])] = m[2]
	}

	return attrs
}

// RenderChannelList writes channels back out as an extended M3U list.
func RenderChannelList(channels []types.Channel) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	for _, ch := range channels {
		b.WriteString("#EXTINF:-1")
		writeAttr(&b, "tvg-id", ch.TvgID)
		writeAttr(&b, "tvg-name", ch.TvgName)
		writeAttr(&b, "tvg-logo", ch.Logo)
		writeAttr(&b, "group-title", ch.GroupTitle)
		b.WriteByte(',')
		b.WriteString(ch.Name)
		b.WriteByte('\n')
		b.WriteString(ch.URL)
		b.WriteByte('\n')
	}

	return b.String()
}

func writeAttr(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, ` %s="%s"`, key, strings.ReplaceAll(value, `"`, `'`))
}
