package session

import (
	"regexp"
	"strings"

	"github.com/rasen-dev/rasen/internal/types"
)

// eventPattern implements a tolerant tag scan:
// <event topic="TOPIC">PAYLOAD</event>, dot-matches-newline, topic and
// payload both trimmed, malformed tags simply don't match and are ignored.
var eventPattern = regexp.MustCompile(`(?s)<event\s+topic="([^"]+)">(.*?)</event>`)

// ExtractEvents scans output for every well-formed event tag.
func ExtractEvents(output string) []types.Event {
	matches := eventPattern.FindAllStringSubmatch(output, -1)
	events := make([]types.Event, 0, len(matches))
	for _, m := range matches {
		events = append(events, types.Event{
			Topic:   types.ParseTopic(strings.TrimSpace(m[1])),
			Payload: strings.TrimSpace(m[2]),
		})
	}
	return events
}

// FindTopic returns the payload of the first event matching topic, and
// whether one was found.
func FindTopic(events []types.Event, topic types.Topic) (string, bool) {
	for _, e := range events {
		if e.Topic == topic {
			return e.Payload, true
		}
	}
	return "", false
}

var memoryMarkerPattern = regexp.MustCompile(`(?s)<!--\s*memory:\s*(pattern|decision|fix)\s*:\s*(.*?)\s*-->`)

// MemoryMarker is one `<!-- memory: KIND: CONTENT -->` occurrence found in
// assistant output.
type MemoryMarker struct {
	Kind    types.MemoryKind
	Content string
}

// ExtractMemoryMarkers scans output for memory markers.
func ExtractMemoryMarkers(output string) []MemoryMarker {
	matches := memoryMarkerPattern.FindAllStringSubmatch(output, -1)
	markers := make([]MemoryMarker, 0, len(matches))
	for _, m := range matches {
		markers = append(markers, MemoryMarker{
			Kind:    types.MemoryKind(m[1]),
			Content: strings.TrimSpace(m[2]),
		})
	}
	return markers
}

// ExtractApproach implements the Post-Session Processor's approach
// heuristic: the first line mentioning "approach" or
// "trying", else the first non-empty line, truncated to ~200 characters.
func ExtractApproach(output string) string {
	lines := strings.Split(output, "\n")
	var firstNonEmpty string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if firstNonEmpty == "" {
			firstNonEmpty = line
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "approach") || strings.Contains(lower, "trying") {
			return truncate(line, 200)
		}
	}
	return truncate(firstNonEmpty, 200)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
