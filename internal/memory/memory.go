// Package memory implements the Memory Store: an append-only,
// human-readable, git-trackable document of cross-session notes, and the
// token-budgeted serialization used to inject the most relevant of them
// back into a rendered prompt.
package memory

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rasen-dev/rasen/internal/types"
)

// Store is the Memory Store. Entries are appended as single markdown lines
// of the form:
//
//	- [2024-03-01T10:00:00Z] (pattern) id:1a2b3c4d #auth #middleware : content here
//
// and are never modified once written; a human curator may edit the file
// out-of-band, which is why the format is deliberately plain markdown
// rather than JSON.
type Store struct {
	path string
}

// New returns a Memory Store backed by the markdown file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Append writes a new entry. kind must be one of pattern, decision, fix.
func (s *Store) Append(kind types.MemoryKind, content string, tags []string) (types.MemoryEntry, error) {
	if !kind.IsValid() {
		return types.MemoryEntry{}, fmt.Errorf("invalid memory kind %q", kind)
	}
	entry := types.MemoryEntry{
		ID:        uuid.NewString()[:8],
		Kind:      kind,
		Content:   strings.TrimSpace(content),
		Tags:      tags,
		Timestamp: time.Now().UTC(),
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return entry, fmt.Errorf("cannot open memory store %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(formatEntry(entry) + "\n"); err != nil {
		return entry, fmt.Errorf("cannot append to memory store %s: %w", s.path, err)
	}
	return entry, nil
}

func formatEntry(e types.MemoryEntry) string {
	var sb strings.Builder
	sb.WriteString("- [")
	sb.WriteString(e.Timestamp.Format(time.RFC3339))
	sb.WriteString("] (")
	sb.WriteString(string(e.Kind))
	sb.WriteString(") ")
	sb.WriteString("id:")
	sb.WriteString(e.ID)
	if len(e.Tags) > 0 {
		sb.WriteString(" ")
		for _, t := range e.Tags {
			sb.WriteString("#")
			sb.WriteString(t)
			sb.WriteString(" ")
		}
	}
	sb.WriteString(": ")
	sb.WriteString(e.Content)
	return sb.String()
}

var entryLinePrefix = regexp.MustCompile(`^- \[([^\]]+)\] \(([a-z]+)\) id:(\S+)(.*?): (.*)$`)

// Load parses every entry in the store back into structured form, in the
// order they were appended (oldest first).
func (s *Store) Load() ([]types.MemoryEntry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot open memory store %s: %w", s.path, err)
	}
	defer f.Close()

	var entries []types.MemoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := entryLinePrefix.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, m[1])
		entries = append(entries, types.MemoryEntry{
			ID:        m[3],
			Kind:      types.MemoryKind(m[2]),
			Content:   m[5],
			Tags:      parseTags(m[4]),
			Timestamp: ts,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot scan memory store %s: %w", s.path, err)
	}
	return entries, nil
}

func parseTags(segment string) []string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return nil
	}
	var tags []string
	for _, field := range strings.Fields(segment) {
		if strings.HasPrefix(field, "#") {
			tags = append(tags, strings.TrimPrefix(field, "#"))
		}
	}
	return tags
}

// approxTokens approximates a token count as word-count * 1.3, the scheme
// names explicitly since no tokenizer is available to a black-box
// assistant integration.
func approxTokens(s string) float64 {
	return float64(len(strings.Fields(s))) * 1.3
}

// FormatForInjection serializes entries most-recent-first into a bulleted
// list, stopping once adding another entry would exceed maxTokens. An
// empty or non-positive maxTokens means unlimited.
func FormatForInjection(entries []types.MemoryEntry, maxTokens int) string {
	if len(entries) == 0 {
		return ""
	}
	// Timestamps have one-second precision; reversing first makes entries
	// that share a second come out latest-appended first.
	ordered := make([]types.MemoryEntry, len(entries))
	for i, e := range entries {
		ordered[len(entries)-1-i] = e
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})

	var sb strings.Builder
	var used float64
	for _, e := range ordered {
		line := fmt.Sprintf("- (%s) %s\n", e.Kind, e.Content)
		cost := approxTokens(line)
		if maxTokens > 0 && used+cost > float64(maxTokens) {
			break
		}
		sb.WriteString(line)
		used += cost
	}
	return sb.String()
}
