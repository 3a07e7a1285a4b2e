package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

// Entry is one passage of the corpus; Position matches its index row.
type Entry struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// Store is an immutable in-memory passage table.
type Store struct {
	passages []string
}

// NewStore wraps passages in position order.
func NewStore(passages []string) *Store {
	copied := make([]string, len(passages))
	copy(copied, passages)
	return &Store{passages: copied}
}

// Passage resolves a position to its text.
func (s *Store) Passage(position int) (string, bool) {
	if position < 0 || position >= len(s.passages) {
		return "", false
	}
	return s.passages[position], true
}

// Len reports the number of passages.
func (s *Store) Len() int {
	return len(s.passages)
}

// Load reads either a JSON array of strings or JSON lines of entries.
// Positions must cover 0..n-1 exactly once.
func Load(r io.Reader) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("corpus: read: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var passages []string
		if err := json.Unmarshal(trimmed, &passages); err != nil {
			return nil, fmt.Errorf("corpus: parse array: %w", err)
		}
		return NewStore(passages), nil
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("corpus: line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("corpus: scan: %w", err)
	}
	passages := make([]string, len(entries))
	seen := make([]bool, len(entries))
	for _, entry := range entries {
		if entry.Position < 0 || entry.Position >= len(entries) || seen[entry.Position] {
			return nil, fmt.Errorf("corpus: position %d is out of range or duplicated", entry.Position)
		}
		seen[entry.Position] = true
		passages[entry.Position] = entry.Text
	}
	return &Store{passages: passages}, nil
}

// Write renders entries as JSON lines in position order.
func Write(w io.Writer, passages []string) error {
	enc := json.NewEncoder(w)
	for i, text := range passages {
		if err := enc.Encode(Entry{Position: i, Text: text}); err != nil {
			return err
		}
	}
	return nil
}

var _ healthbot.PassageStore = (*Store)(nil)
