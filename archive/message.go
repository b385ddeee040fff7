// Package archive holds the normalized message model plus the plumbing that
// reads parsed message records and attachment texts from disk. MIME decoding
// itself is the parser's job; this package only consumes its output.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Message is one normalized email record as produced by the parsing step.
// Records are read-only once loaded; thread resolution and assembly never
// mutate them.
type Message struct {
	ID             string   `json:"message_id"`
	InReplyTo      string   `json:"in_reply_to,omitempty"`
	References     []string `json:"references,omitempty"`
	RawDate        string   `json:"date,omitempty"`
	Subject        string   `json:"subject,omitempty"`
	Participants   []string `json:"participants,omitempty"`
	Body           string   `json:"body,omitempty"`
	AttachmentRefs []string `json:"attachments,omitempty"`

	// Date is parsed from RawDate at load time; zero when the header was
	// missing or unparseable. A zero date must never break processing.
	Date time.Time `json:"-"`
}

// NormalizeID lower-cases a message id and strips angle brackets and
// surrounding whitespace. Reply/reference headers are matched on the
// normalized form because real mail clients are inconsistent about both.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.Trim(id, "<>")
	return strings.ToLower(strings.TrimSpace(id))
}

// ParseDate parses the date formats that survive the parsing step. It returns
// the zero time (not an error) when the value is empty or unrecognizable.
func ParseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// LoadMessages reads every .json message record in dir. Records whose id is
// empty after normalization are dropped; a record that fails to decode is
// returned as an error because it means the parsing stage misbehaved.
func LoadMessages(dir string) ([]Message, error) {
	if dir == "" {
		return nil, errors.New("LoadMessages: dir is empty")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadMessages: read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	msgs := make([]Message, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("LoadMessages: read %s: %w", name, err)
		}
		var m Message
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("LoadMessages: decode %s: %w", name, err)
		}
		m.ID = NormalizeID(m.ID)
		if m.ID == "" {
			continue
		}
		// First record wins on duplicate ids; mbox exports commonly contain
		// the same message twice.
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		m.InReplyTo = NormalizeID(m.InReplyTo)
		for i, ref := range m.References {
			m.References[i] = NormalizeID(ref)
		}
		m.Date = ParseDate(m.RawDate)
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// AttachmentText is the extracted plain text of one attachment, keyed back to
// its parent message.
type AttachmentText struct {
	Filename string
	Text     string
}

// attachment text files are named "_id_<message id>_id_<original name>.txt"
// by the extraction step.
const idMarker = "_id_"

// LoadAttachmentTexts scans a directory of extracted attachment .txt files
// and groups them by normalized parent message id. Files that do not follow
// the id-marker naming convention are skipped.
func LoadAttachmentTexts(dir string) (map[string][]AttachmentText, error) {
	if dir == "" {
		return nil, errors.New("LoadAttachmentTexts: dir is empty")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]AttachmentText{}, nil
		}
		return nil, fmt.Errorf("LoadAttachmentTexts: read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make(map[string][]AttachmentText)
	for _, name := range names {
		parts := strings.Split(strings.TrimSuffix(name, ".txt"), idMarker)
		if len(parts) < 3 {
			continue
		}
		msgID := NormalizeID(parts[1])
		if msgID == "" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("LoadAttachmentTexts: read %s: %w", name, err)
		}
		out[msgID] = append(out[msgID], AttachmentText{
			Filename: parts[2],
			Text:     string(b),
		})
	}
	return out, nil
}
