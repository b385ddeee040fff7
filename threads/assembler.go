package threads

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/mail-recall/archive"
)

// EntryKind distinguishes what a thread entry's text came from.
type EntryKind string

const (
	EntryKindMessage    EntryKind = "message"
	EntryKindAttachment EntryKind = "attachment"
)

// Entry is one chronological unit of a thread: a message body or one
// attachment's extracted text. Attachments carry the timestamp of the message
// they arrived with, since they have none of their own.
type Entry struct {
	MessageID string
	Kind      EntryKind
	Filename  string // set for attachment entries
	Text      string
	Date      time.Time
}

// Thread aggregates every message and attachment text that resolved to one
// root id, in chronological order.
type Thread struct {
	ThreadID     string
	Subject      string
	Participants []string
	FirstDate    time.Time
	LastDate     time.Time
	Entries      []Entry
}

// AssembleThreads groups messages by their resolved thread root and orders
// each thread's entries by timestamp. The sort is stable, so on equal
// timestamps the original discovery order survives and a message keeps
// preceding its own attachments. Messages with a zero (unparseable) date
// sort to the front rather than failing.
//
// Threads are rebuilt from scratch on every call; callers replace, never
// patch, previous results.
func AssembleThreads(msgs []archive.Message, tm ThreadMap, attachments map[string][]archive.AttachmentText) []Thread {
	byRoot := make(map[string]*Thread)
	order := make([]string, 0)

	for _, m := range msgs {
		id := archive.NormalizeID(m.ID)
		if id == "" {
			continue
		}
		root, ok := tm[id]
		if !ok {
			root = id
		}

		th := byRoot[root]
		if th == nil {
			th = &Thread{ThreadID: root}
			byRoot[root] = th
			order = append(order, root)
		}

		if th.Subject == "" {
			th.Subject = strings.TrimSpace(m.Subject)
		}
		th.Participants = append(th.Participants, m.Participants...)

		th.Entries = append(th.Entries, Entry{
			MessageID: id,
			Kind:      EntryKindMessage,
			Text:      fmt.Sprintf("Message_%s: %s", id, m.Body),
			Date:      m.Date,
		})
		for _, att := range attachments[id] {
			th.Entries = append(th.Entries, Entry{
				MessageID: id,
				Kind:      EntryKindAttachment,
				Filename:  att.Filename,
				Text:      fmt.Sprintf("--Attachment_%s: %s", att.Filename, att.Text),
				Date:      m.Date,
			})
		}
	}

	out := make([]Thread, 0, len(byRoot))
	for _, root := range order {
		th := byRoot[root]
		sort.SliceStable(th.Entries, func(i, j int) bool {
			return th.Entries[i].Date.Before(th.Entries[j].Date)
		})
		th.Participants = dedupeSorted(th.Participants)
		th.FirstDate = th.Entries[0].Date
		th.LastDate = th.Entries[len(th.Entries)-1].Date
		out = append(out, *th)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out
}

// FullText joins a thread's entries into the labeled transcript used for
// summarization and answer grounding.
func (t Thread) FullText() string {
	texts := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		texts = append(texts, e.Text)
	}
	return strings.Join(texts, "\n\n")
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
