// Package pipeline turns assembled threads into embedded, indexable
// documents: chunking, summarization, embedding with bounded concurrency,
// and batched upserts into the vector index.
package pipeline

import (
	"fmt"
	"time"

	"github.com/theimaginaryfoundation/mail-recall/archive"
	"github.com/theimaginaryfoundation/mail-recall/chunk"
	"github.com/theimaginaryfoundation/mail-recall/threads"
)

// Kind tags what a document's text is.
type Kind string

const (
	KindEmail         Kind = "email"
	KindAttachment    Kind = "attachment"
	KindThreadSummary Kind = "thread_summary"
)

// Document is one unit headed for the vector index: an email chunk, an
// attachment chunk, or a thread summary. Which text field is populated
// depends on Kind; EmbeddingText resolves that.
type Document struct {
	DocID        string
	Kind         Kind
	ThreadID     string
	MessageID    string
	Filename     string
	ChunkIndex   int
	ChunkText    string
	SummaryText  string
	Subject      string
	Participants []string
	Date         time.Time

	// Vector is filled by the embedding pipeline. Re-running the pipeline
	// overwrites an existing vector; embeddings are pure functions of the
	// text, so overwriting is deterministic.
	Vector []float32
}

// EmbeddingText returns the text this document should be embedded from, or
// ok=false when the relevant field is empty. Such documents are skipped,
// not failed.
func (d *Document) EmbeddingText() (string, bool) {
	switch d.Kind {
	case KindEmail, KindAttachment:
		if d.ChunkText == "" {
			return "", false
		}
		return d.ChunkText, true
	case KindThreadSummary:
		if d.SummaryText == "" {
			return "", false
		}
		return d.SummaryText, true
	default:
		return "", false
	}
}

// Payload renders the index payload fields for this document. The vector
// itself travels separately.
func (d *Document) Payload() map[string]any {
	p := map[string]any{
		"type":      string(d.Kind),
		"thread_id": d.ThreadID,
	}
	if d.MessageID != "" {
		p["message_id"] = d.MessageID
	}
	if d.Filename != "" {
		p["filename"] = d.Filename
	}
	if d.Subject != "" {
		p["subject"] = d.Subject
	}
	if len(d.Participants) > 0 {
		p["participants"] = d.Participants
	}
	if !d.Date.IsZero() {
		p["date"] = d.Date.UTC().Format(time.RFC3339)
	}
	switch d.Kind {
	case KindThreadSummary:
		p["summary_text"] = d.SummaryText
	default:
		p["chunk_text"] = d.ChunkText
		p["chunk_index"] = d.ChunkIndex
	}
	return p
}

// BuildChunkDocuments chunks every entry of a thread into email and
// attachment documents. Chunk indexes are dense 0..N-1 per entry, and doc ids
// are deterministic so re-runs upsert over the same points.
func BuildChunkDocuments(th threads.Thread, chunker *chunk.Chunker) []Document {
	var docs []Document
	attachmentSeq := make(map[string]int)

	for _, entry := range th.Entries {
		text := archive.CleanText(entry.Text)
		if text == "" {
			continue
		}

		kind := KindEmail
		base := entry.MessageID
		if entry.Kind == threads.EntryKindAttachment {
			kind = KindAttachment
			seq := attachmentSeq[entry.MessageID]
			attachmentSeq[entry.MessageID] = seq + 1
			base = fmt.Sprintf("%s_att_%d", entry.MessageID, seq)
		}

		for i, chunkText := range chunker.Split(text) {
			docs = append(docs, Document{
				DocID:        fmt.Sprintf("%s_chunk_%d", base, i),
				Kind:         kind,
				ThreadID:     th.ThreadID,
				MessageID:    entry.MessageID,
				Filename:     entry.Filename,
				ChunkIndex:   i,
				ChunkText:    chunkText,
				Subject:      th.Subject,
				Participants: th.Participants,
				Date:         entry.Date,
			})
		}
	}
	return docs
}

// BuildThreadDocument wraps a thread's summary as an indexable document.
func BuildThreadDocument(th threads.Thread, summary string) Document {
	return Document{
		DocID:        fmt.Sprintf("t_%s", th.ThreadID),
		Kind:         KindThreadSummary,
		ThreadID:     th.ThreadID,
		SummaryText:  summary,
		Subject:      th.Subject,
		Participants: th.Participants,
		Date:         th.FirstDate,
	}
}
