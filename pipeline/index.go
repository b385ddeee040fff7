package pipeline

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/theimaginaryfoundation/mail-recall/vecindex"
)

// Index is the slice of the vector store the pipeline writes through.
type Index interface {
	Upsert(ctx context.Context, collection string, pts []vecindex.Point) (vecindex.UpsertOutcome, error)
}

// IndexOptions tunes batched upserts into the vector index.
type IndexOptions struct {
	// BatchSize bounds how many points travel in one upsert call.
	BatchSize int

	Logger *log.Logger
}

const defaultIndexBatchSize = 64

func (o *IndexOptions) fill() {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultIndexBatchSize
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// UpsertDocuments writes every vectored document into the collection in
// batches. Documents that never received a vector are counted skipped, not
// failed; a batch that fails outright is logged and the remaining batches
// still go through. Doc ids are deterministic, so re-running overwrites
// earlier points instead of duplicating them.
func UpsertDocuments(ctx context.Context, idx Index, collection string, docs []Document, opts IndexOptions) (Tally, error) {
	opts.fill()
	logger := opts.Logger.With("component", "indexer", "collection", collection)

	var tally Tally

	pts := make([]vecindex.Point, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Vector) == 0 {
			tally.Skipped++
			continue
		}
		pts = append(pts, vecindex.Point{
			ID:      doc.DocID,
			Vector:  doc.Vector,
			Payload: doc.Payload(),
		})
	}

	for start := 0; start < len(pts); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return tally, err
		}

		end := start + opts.BatchSize
		if end > len(pts) {
			end = len(pts)
		}
		batch := pts[start:end]

		outcome, err := idx.Upsert(ctx, collection, batch)
		if err != nil {
			tally.Failed += len(batch)
			logger.Error("batch upsert failed", "size", len(batch), "err", err)
			continue
		}
		tally.Succeeded += outcome.Succeeded
		tally.Failed += len(outcome.Failed)
		for docID, ferr := range outcome.Failed {
			logger.Error("point upsert failed", "doc_id", docID, "err", ferr)
		}
	}

	logger.Info("indexing finished",
		"indexed", tally.Succeeded, "failed", tally.Failed, "skipped", tally.Skipped)
	return tally, ctx.Err()
}
