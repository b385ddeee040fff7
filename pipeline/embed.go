package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theimaginaryfoundation/mail-recall/provider"
)

// EmbedOptions tunes the embedding worker pool. Zero values pick the
// defaults below.
type EmbedOptions struct {
	// MaxConcurrent caps simultaneous outstanding embedding calls.
	MaxConcurrent int
	// BatchSize bounds how many documents are in flight per batch, keeping
	// memory proportional to concurrency rather than corpus size.
	BatchSize int
	// ProgressStep logs progress every N completed documents.
	ProgressStep int
	// MaxAttempts caps retries per document before it is marked failed.
	MaxAttempts int
	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration

	Logger *log.Logger
}

const (
	defaultMaxConcurrent = 8
	defaultProgressStep  = 50
	defaultMaxAttempts   = 3
	defaultBaseBackoff   = time.Second
)

func (o *EmbedOptions) fill() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultMaxConcurrent
	}
	if o.BatchSize <= 0 {
		o.BatchSize = o.MaxConcurrent * 2
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = defaultProgressStep
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = defaultBaseBackoff
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// Tally is the final per-document accounting of a pipeline run.
type Tally struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// EmbedDocuments fills in the vector of every document that has embeddable
// text, with at most opts.MaxConcurrent outstanding service calls.
//
// Per-document failures are retried with exponential backoff up to
// opts.MaxAttempts; an exhausted document is counted failed and its siblings
// proceed. Documents without a usable text field are counted skipped.
// Documents that already carry a vector are re-embedded and overwritten, so
// repeated runs converge on the current text.
//
// The only error returned is context cancellation; everything else is
// reported through the tally.
func EmbedDocuments(ctx context.Context, embedder provider.Embedder, docs []*Document, opts EmbedOptions) (Tally, error) {
	opts.fill()
	logger := opts.Logger.With("component", "pipeline")

	var embedded, failed, skipped, done atomic.Int64
	total := len(docs)

	for start := 0; start < len(docs); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return tallyOf(&embedded, &failed, &skipped), err
		}

		end := start + opts.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		sem := make(chan struct{}, opts.MaxConcurrent)
		var wg sync.WaitGroup
		for _, doc := range batch {
			wg.Add(1)
			go func(doc *Document) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				select {
				case <-ctx.Done():
					return
				default:
				}

				text, ok := doc.EmbeddingText()
				if !ok {
					skipped.Add(1)
					logger.Warn("document has no embeddable text, skipping", "doc_id", doc.DocID, "kind", doc.Kind)
					return
				}

				vec, err := embedWithBackoff(ctx, embedder, text, opts)
				if err != nil {
					failed.Add(1)
					logger.Error("embedding failed after retries", "doc_id", doc.DocID, "err", err)
					return
				}
				doc.Vector = vec
				embedded.Add(1)

				if n := done.Add(1); n%int64(opts.ProgressStep) == 0 || n == int64(total) {
					logger.Info("embedding progress", "done", n, "total", total)
				}
			}(doc)
		}
		wg.Wait()
	}

	tally := tallyOf(&embedded, &failed, &skipped)
	logger.Info("embedding finished",
		"embedded", tally.Succeeded, "failed", tally.Failed, "skipped", tally.Skipped)
	return tally, ctx.Err()
}

func embedWithBackoff(ctx context.Context, embedder provider.Embedder, text string, opts EmbedOptions) ([]float32, error) {
	backoff := opts.BaseBackoff
	var err error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		var vec []float32
		vec, err = embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, err
}

func tallyOf(embedded, failed, skipped *atomic.Int64) Tally {
	return Tally{
		Succeeded: int(embedded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
}
