package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/theimaginaryfoundation/mail-recall/provider"
	"github.com/theimaginaryfoundation/mail-recall/threads"
)

const summaryInstructions = "Write a concise, but detailed 2-3 sentence summary of this email thread, " +
	"containing messages and attachments in chronological order. Each block is labeled."

// SummarizeOptions tunes concurrent thread summarization.
type SummarizeOptions struct {
	Model string
	// MaxConcurrent caps simultaneous completion calls.
	MaxConcurrent int
	// MaxPromptTokens truncates a thread transcript before summarization.
	MaxPromptTokens int
	// ProgressStep logs progress every N completed threads.
	ProgressStep int
	Temperature  float64

	Logger *log.Logger
}

const defaultMaxPromptTokens = 3000

func (o *SummarizeOptions) fill() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultMaxConcurrent
	}
	if o.MaxPromptTokens <= 0 {
		o.MaxPromptTokens = defaultMaxPromptTokens
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = defaultProgressStep
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.2
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// SummarizeThreads produces one summary per thread with bounded concurrency.
// A thread whose summarization fails is logged and counted; the run never
// aborts on a single thread. Threads with no text are counted skipped.
func SummarizeThreads(ctx context.Context, completer provider.Completer, counter *provider.TokenCounter, ths []threads.Thread, opts SummarizeOptions) (map[string]string, Tally, error) {
	opts.fill()
	logger := opts.Logger.With("component", "summarizer")

	var mu sync.Mutex
	summaries := make(map[string]string, len(ths))

	var summarized, failed, skipped, done atomic.Int64
	total := len(ths)

	sem := make(chan struct{}, opts.MaxConcurrent)
	var wg sync.WaitGroup
	for _, th := range ths {
		wg.Add(1)
		go func(th threads.Thread) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				return
			default:
			}

			text := strings.TrimSpace(th.FullText())
			if text == "" {
				skipped.Add(1)
				return
			}
			text = counter.Truncate(text, opts.MaxPromptTokens)

			summary, err := completer.Complete(ctx, opts.Model, []provider.Message{
				{Role: "system", Content: summaryInstructions},
				{Role: "user", Content: text},
			}, opts.Temperature, 0)
			if err != nil {
				failed.Add(1)
				logger.Error("thread summarization failed", "thread_id", th.ThreadID, "err", err)
				return
			}

			mu.Lock()
			summaries[th.ThreadID] = strings.TrimSpace(summary)
			mu.Unlock()
			summarized.Add(1)

			if n := done.Add(1); n%int64(opts.ProgressStep) == 0 || n == int64(total) {
				logger.Info("summarization progress", "done", n, "total", total)
			}
		}(th)
	}
	wg.Wait()

	tally := Tally{
		Succeeded: int(summarized.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	logger.Info("summarization finished",
		"summarized", tally.Succeeded, "failed", tally.Failed, "skipped", tally.Skipped)
	return summaries, tally, ctx.Err()
}
