// Package query answers conversational questions over the indexed archive:
// rewrite, retrieve, reconstruct, size the prompt to a model tier, complete,
// and update memory.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theimaginaryfoundation/mail-recall/memory"
	"github.com/theimaginaryfoundation/mail-recall/provider"
	"github.com/theimaginaryfoundation/mail-recall/vecindex"
)

const answerInstructions = "You answer questions about an email archive. " +
	"Ground your answer in the supplied conversation summary, remembered facts, " +
	"and email threads. Cite thread subjects where helpful."

const ungroundedCaveat = "No archive context could be retrieved for this question. " +
	"Answer from general knowledge and say explicitly that the answer is not grounded " +
	"in the archive."

const rewriteInstructions = "Rewrite the user's message as a standalone search query. " +
	"Resolve pronouns and follow-up references using the conversation summary. " +
	"Respond with the rewritten query only."

// Searcher is the slice of the vector store the orchestrator reads through.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, k int, filter vecindex.SearchFilter) ([]vecindex.Hit, error)
	FetchByThread(ctx context.Context, collection, threadID string, limit int) ([]vecindex.Hit, error)
}

// Options configures an Orchestrator. Zero values pick the defaults below.
type Options struct {
	// Collection is the archive collection searched for thread summaries and
	// chunk documents.
	Collection string
	// SummaryK bounds how many thread summaries one turn retrieves.
	SummaryK int
	// FactK bounds how many long-term facts one turn retrieves.
	FactK int
	// ThreadFetchLimit caps chunk documents fetched per thread.
	ThreadFetchLimit int
	// ReplyReserve is the minimum completion budget a tier must leave room
	// for.
	ReplyReserve int
	// RewriteModel runs query rewriting.
	RewriteModel string
	// Temperature applies to the final answer completion.
	Temperature float64
	// SearchAttempts caps vector-search retries before the turn proceeds
	// without retrieval.
	SearchAttempts int

	Tiers  provider.TierTable
	Logger *log.Logger
}

const (
	defaultSummaryK         = 3
	defaultFactK            = 5
	defaultThreadFetchLimit = 200
	defaultReplyReserve     = 500
	defaultSearchAttempts   = 3
	searchBackoffBase       = 500 * time.Millisecond
)

func (o *Options) fill() {
	if o.SummaryK <= 0 {
		o.SummaryK = defaultSummaryK
	}
	if o.FactK <= 0 {
		o.FactK = defaultFactK
	}
	if o.ThreadFetchLimit <= 0 {
		o.ThreadFetchLimit = defaultThreadFetchLimit
	}
	if o.ReplyReserve <= 0 {
		o.ReplyReserve = defaultReplyReserve
	}
	if o.SearchAttempts <= 0 {
		o.SearchAttempts = defaultSearchAttempts
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.3
	}
	if len(o.Tiers) == 0 {
		o.Tiers = provider.DefaultTiers()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// Result is everything one answered turn produced. SeenIDs and QueryVector
// let callers chain multi-turn retrieval without recomputation.
type Result struct {
	Prompt      string
	Answer      string
	Memory      memory.State
	SeenIDs     []string
	QueryVector []float32
}

// Orchestrator drives one conversation over the archive. It is not safe for
// concurrent use; each conversation gets its own instance.
type Orchestrator struct {
	embedder  provider.Embedder
	completer provider.Completer
	searcher  Searcher
	mem       *memory.Manager
	counter   *provider.TokenCounter
	opts      Options
	log       *log.Logger

	// seen accumulates thread-summary doc ids retrieved in this
	// conversation so later turns surface new threads.
	seen     map[string]struct{}
	seenList []string
}

// New validates the dependencies and returns a ready Orchestrator.
func New(embedder provider.Embedder, completer provider.Completer, searcher Searcher, mem *memory.Manager, counter *provider.TokenCounter, opts Options) (*Orchestrator, error) {
	if embedder == nil {
		return nil, errors.New("New: embedder is nil")
	}
	if completer == nil {
		return nil, errors.New("New: completer is nil")
	}
	if searcher == nil {
		return nil, errors.New("New: searcher is nil")
	}
	if mem == nil {
		return nil, errors.New("New: memory manager is nil")
	}
	if counter == nil {
		return nil, errors.New("New: counter is nil")
	}
	if opts.Collection == "" {
		return nil, errors.New("New: Collection is empty")
	}
	if opts.RewriteModel == "" {
		return nil, errors.New("New: RewriteModel is empty")
	}
	opts.fill()

	return &Orchestrator{
		embedder:  embedder,
		completer: completer,
		searcher:  searcher,
		mem:       mem,
		counter:   counter,
		opts:      opts,
		log:       opts.Logger.With("component", "query"),
		seen:      make(map[string]struct{}),
	}, nil
}

// Answer runs one full turn. Retrieval failures degrade the turn to weaker
// grounding instead of aborting it; the only fatal errors are context
// cancellation and the final completion call itself.
func (o *Orchestrator) Answer(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("Answer: query is empty")
	}

	turn := o.mem.AddTurn()
	// Read the cached summary; regeneration happens once per turn, after the
	// answer, so a cadence turn does not pay for two structured completions.
	midTerm := o.mem.Snapshot().MidTerm

	// The query is always rewritten against the conversation summary, even
	// when it looks standalone. Over-rewriting is cheaper than missing a
	// follow-up reference.
	search := o.rewriteQuery(ctx, query, midTerm.Narrative)

	vector, err := o.embedQuery(ctx, search, query)
	if err != nil {
		o.log.Warn("query embedding failed, answering without retrieval", "err", err)
	}

	var threadTexts []string
	var facts []string
	if vector != nil {
		hits := o.searchSummaries(ctx, vector)
		for _, h := range hits {
			if _, ok := o.seen[h.ID]; ok {
				continue
			}
			o.seen[h.ID] = struct{}{}
			o.seenList = append(o.seenList, h.ID)

			threadID, _ := h.Payload["thread_id"].(string)
			if threadID == "" {
				continue
			}
			text, err := o.reconstructThread(ctx, threadID)
			if err != nil {
				o.log.Warn("thread reconstruction failed", "thread_id", threadID, "err", err)
				continue
			}
			if text != "" {
				threadTexts = append(threadTexts, text)
			}
		}

		facts, err = o.mem.RetrieveLongTerm(ctx, vector, o.opts.FactK)
		if err != nil {
			o.log.Warn("long-term retrieval failed", "err", err)
			facts = nil
		}
	}

	msgs := o.assemblePrompt(midTerm, facts, threadTexts, query)

	promptTokens := o.counter.CountMessages(msgs)
	tier, maxCompletion := o.opts.Tiers.Select(promptTokens, o.opts.ReplyReserve)
	o.log.Info("prompt sized", "turn", turn, "tokens", promptTokens, "tier", tier.Name, "max_completion", maxCompletion)

	answer, err := o.completer.Complete(ctx, tier.Name, msgs, o.opts.Temperature, maxCompletion)
	if err != nil {
		return nil, fmt.Errorf("Answer: completion: %w", err)
	}

	o.mem.ShortTerm(fmt.Sprintf("User: %s\nAssistant: %s", query, answer))
	if _, err := o.mem.MidTerm(ctx); err != nil {
		o.log.Warn("mid-term update failed", "turn", turn, "err", err)
	}
	o.mem.UpdateLongTerm()

	seen := make([]string, len(o.seenList))
	copy(seen, o.seenList)

	return &Result{
		Prompt:      renderPrompt(msgs),
		Answer:      answer,
		Memory:      o.mem.Snapshot(),
		SeenIDs:     seen,
		QueryVector: vector,
	}, nil
}

func (o *Orchestrator) rewriteQuery(ctx context.Context, query, narrative string) string {
	input := query
	if narrative != "" {
		input = fmt.Sprintf("Conversation summary:\n%s\n\nUser message:\n%s", narrative, query)
	}
	rewritten, err := o.completer.Complete(ctx, o.opts.RewriteModel, []provider.Message{
		{Role: "system", Content: rewriteInstructions},
		{Role: "user", Content: input},
	}, 0, 0)
	if err != nil {
		o.log.Warn("query rewrite failed, using original query", "err", err)
		return query
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return query
	}
	return rewritten
}

func (o *Orchestrator) embedQuery(ctx context.Context, search, original string) ([]float32, error) {
	vec, err := o.embedder.Embed(ctx, search)
	if err == nil {
		return vec, nil
	}
	if search == original {
		return nil, err
	}
	o.log.Warn("embedding rewritten query failed, retrying with original", "err", err)
	return o.embedder.Embed(ctx, original)
}

// searchSummaries retries transiently and, once attempts are exhausted,
// returns nothing so the turn proceeds with general-knowledge grounding.
func (o *Orchestrator) searchSummaries(ctx context.Context, vector []float32) []vecindex.Hit {
	filter := vecindex.SearchFilter{
		Kinds:      []string{"thread_summary"},
		ExcludeIDs: o.seenList,
	}

	backoff := searchBackoffBase
	var err error
	for attempt := 0; attempt < o.opts.SearchAttempts; attempt++ {
		var hits []vecindex.Hit
		hits, err = o.searcher.Search(ctx, o.opts.Collection, vector, o.opts.SummaryK, filter)
		if err == nil {
			return hits
		}
		if attempt == o.opts.SearchAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
	}
	o.log.Warn("summary search failed after retries, proceeding without archive context", "err", err)
	return nil
}

func (o *Orchestrator) assemblePrompt(midTerm memory.Document, facts, threadTexts []string, query string) []provider.Message {
	grounded := midTerm.Narrative != "" || len(facts) > 0 || len(threadTexts) > 0

	system := answerInstructions
	if !grounded {
		system = answerInstructions + "\n\n" + ungroundedCaveat
	}
	msgs := []provider.Message{{Role: "system", Content: system}}

	var ctxParts []string
	if midTerm.Narrative != "" {
		ctxParts = append(ctxParts, "Conversation so far:\n"+midTerm.Narrative)
	}
	if len(facts) > 0 {
		ctxParts = append(ctxParts, "Remembered facts:\n- "+strings.Join(facts, "\n- "))
	}
	if len(threadTexts) > 0 {
		ctxParts = append(ctxParts, "Relevant email threads:\n\n"+strings.Join(threadTexts, "\n\n---\n\n"))
	}
	if len(ctxParts) > 0 {
		msgs = append(msgs, provider.Message{Role: "user", Content: strings.Join(ctxParts, "\n\n")})
	}

	msgs = append(msgs, provider.Message{Role: "user", Content: query})
	return msgs
}

// reconstructThread rebuilds a thread's transcript from its primary chunk
// documents in chronological order, so the answer is grounded in full
// message text rather than the summary that surfaced the thread.
func (o *Orchestrator) reconstructThread(ctx context.Context, threadID string) (string, error) {
	hits, err := o.searcher.FetchByThread(ctx, o.opts.Collection, threadID, o.opts.ThreadFetchLimit)
	if err != nil {
		return "", err
	}
	return reconstructFromHits(hits), nil
}

type chunkRef struct {
	date       string
	messageID  string
	kindRank   int
	filename   string
	chunkIndex int64
	text       string
}

func reconstructFromHits(hits []vecindex.Hit) string {
	refs := make([]chunkRef, 0, len(hits))
	for _, h := range hits {
		text, _ := h.Payload["chunk_text"].(string)
		if text == "" {
			continue
		}
		ref := chunkRef{text: text}
		ref.date, _ = h.Payload["date"].(string)
		ref.messageID, _ = h.Payload["message_id"].(string)
		ref.filename, _ = h.Payload["filename"].(string)
		if kind, _ := h.Payload["type"].(string); kind == "attachment" {
			ref.kindRank = 1
		}
		if idx, ok := h.Payload["chunk_index"].(int64); ok {
			ref.chunkIndex = idx
		}
		refs = append(refs, ref)
	}

	sort.SliceStable(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.date != b.date {
			return a.date < b.date
		}
		if a.messageID != b.messageID {
			return a.messageID < b.messageID
		}
		if a.kindRank != b.kindRank {
			return a.kindRank < b.kindRank
		}
		if a.filename != b.filename {
			return a.filename < b.filename
		}
		return a.chunkIndex < b.chunkIndex
	})

	var parts []string
	prevKey := ""
	for _, ref := range refs {
		key := ref.messageID + "|" + ref.filename
		if key == prevKey {
			// Consecutive chunks of the same entry continue the same text.
			parts[len(parts)-1] += "\n" + ref.text
			continue
		}
		prevKey = key
		parts = append(parts, ref.text)
	}
	return strings.Join(parts, "\n\n")
}

func renderPrompt(msgs []provider.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", m.Role, m.Content))
	}
	return strings.Join(parts, "\n\n")
}
