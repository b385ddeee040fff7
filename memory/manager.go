// Package memory keeps per-conversation state in three tiers: raw recent
// turns under a token budget, a model-curated running summary, and
// persistent facts in a per-conversation vector collection.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/theimaginaryfoundation/mail-recall/provider"
	"github.com/theimaginaryfoundation/mail-recall/vecindex"
)

const mergeInstructions = "You maintain the memory of an ongoing conversation. " +
	"Merge the existing summary with the recent turns into an updated summary. " +
	"Keep the narrative short and factual, and list every concrete, standalone fact " +
	"worth remembering long term. Do not drop facts present in the existing summary."

// Document is the mid-term memory record: a running narrative plus the
// discrete facts extracted so far.
type Document struct {
	Narrative string   `json:"narrative" jsonschema_description:"Running summary of the conversation so far."`
	Facts     []string `json:"facts" jsonschema_description:"Discrete, standalone facts worth remembering."`
}

// State is a point-in-time snapshot of a conversation's memory.
type State struct {
	TurnCount int
	ShortTerm []string
	MidTerm   Document
}

// FactStore is the slice of the vector index long-term memory writes
// through.
type FactStore interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, pts []vecindex.Point) (vecindex.UpsertOutcome, error)
	Search(ctx context.Context, collection string, vector []float32, k int, filter vecindex.SearchFilter) ([]vecindex.Hit, error)
}

// Options configures a Manager. Zero values pick the defaults below.
type Options struct {
	// ConversationID names the per-conversation long-term collection.
	ConversationID string
	// Model runs mid-term summary regeneration.
	Model string
	// ShortTermBudget is the token ceiling for retained raw turns.
	ShortTermBudget int
	// RefreshInterval regenerates mid-term memory every N turns.
	RefreshInterval int
	// QueueDepth bounds pending long-term update tasks.
	QueueDepth int

	Logger *log.Logger
}

const (
	defaultShortTermBudget = 2000
	defaultRefreshInterval = 3
	defaultQueueDepth      = 8
)

func (o *Options) fill() {
	if o.ShortTermBudget <= 0 {
		o.ShortTermBudget = defaultShortTermBudget
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = defaultRefreshInterval
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = defaultQueueDepth
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// Manager owns one conversation's tiered memory. Short- and mid-term state
// live in process; long-term facts are written by a single background worker
// that owns the per-conversation collection exclusively, so no locking is
// needed around index writes.
type Manager struct {
	completer provider.Completer
	embedder  provider.Embedder
	store     FactStore
	counter   *provider.TokenCounter
	opts      Options
	log       *log.Logger

	mu    sync.Mutex
	state State

	collection string
	tasks      chan Document
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewManager starts the long-term worker and returns a ready Manager.
// Callers must Close it to drain pending long-term writes.
func NewManager(completer provider.Completer, embedder provider.Embedder, store FactStore, counter *provider.TokenCounter, opts Options) (*Manager, error) {
	if completer == nil {
		return nil, errors.New("NewManager: completer is nil")
	}
	if embedder == nil {
		return nil, errors.New("NewManager: embedder is nil")
	}
	if store == nil {
		return nil, errors.New("NewManager: store is nil")
	}
	if counter == nil {
		return nil, errors.New("NewManager: counter is nil")
	}
	if opts.ConversationID == "" {
		return nil, errors.New("NewManager: ConversationID is empty")
	}
	if opts.Model == "" {
		return nil, errors.New("NewManager: Model is empty")
	}
	opts.fill()

	m := &Manager{
		completer:  completer,
		embedder:   embedder,
		store:      store,
		counter:    counter,
		opts:       opts,
		log:        opts.Logger.With("component", "memory", "conversation", opts.ConversationID),
		collection: "mem_" + opts.ConversationID,
		tasks:      make(chan Document, opts.QueueDepth),
	}
	m.wg.Add(1)
	go m.longTermWorker()
	return m, nil
}

// AddTurn advances the turn counter and returns the new count.
func (m *Manager) AddTurn() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TurnCount++
	return m.state.TurnCount
}

// ShortTerm appends the new turn, then evicts oldest turns until the total
// token count fits the budget again. The newest turn is always retained even
// when it alone exceeds the budget. Returns a copy of the retained window.
func (m *Manager) ShortTerm(newTurn string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ShortTerm = append(m.state.ShortTerm, newTurn)

	total := 0
	for _, t := range m.state.ShortTerm {
		total += m.counter.Count(t)
	}
	for len(m.state.ShortTerm) > 1 && total > m.opts.ShortTermBudget {
		total -= m.counter.Count(m.state.ShortTerm[0])
		m.state.ShortTerm = m.state.ShortTerm[1:]
	}

	out := make([]string, len(m.state.ShortTerm))
	copy(out, m.state.ShortTerm)
	return out
}

// MidTerm returns the current mid-term document, regenerating it first when
// it is empty or the turn counter hits the refresh cadence. Regeneration
// merges the cached narrative with the short-term window through the
// completion service; on failure the cached document is returned alongside
// the error so the turn can proceed on stale memory.
func (m *Manager) MidTerm(ctx context.Context) (Document, error) {
	m.mu.Lock()
	cached := m.state.MidTerm
	turns := m.state.TurnCount
	window := strings.Join(m.state.ShortTerm, "\n")
	m.mu.Unlock()

	fresh := cached.Narrative == "" || turns%m.opts.RefreshInterval == 0
	if !fresh {
		return cached, nil
	}
	if strings.TrimSpace(window) == "" {
		return cached, nil
	}

	input := fmt.Sprintf("Existing summary:\n%s\n\nExisting facts:\n%s\n\nRecent turns:\n%s",
		cached.Narrative, strings.Join(cached.Facts, "\n"), window)

	raw, err := m.completer.CompleteStructured(ctx, m.opts.Model, "conversation_memory",
		provider.GenerateSchema[Document](), mergeInstructions, input, 0)
	if err != nil {
		return cached, fmt.Errorf("MidTerm: regenerate: %w", err)
	}
	var doc Document
	if err := provider.DecodeModelJSON(raw, &doc); err != nil {
		return cached, fmt.Errorf("MidTerm: regenerate: %w", err)
	}

	m.mu.Lock()
	m.state.MidTerm = doc
	m.mu.Unlock()
	return doc, nil
}

// RefreshDue reports whether the current turn is on the long-term refresh
// cadence.
func (m *Manager) RefreshDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TurnCount%m.opts.RefreshInterval == 0
}

// Snapshot returns a deep copy of the current memory state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{TurnCount: m.state.TurnCount, MidTerm: m.state.MidTerm}
	s.ShortTerm = make([]string, len(m.state.ShortTerm))
	copy(s.ShortTerm, m.state.ShortTerm)
	s.MidTerm.Facts = make([]string, len(m.state.MidTerm.Facts))
	copy(s.MidTerm.Facts, m.state.MidTerm.Facts)
	return s
}

// Close stops accepting long-term updates and waits for the worker to drain
// what was already queued.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.tasks) })
	m.wg.Wait()
}
