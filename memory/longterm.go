package memory

import (
	"context"
	"time"

	"github.com/theimaginaryfoundation/mail-recall/vecindex"
)

const longTermTimeout = 2 * time.Minute

// UpdateLongTerm enqueues the current mid-term document for the background
// worker and returns immediately. Writes follow the same turn cadence as
// mid-term regeneration, so off-cadence calls are no-ops. When the queue is
// full the update is dropped; the next cadence hit carries the merged facts
// anyway, so nothing is lost for good.
func (m *Manager) UpdateLongTerm() {
	if !m.RefreshDue() {
		return
	}
	m.mu.Lock()
	doc := m.state.MidTerm
	m.mu.Unlock()
	if len(doc.Facts) == 0 {
		return
	}

	select {
	case m.tasks <- doc:
	default:
		m.log.Warn("long-term queue full, dropping update", "facts", len(doc.Facts))
	}
}

// RetrieveLongTerm runs a k-NN lookup over the conversation's fact
// collection. A conversation that has never written long-term memory has no
// collection yet; that is an empty result, not an error.
func (m *Manager) RetrieveLongTerm(ctx context.Context, vector []float32, k int) ([]string, error) {
	exists, err := m.store.CollectionExists(ctx, m.collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	hits, err := m.store.Search(ctx, m.collection, vector, k, vecindex.SearchFilter{})
	if err != nil {
		return nil, err
	}
	facts := make([]string, 0, len(hits))
	for _, h := range hits {
		if fact, ok := h.Payload["fact"].(string); ok && fact != "" {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}

// longTermWorker is the only writer of the per-conversation collection. It
// creates the collection lazily on first use, embeds each fact, and upserts
// with fact-derived ids, so replaying a document is idempotent and the store
// only ever grows.
func (m *Manager) longTermWorker() {
	defer m.wg.Done()

	ready := false
	for doc := range m.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), longTermTimeout)
		if !ready {
			if err := m.store.EnsureCollection(ctx, m.collection, m.embedder.Dimensions()); err != nil {
				m.log.Error("long-term collection setup failed", "err", err)
				cancel()
				continue
			}
			ready = true
		}
		m.writeFacts(ctx, doc.Facts)
		cancel()
	}
}

func (m *Manager) writeFacts(ctx context.Context, facts []string) {
	pts := make([]vecindex.Point, 0, len(facts))
	for _, fact := range facts {
		vec, err := m.embedder.Embed(ctx, fact)
		if err != nil {
			m.log.Error("fact embedding failed", "err", err)
			continue
		}
		pts = append(pts, vecindex.Point{
			ID:     fact,
			Vector: vec,
			Payload: map[string]any{
				"type": "fact",
				"fact": fact,
			},
		})
	}
	if len(pts) == 0 {
		return
	}

	outcome, err := m.store.Upsert(ctx, m.collection, pts)
	if err != nil {
		m.log.Error("long-term upsert failed", "err", err)
		return
	}
	if len(outcome.Failed) > 0 {
		m.log.Warn("long-term upsert partially failed", "failed", len(outcome.Failed))
	}
	m.log.Debug("long-term facts written", "count", outcome.Succeeded)
}
