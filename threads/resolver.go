// Package threads reconstructs conversation threads from reply and reference
// headers and assembles their content in chronological order.
package threads

import (
	"sort"

	"github.com/theimaginaryfoundation/mail-recall/archive"
)

// ThreadMap maps every normalized message id to the id of its thread root.
// A root is a message with no resolvable parent; it maps to itself.
type ThreadMap map[string]string

// BuildThreadMap resolves the thread root for every message.
//
// For each message it follows in_reply_to pointers while they reference a
// known message, memoizing resolved roots so long chains are walked once.
// When in_reply_to does not resolve, the first entry of the references list
// that names a known message is used instead. When neither resolves, the
// message is its own root.
//
// Reply chains in real archives contain cycles (clients that set
// In-Reply-To to the message itself, or to a descendant). A walk that
// revisits an id terminates at the message that closed the loop, which
// becomes the root for everything on the walk. Messages are processed in
// sorted id order so the result is independent of input order.
func BuildThreadMap(msgs []archive.Message) ThreadMap {
	known := make(map[string]archive.Message, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		id := archive.NormalizeID(m.ID)
		if id == "" {
			continue
		}
		if _, dup := known[id]; dup {
			continue
		}
		known[id] = m
		ids = append(ids, id)
	}
	sort.Strings(ids)

	roots := make(ThreadMap, len(ids))
	for _, id := range ids {
		if _, done := roots[id]; done {
			continue
		}
		resolveRoot(id, known, roots)
	}
	return roots
}

// resolveRoot walks parent pointers from id, records the discovered root for
// every id on the path, and returns it.
func resolveRoot(start string, known map[string]archive.Message, roots ThreadMap) string {
	path := []string{start}
	onPath := map[string]struct{}{start: {}}

	current := start
	root := ""
	for {
		parent := parentOf(known[current], known)
		if parent == "" {
			root = current
			break
		}
		if r, ok := roots[parent]; ok {
			root = r
			break
		}
		if _, looped := onPath[parent]; looped {
			// Cycle: the walk came back to an id it already visited. The
			// message that closed the loop becomes the root.
			root = current
			break
		}
		path = append(path, parent)
		onPath[parent] = struct{}{}
		current = parent
	}

	for _, id := range path {
		roots[id] = root
	}
	return root
}

// parentOf returns the id of the message m replies to, but only when that id
// names a message present in the set. in_reply_to wins; otherwise the first
// known entry of references is used.
func parentOf(m archive.Message, known map[string]archive.Message) string {
	if p := archive.NormalizeID(m.InReplyTo); p != "" {
		if _, ok := known[p]; ok {
			return p
		}
	}
	for _, ref := range m.References {
		if r := archive.NormalizeID(ref); r != "" {
			if _, ok := known[r]; ok {
				return r
			}
		}
	}
	return ""
}
