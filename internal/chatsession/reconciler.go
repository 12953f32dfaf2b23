package chatsession

import (
	"sort"
	"strconv"
	"sync"

	"univmarket/internal/domain/entity"
)

// Reconciler merges live pushes and fallback history into one MessageStore without
// duplicates.
type Reconciler struct {
	mu    sync.Mutex
	store *MessageStore
	seen  map[string]struct{}
}

func NewReconciler(store *MessageStore) *Reconciler {
	return &Reconciler{
		store: store,
		seen:  make(map[string]struct{}),
	}
}

func (r *Reconciler) Store() *MessageStore {
	return r.store
}

// DedupKey identifies a logical message. Server IDs win; messages without one fall back
// to sender, content and timestamp, so two identical texts sent at the same instant
// collapse into one.
func DedupKey(msg entity.Message) string {
	if msg.ID != "" {
		return "id:" + msg.ID
	}
	return msg.SenderID + "|" + msg.Content + "|" + strconv.FormatInt(msg.CreatedAt.UnixNano(), 10)
}

// IngestPush adds one pushed message in timestamp order. It reports false when the
// message was already present.
func (r *Reconciler) IngestPush(msg entity.Message) bool {
	key := DedupKey(msg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	r.store.insert(msg)
	return true
}

// IngestFallbackBatch replaces the whole store with msgs, which must be the complete
// history of the room. Later duplicates in msgs are dropped.
func (r *Reconciler) IngestFallbackBatch(msgs []entity.Message) {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]entity.Message, 0, len(msgs))
	for _, msg := range msgs {
		key := DedupKey(msg)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = seen
	r.store.replace(out)
}
