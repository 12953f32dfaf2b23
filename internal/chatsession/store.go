package chatsession

import (
	"sort"
	"sync"

	"univmarket/internal/domain/entity"
)

// MessageStore is the ordered message log of one room. Only the Reconciler writes to it.
type MessageStore struct {
	mu       sync.RWMutex
	messages []entity.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Messages returns a copy of the log in display order.
func (s *MessageStore) Messages() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *MessageStore) Last() (entity.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return entity.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Continuous reports whether message i continues a run started by the message before it.
func (s *MessageStore) Continuous(i int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i <= 0 || i >= len(s.messages) {
		return false
	}
	return IsContinuous(s.messages[i-1], s.messages[i])
}

// IsContinuous reports whether cur should be grouped under prev: same sender, both user
// messages, and cur sent within entity.ContinuousWindow of prev.
func IsContinuous(prev, cur entity.Message) bool {
	if prev.SenderID == "" || prev.SenderID != cur.SenderID {
		return false
	}
	if prev.IsSystem() || cur.IsSystem() {
		return false
	}
	gap := cur.CreatedAt.Sub(prev.CreatedAt)
	return gap >= 0 && gap < entity.ContinuousWindow
}

// insert places msg after every message with the same or an earlier timestamp.
func (s *MessageStore) insert(msg entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	s.messages = append(s.messages, entity.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
}

func (s *MessageStore) replace(messages []entity.Message) {
	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
}
