package inbox

import (
	"sort"
	"sync"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// Store owns the working set of canonical messages. All mutation
// funnels through ReplaceAll and MergeIn so concurrent sync passes can
// never produce torn writes; readers get copies.
type Store struct {
	mu       sync.RWMutex
	messages []model.Message
}

// NewStore creates an empty canonical store.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current message set.
func (s *Store) Snapshot() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ReplaceAll swaps the entire working set. This is the orchestrator's
// once-per-pass write.
func (s *Store) ReplaceAll(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = msgs
}

// MergeIn merges a batch into the working set atomically and returns
// the resulting size. Placeholder sends confirmed by the batch are
// dropped.
func (s *Store) MergeIn(batch []model.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = ReconcilePlaceholders(Merge(s.messages, batch))
	return len(s.messages)
}

// Len returns the current message count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Incomplete returns the messages fetched headers-only, still awaiting
// content completion.
func (s *Store) Incomplete() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Message
	for _, m := range s.messages {
		if m.ContentMissing() {
			out = append(out, m)
		}
	}
	return out
}

// Contacts projects the message set into per-participant contacts with
// rolling last-message state and unread counts. Contacts are
// recomputed on every call, never mutated.
func (s *Store) Contacts() []model.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byHandle := make(map[string]*model.Contact)
	for _, m := range s.messages {
		participants := make([]model.Address, 0, len(m.To)+1)
		if m.From.Handle != "" {
			participants = append(participants, m.From)
		}
		participants = append(participants, m.To...)

		for _, p := range participants {
			c, ok := byHandle[p.Handle]
			if !ok {
				c = &model.Contact{Handle: p.Handle}
				byHandle[p.Handle] = c
			}
			if c.Name == "" && p.Name != "" {
				c.Name = p.Name
			}
			if m.Date.After(c.LastMessageTime) {
				c.LastMessageTime = m.Date
				c.LastMessage = m.Subject
				if c.LastMessage == "" {
					c.LastMessage = m.Body
				}
			}
			// Unread counts track messages received from the contact.
			if !m.Read && p.Handle == m.From.Handle {
				c.UnreadCount++
			}
		}
	}

	out := make([]model.Contact, 0, len(byHandle))
	for _, c := range byHandle {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}
