package ai

import (
	"sync"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// Role identifies the sender of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageRef is the canonical identity of a synced message a turn
// talks about. Ids are unique only within one account, so the account
// id is part of the reference.
type MessageRef struct {
	AccountID string
	ID        string
}

func refOf(m model.Message) MessageRef {
	return MessageRef{AccountID: m.AccountID, ID: m.ID}
}

// Turn is one entry in the conversation history.
type Turn struct {
	Role    Role
	Content string

	// Refs are the messages whose transcripts this turn carries.
	// Later turns about the same messages skip re-sending them.
	Refs []MessageRef
}

const defaultMaxTurns = 20

// ConversationContext keeps the rolling turn history for multi-turn
// questions. Once the limit is hit the oldest middle turns are
// trimmed; the opening turn anchors the conversation and survives.
type ConversationContext struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

// NewConversationContext creates an empty conversation history.
func NewConversationContext() *ConversationContext {
	return &ConversationContext{maxTurns: defaultMaxTurns}
}

// AddTurn appends a turn, trimming the oldest middle turns past the
// limit.
func (c *ConversationContext) AddTurn(role Role, content string, refs []MessageRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{Role: role, Content: content, Refs: refs})

	if len(c.turns) > c.maxTurns {
		excess := len(c.turns) - c.maxTurns
		trimmed := make([]Turn, 0, c.maxTurns)
		trimmed = append(trimmed, c.turns[0])
		trimmed = append(trimmed, c.turns[1+excess:]...)
		c.turns = trimmed
	}
}

// Referenced reports whether a surviving turn already carries the
// given message. Trimmed turns no longer count: their content is gone
// from the conversation, so the message has to be sent again.
func (c *ConversationContext) Referenced(ref MessageRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.turns {
		for _, r := range t.Refs {
			if r == ref {
				return true
			}
		}
	}
	return false
}

// Turns returns a copy of the conversation history.
func (c *ConversationContext) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]Turn, len(c.turns))
	copy(result, c.turns)
	return result
}

// Reset clears the conversation history.
func (c *ConversationContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = c.turns[:0]
}

// Len returns the number of turns in the history.
func (c *ConversationContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.turns)
}
