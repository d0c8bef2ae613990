package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

func TestCreditCostRoundsUp(t *testing.T) {
	cases := []struct {
		in, out int
		want    int64
	}{
		{0, 0, 1},     // minimum one credit
		{100, 200, 1}, // under one credit's worth
		{600, 500, 2},
		{1000, 0, 1},
		{1000, 1, 2},
	}
	for _, tc := range cases {
		got := creditCost(apiUsage{InputTokens: tc.in, OutputTokens: tc.out})
		if got != tc.want {
			t.Errorf("creditCost(%d+%d) = %d, want %d", tc.in, tc.out, got, tc.want)
		}
	}
}

func TestBuildSummaryPromptIncludesMessages(t *testing.T) {
	msgs := []model.Message{
		{
			From:    model.Address{Name: "Alice", Handle: "alice@example.com"},
			Subject: "Q2 planning",
			Body:    "draft attached",
			Date:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			From: model.Address{Handle: "bob@example.com"},
			Body: "",
			Date: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		},
	}

	prompt := buildSummaryPrompt(msgs)

	for _, want := range []string{"Alice", "alice@example.com", "Q2 planning", "draft attached", "(no content)"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected %q in prompt", want)
		}
	}
}

func TestJoinTextConcatenatesTextBlocks(t *testing.T) {
	blocks := []apiContentBlock{
		{Type: "text", Text: "part one "},
		{Type: "thinking", Text: "ignored"},
		{Type: "text", Text: "part two"},
	}
	if got := joinText(blocks); got != "part one part two" {
		t.Fatalf("unexpected join: %q", got)
	}
}

func TestConversationContextTrimsKeepingFirst(t *testing.T) {
	c := NewConversationContext()
	c.AddTurn(RoleUser, "initial context", nil)
	for i := 0; i < 30; i++ {
		c.AddTurn(RoleAssistant, "filler", nil)
	}

	turns := c.Turns()
	if len(turns) > 20 {
		t.Fatalf("expected history capped at 20, got %d", len(turns))
	}
	if turns[0].Content != "initial context" {
		t.Fatalf("trimming must keep the first turn, got %q", turns[0].Content)
	}
}

func TestConversationContextReset(t *testing.T) {
	c := NewConversationContext()
	c.AddTurn(RoleUser, "hello", nil)
	c.Reset()
	if c.Len() != 0 {
		t.Fatalf("expected empty context after reset, got %d", c.Len())
	}
}

func TestBuildAskPromptIncludesOnlyFreshTranscripts(t *testing.T) {
	fresh := []model.Message{
		{
			From:    model.Address{Name: "Alice", Handle: "alice@example.com"},
			Subject: "deploy window",
			Body:    "Friday 6pm works",
			Date:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	prompt := buildAskPrompt("when is the deploy?", fresh)
	for _, want := range []string{"alice@example.com", "deploy window", "Friday 6pm works", "when is the deploy?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected %q in prompt", want)
		}
	}

	if got := buildAskPrompt("follow-up?", nil); got != "follow-up?" {
		t.Fatalf("no fresh messages means the bare question, got %q", got)
	}
}

func TestSelectFreshSkipsReferencedMessages(t *testing.T) {
	c := New("key", "", 0)
	msg := model.Message{ID: "m1", AccountID: "acct-1", Body: "original"}

	fresh, refs := c.selectFresh([]model.Message{msg, msg})
	if len(fresh) != 1 {
		t.Fatalf("duplicates within one call collapse, got %d fresh", len(fresh))
	}
	if len(refs) != 1 || refs[0] != (MessageRef{AccountID: "acct-1", ID: "m1"}) {
		t.Fatalf("unexpected refs %v", refs)
	}

	c.context.AddTurn(RoleUser, "about m1", refs)

	fresh, refs = c.selectFresh([]model.Message{msg})
	if len(fresh) != 0 {
		t.Fatal("a message already in the conversation is not fresh")
	}
	if len(refs) != 1 {
		t.Fatalf("the turn still records what it refers to, got %v", refs)
	}
}

func TestReferencedForgetsTrimmedTurns(t *testing.T) {
	c := NewConversationContext()
	ref := MessageRef{AccountID: "acct-1", ID: "m1"}

	c.AddTurn(RoleUser, "opening", nil)
	c.AddTurn(RoleUser, "about m1", []MessageRef{ref})
	if !c.Referenced(ref) {
		t.Fatal("expected the message to be referenced")
	}

	// Push the referencing turn out of the window.
	for i := 0; i < 25; i++ {
		c.AddTurn(RoleAssistant, "filler", nil)
	}
	if c.Referenced(ref) {
		t.Fatal("a trimmed turn's content is gone, its refs must not linger")
	}
}
