package imapmail

import (
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

func TestThreadKeyStripsReplyPrefixes(t *testing.T) {
	cases := []struct {
		subject string
		want    string
	}{
		{"Hello", "hello"},
		{"Re: Hello", "hello"},
		{"RE: Hello", "hello"},
		{"Fwd: Hello", "hello"},
		{"Re: Fwd: Re: Hello", "hello"},
		{"Fw: budget", "budget"},
		{"  Re:   spaced  ", "spaced"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := threadKey(tc.subject); got != tc.want {
			t.Errorf("threadKey(%q) = %q, want %q", tc.subject, got, tc.want)
		}
	}
}

func TestThreadKeyGroupsConversation(t *testing.T) {
	original := threadKey("Budget review")
	reply := threadKey("Re: Budget review")
	forward := threadKey("Fwd: Re: Budget review")

	if original != reply || reply != forward {
		t.Fatalf("conversation fragments diverged: %q %q %q", original, reply, forward)
	}
	if threadKey("Different topic") == original {
		t.Fatal("unrelated subjects must not share a thread")
	}
}

func TestEnvelopeToMessageMapsFlags(t *testing.T) {
	a := NewAdapter(Credentials{Username: "me@example.com"})
	account := model.Account{ID: "acct-imap", ProviderType: model.ProviderIMAP}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	env := Envelope{
		UID:     imap.UID(42),
		Subject: "Re: standup notes",
		From:    model.Address{Name: "Alice", Handle: "alice@example.com"},
		To:      []model.Address{{Handle: "me@example.com"}},
		Date:    now.Add(-time.Hour),
		Flags:   []string{`\Seen`, `\Flagged`},
	}

	msg := a.envelopeToMessage(env, account, now)

	if msg.ID != "42" {
		t.Errorf("expected UID as id, got %q", msg.ID)
	}
	if msg.ThreadID != "standup notes" {
		t.Errorf("expected normalized thread key, got %q", msg.ThreadID)
	}
	if !msg.Read || !msg.Flagged {
		t.Errorf("flags not mapped: read=%v flagged=%v", msg.Read, msg.Flagged)
	}
	if !msg.ContentMissing() {
		t.Error("envelope fetch must leave content missing")
	}
	if len(msg.Labels) == 0 {
		t.Error("normalization must default labels")
	}
}

func TestEnvelopeToMessageDefaultsDate(t *testing.T) {
	a := NewAdapter(Credentials{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := a.envelopeToMessage(Envelope{UID: imap.UID(1)}, model.Account{ID: "x"}, now)
	if !msg.Date.Equal(now) {
		t.Fatalf("expected missing date to default to now, got %v", msg.Date)
	}
}

func TestSearchCriteriaMapsAllFields(t *testing.T) {
	seen := false
	flagged := true
	f := provider.Filter{
		Since:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Before:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		From:    "alice",
		To:      "me",
		Subject: "report",
		Seen:    &seen,
		Flagged: &flagged,
	}

	c := searchCriteria(f)

	if c.Since.IsZero() || c.Before.IsZero() {
		t.Error("date window not mapped")
	}
	if len(c.Header) != 3 {
		t.Fatalf("expected 3 header criteria, got %d", len(c.Header))
	}
	hasFlag := func(flags []imap.Flag, want imap.Flag) bool {
		for _, fl := range flags {
			if fl == want {
				return true
			}
		}
		return false
	}
	if !hasFlag(c.NotFlag, imap.FlagSeen) {
		t.Error("Seen=false must map to NOT \\Seen")
	}
	if !hasFlag(c.Flag, imap.FlagFlagged) {
		t.Error("Flagged=true must map to \\Flagged")
	}
}

func TestSearchCriteriaEmptyFilter(t *testing.T) {
	c := searchCriteria(provider.Filter{})
	if !c.Since.IsZero() || len(c.Header) != 0 || len(c.Flag) != 0 || len(c.NotFlag) != 0 {
		t.Fatalf("empty filter must map to empty criteria: %+v", c)
	}
}
