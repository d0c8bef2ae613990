package inbox

import (
	"testing"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

func msg(accountID, id string, date time.Time) model.Message {
	return model.Message{
		ID:        id,
		AccountID: accountID,
		From:      model.Address{Name: "Sender", Handle: "sender@example.com"},
		To:        []model.Address{{Handle: "me@example.com"}},
		Subject:   "subject " + id,
		Body:      "body " + id,
		Date:      date,
		Labels:    []string{model.LabelInbox},
	}
}

func TestMergeDeduplicatesByAccountAndID(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	existing := []model.Message{
		msg("acct-1", "m1", base),
		msg("acct-1", "m2", base.Add(time.Minute)),
	}
	incoming := []model.Message{
		msg("acct-1", "m2", base.Add(time.Minute)),
		msg("acct-1", "m3", base.Add(2*time.Minute)),
	}

	merged := Merge(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("expected 3 messages after merge, got %d", len(merged))
	}
}

func TestMergeSameIDDifferentAccountsStayDistinct(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	merged := Merge(
		[]model.Message{msg("acct-1", "m1", base)},
		[]model.Message{msg("acct-2", "m1", base)},
	)
	if len(merged) != 2 {
		t.Fatalf("expected ids to collide only within one account, got %d messages", len(merged))
	}
}

func TestMergeIncomingWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old := msg("acct-1", "m1", base)
	old.Read = false

	updated := old
	updated.Read = true

	merged := Merge([]model.Message{old}, []model.Message{updated})
	if len(merged) != 1 {
		t.Fatalf("expected 1 message, got %d", len(merged))
	}
	if !merged[0].Read {
		t.Fatal("expected incoming read state to win")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []model.Message{
		msg("acct-1", "m1", base),
		msg("acct-1", "m2", base.Add(time.Minute)),
	}

	once := Merge(nil, batch)
	twice := Merge(once, batch)

	if len(once) != len(twice) {
		t.Fatalf("re-merging the same batch changed size: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID || once[i].AccountID != twice[i].AccountID {
			t.Fatalf("re-merging the same batch changed order at %d", i)
		}
	}
}

func TestMergePreservesFetchedBody(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	full := msg("acct-1", "m1", base)
	full.Body = "the full body"
	full.Attachments = []model.Attachment{{ID: "part-1", Filename: "a.pdf"}}

	headersOnly := msg("acct-1", "m1", base)
	headersOnly.Body = ""
	headersOnly.HTMLBody = ""
	headersOnly.Attachments = nil
	headersOnly.Read = true

	merged := Merge([]model.Message{full}, []model.Message{headersOnly})
	if len(merged) != 1 {
		t.Fatalf("expected 1 message, got %d", len(merged))
	}
	got := merged[0]
	if got.Body != "the full body" {
		t.Errorf("headers-only update erased the body: %q", got.Body)
	}
	if len(got.Attachments) != 1 {
		t.Errorf("headers-only update erased attachments")
	}
	if !got.Read {
		t.Errorf("metadata from the incoming record should still win")
	}
}

func TestMergeSortsNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	merged := Merge(nil, []model.Message{
		msg("acct-1", "old", base.Add(-time.Hour)),
		msg("acct-1", "new", base),
		msg("acct-1", "mid", base.Add(-time.Minute)),
	})

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if merged[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, merged[i].ID)
		}
	}
}

func TestReconcilePlaceholdersDropsConfirmedSend(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	placeholder := msg("acct-1", "sent-4f2a0c1e", base)
	placeholder.Body = "hello there"

	confirmed := msg("acct-1", "provider-900", base.Add(time.Second))
	confirmed.Body = "hello there"

	out := ReconcilePlaceholders([]model.Message{placeholder, confirmed})
	if len(out) != 1 {
		t.Fatalf("expected confirmed copy to replace placeholder, got %d messages", len(out))
	}
	if out[0].ID != "provider-900" {
		t.Fatalf("expected provider-assigned copy to survive, got %s", out[0].ID)
	}
}

func TestReconcilePlaceholdersKeepsUnconfirmedSend(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	placeholder := msg("acct-1", "sent-4f2a0c1e", base)
	placeholder.Body = "still in flight"

	out := ReconcilePlaceholders([]model.Message{placeholder})
	if len(out) != 1 {
		t.Fatalf("unconfirmed placeholder must survive, got %d messages", len(out))
	}
}
