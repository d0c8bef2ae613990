package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

func waAccount() model.Account {
	return model.Account{ID: "acct-wa", UserID: "user-1", ProviderType: model.ProviderWhatsApp}
}

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAdapter(srv.URL, Credentials{APIKey: "key", SelfJID: "me@s.whatsapp.net"})
}

func TestFetchWalksChats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]apiChat{
			{JID: "alice@s.whatsapp.net", Name: "Alice"},
			{JID: "team@g.us", Name: "Team", IsGroup: true},
		})
	})
	mux.HandleFunc("/chats/alice@s.whatsapp.net/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(messagesResponse{
			Messages: []apiMessage{
				{
					MsgID: "m1", ChatJID: "alice@s.whatsapp.net",
					SenderJID: "alice@s.whatsapp.net", SenderName: "Alice",
					Body: "lunch?", Timestamp: 1740830400,
				},
				{
					MsgID: "m2", ChatJID: "alice@s.whatsapp.net",
					FromMe: true, Body: "sure", Timestamp: 1740830460,
				},
			},
		})
	})
	mux.HandleFunc("/chats/team@g.us/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(messagesResponse{
			Messages: []apiMessage{
				{
					MsgID: "g1", ChatJID: "team@g.us",
					SenderJID: "bob@s.whatsapp.net", SenderName: "Bob",
					Body: "standup in 5", Timestamp: 1740830520,
				},
			},
		})
	})

	a := newTestAdapter(t, mux)
	result, err := a.Fetch(context.Background(), waAccount(), provider.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(result.Messages) != 3 {
		t.Fatalf("expected all 3 messages across both chats, got %d", len(result.Messages))
	}

	first := result.Messages[0]
	if first.ID != "alice@s.whatsapp.net|m1" {
		t.Errorf("canonical id carries the chat jid, got %q", first.ID)
	}
	if first.ThreadID != "alice@s.whatsapp.net" {
		t.Errorf("thread keys on the chat, got %q", first.ThreadID)
	}
	if first.Read {
		t.Error("inbound message starts unread")
	}
	if first.ContentMissing() {
		t.Error("bridge messages always carry bodies")
	}

	own := result.Messages[1]
	if !own.Read {
		t.Error("own messages count as read")
	}
	if own.From.Handle != "me@s.whatsapp.net" {
		t.Errorf("own messages attribute to the session jid, got %q", own.From.Handle)
	}

	group := result.Messages[2]
	if group.ThreadID != "team@g.us" {
		t.Errorf("expected the group chat reached in the same call, got %q", group.ThreadID)
	}

	if result.Cursor != "" {
		t.Errorf("both chats drained, expected empty cursor, got %q", result.Cursor)
	}
	if !result.Exhausted(provider.FetchOptions{}) {
		t.Error("no chats left means pagination is exhausted")
	}
}

func TestFetchSkipsEmptyChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]apiChat{
			{JID: "quiet@s.whatsapp.net", Name: "Quiet"},
			{JID: "team@g.us", Name: "Team"},
		})
	})
	mux.HandleFunc("/chats/quiet@s.whatsapp.net/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(messagesResponse{})
	})
	mux.HandleFunc("/chats/team@g.us/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(messagesResponse{
			Messages: []apiMessage{
				{MsgID: "g1", ChatJID: "team@g.us", SenderJID: "bob@s.whatsapp.net", Body: "still here"},
			},
		})
	})

	a := newTestAdapter(t, mux)
	result, err := a.Fetch(context.Background(), waAccount(), provider.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(result.Messages) != 1 || result.Messages[0].ThreadID != "team@g.us" {
		t.Fatalf("an empty chat must not hide the chats after it, got %v", result.Messages)
	}
	if result.Cursor != "" {
		t.Errorf("both chats drained, expected empty cursor, got %q", result.Cursor)
	}
}

func TestFetchNoChats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]apiChat{})
	})

	a := newTestAdapter(t, mux)
	result, err := a.Fetch(context.Background(), waAccount(), provider.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !result.Exhausted(provider.FetchOptions{}) {
		t.Error("no chats means nothing left to page")
	}
}

func TestFetchResumesFromCursor(t *testing.T) {
	var gotCursor string
	mux := http.NewServeMux()
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]apiChat{
			{JID: "alice@s.whatsapp.net", Name: "Alice"},
			{JID: "team@g.us", Name: "Team"},
		})
	})
	mux.HandleFunc("/chats/team@g.us/messages", func(w http.ResponseWriter, r *http.Request) {
		gotCursor = r.URL.Query().Get("cursor")
		json.NewEncoder(w).Encode(messagesResponse{
			Messages: []apiMessage{
				{MsgID: "g1", ChatJID: "team@g.us", SenderJID: "bob@s.whatsapp.net", Body: "standup in 5"},
			},
			NextCursor: "page-2",
		})
	})

	a := newTestAdapter(t, mux)
	result, err := a.Fetch(context.Background(), waAccount(), provider.FetchOptions{
		PageSize: 1,
		Cursor:   "team@g.us|page-1",
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotCursor != "page-1" {
		t.Errorf("expected page cursor forwarded, got %q", gotCursor)
	}
	if result.Cursor != "team@g.us|page-2" {
		t.Errorf("expected cursor to stay on the same chat, got %q", result.Cursor)
	}
}

func TestSendToFirstRecipientChat(t *testing.T) {
	var gotBody sendRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/chats/alice@s.whatsapp.net/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decoding send request: %v", err)
		}
		json.NewEncoder(w).Encode(apiMessage{
			MsgID: "m50", ChatJID: "alice@s.whatsapp.net",
			FromMe: true, Body: gotBody.Body, Timestamp: 1740830500,
		})
	})

	a := newTestAdapter(t, mux)
	msg, err := a.Send(context.Background(), waAccount(), provider.Outgoing{
		To:   []model.Address{{Handle: "alice@s.whatsapp.net"}},
		Body: "see you there",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotBody.Body != "see you there" {
		t.Errorf("unexpected send payload %+v", gotBody)
	}
	if msg.ID != "alice@s.whatsapp.net|m50" {
		t.Errorf("unexpected sent id %q", msg.ID)
	}
	if !msg.Read {
		t.Error("sent record starts read")
	}
}

func TestMarkReadGroupsByChat(t *testing.T) {
	var aliceReq, teamReq receiptRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/chats/alice@s.whatsapp.net/read", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&aliceReq)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/chats/team@g.us/read", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&teamReq)
		w.WriteHeader(http.StatusNoContent)
	})

	a := newTestAdapter(t, mux)
	err := a.MarkRead(context.Background(), waAccount(), []string{
		"alice@s.whatsapp.net|m1",
		"team@g.us|g1",
		"alice@s.whatsapp.net|m2",
	})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}

	if len(aliceReq.MessageIDs) != 2 {
		t.Errorf("expected 2 receipts for alice's chat, got %v", aliceReq.MessageIDs)
	}
	if len(teamReq.MessageIDs) != 1 {
		t.Errorf("expected 1 receipt for the group chat, got %v", teamReq.MessageIDs)
	}
}

func TestCursorCodec(t *testing.T) {
	cases := []struct {
		jid, page string
	}{
		{"alice@s.whatsapp.net", "page-3"},
		{"team@g.us", ""},
	}
	for _, c := range cases {
		jid, page := decodeCursor(encodeCursor(c.jid, c.page))
		if jid != c.jid || page != c.page {
			t.Errorf("round trip (%q,%q) gave (%q,%q)", c.jid, c.page, jid, page)
		}
	}

	if jid, page := decodeCursor(""); jid != "" || page != "" {
		t.Errorf("empty cursor decoded to (%q,%q)", jid, page)
	}
}

func TestSplitID(t *testing.T) {
	jid, msgID := splitID("team@g.us|g1")
	if jid != "team@g.us" || msgID != "g1" {
		t.Errorf("splitID gave (%q,%q)", jid, msgID)
	}

	if jid, _ := splitID("no-separator"); jid != "" {
		t.Errorf("ids without a chat component have no jid, got %q", jid)
	}
}
