package smscarrier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

func smsAccountA() model.Account {
	return model.Account{ID: "acct-sms-a", UserID: "user-1", ProviderType: model.ProviderSMSA}
}

func newTestCarrierA(t *testing.T, handler http.Handler) *CarrierA {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCarrierA(srv.URL, Credentials{APIKey: "key", Number: "+15550001111"})
}

func TestCarrierAFetchOffsetPaging(t *testing.T) {
	var gotQuery map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"page":            q.Get("page"),
			"page_size":       q.Get("page_size"),
			"date_sent_after": q.Get("date_sent_after"),
			"from":            q.Get("from"),
		}
		json.NewEncoder(w).Encode(carrierAPage{
			Messages: []carrierAMessage{
				{
					SID: "SM1", From: "+15552223333", To: "+15550001111",
					Body: "inbound text", Status: "received",
					DateSent: "2026-03-01T12:00:00Z",
				},
			},
			Total: 11, Page: 2, PageSize: 5,
		})
	})

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	a := newTestCarrierA(t, mux)
	opts := provider.FetchOptions{
		Page: 2, PageSize: 5,
		Filter: provider.Filter{Since: since, From: "+15552223333"},
	}
	result, err := a.Fetch(context.Background(), smsAccountA(), opts)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotQuery["page"] != "2" || gotQuery["page_size"] != "5" {
		t.Errorf("pagination params not forwarded: %v", gotQuery)
	}
	if gotQuery["date_sent_after"] != "2026-02-01T00:00:00Z" {
		t.Errorf("since not forwarded: %q", gotQuery["date_sent_after"])
	}
	if gotQuery["from"] != "+15552223333" {
		t.Errorf("from not forwarded: %q", gotQuery["from"])
	}

	if result.Total == nil || *result.Total != 11 {
		t.Fatal("expected total from listing")
	}
	if result.Exhausted(opts) {
		t.Error("page 2 of 11 at size 5 is not the last page")
	}
	if !result.Exhausted(provider.FetchOptions{Page: 3, PageSize: 5}) {
		t.Error("page 3 of 11 at size 5 is the last page")
	}

	msg := result.Messages[0]
	if msg.ID != "SM1" {
		t.Errorf("expected carrier sid as id, got %q", msg.ID)
	}
	if msg.ThreadID != "+15552223333" {
		t.Errorf("expected remote party thread, got %q", msg.ThreadID)
	}
	if msg.Read {
		t.Error("inbound SMS starts unread")
	}
	if !msg.Date.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", msg.Date)
	}
}

func TestCarrierAOutboundRecordIsRead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(carrierAPage{
			Messages: []carrierAMessage{
				{
					SID: "SM2", From: "+15550001111", To: "+15554445555",
					Body: "sent from us", Status: "delivered",
					DateSent: "2026-03-02T08:00:00Z",
				},
			},
			Total: 1,
		})
	})

	a := newTestCarrierA(t, mux)
	result, err := a.Fetch(context.Background(), smsAccountA(), provider.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	msg := result.Messages[0]
	if !msg.Read {
		t.Error("records sent from the provisioned number count as read")
	}
	if msg.ThreadID != "+15554445555" {
		t.Errorf("outbound thread keys on the recipient, got %q", msg.ThreadID)
	}
}

func TestCarrierASendSynchronous(t *testing.T) {
	var gotReq carrierASendRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding send request: %v", err)
		}
		json.NewEncoder(w).Encode(carrierAMessage{
			SID: "SM90", From: gotReq.From, To: gotReq.To,
			Body: gotReq.Body, Status: "sent",
			DateSent: "2026-03-03T09:00:00Z",
		})
	})

	a := newTestCarrierA(t, mux)
	msg, err := a.Send(context.Background(), smsAccountA(), provider.Outgoing{
		To:   []model.Address{{Handle: "+15554445555"}},
		Body: "on my way",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotReq.From != "+15550001111" || gotReq.To != "+15554445555" || gotReq.Body != "on my way" {
		t.Errorf("unexpected send payload %+v", gotReq)
	}

	if msg.ID != "SM90" {
		t.Errorf("expected carrier-assigned sid, got %q", msg.ID)
	}
	if provider.IsPlaceholderID(msg.ID) {
		t.Error("synchronous sends carry real ids, not placeholders")
	}
	if !msg.Read {
		t.Error("sent record starts read")
	}
}

func TestCarrierASendNoRecipients(t *testing.T) {
	a := newTestCarrierA(t, http.NewServeMux())
	if _, err := a.Send(context.Background(), smsAccountA(), provider.Outgoing{Body: "x"}); err == nil {
		t.Fatal("expected error for empty recipient list")
	}
}

func TestCarrierADeleteTolerant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/messages/SM1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/messages/SM2", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	a := newTestCarrierA(t, mux)
	if err := a.Delete(context.Background(), smsAccountA(), []string{"SM1", "SM2"}); err != nil {
		t.Fatalf("delete should tolerate already-gone ids: %v", err)
	}
}
