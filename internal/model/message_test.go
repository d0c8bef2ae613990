package model

import (
	"testing"
	"time"
)

func TestContentMissing(t *testing.T) {
	if !(Message{}).ContentMissing() {
		t.Fatal("empty body and html means content missing")
	}
	if (Message{Body: "x"}).ContentMissing() {
		t.Fatal("a plain body is content")
	}
	if (Message{HTMLBody: "<p>x</p>"}).ContentMissing() {
		t.Fatal("an html body is content")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := Message{}.Normalize(now)
	if !m.Date.Equal(now) {
		t.Errorf("missing date must default to now, got %v", m.Date)
	}
	if len(m.Labels) != 1 || m.Labels[0] != LabelInbox {
		t.Errorf("missing labels must default to inbox, got %v", m.Labels)
	}
}

func TestNormalizePreservesSetFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	m := Message{Date: orig, Labels: []string{"sent"}}.Normalize(now)
	if !m.Date.Equal(orig) {
		t.Errorf("set date must survive, got %v", m.Date)
	}
	if len(m.Labels) != 1 || m.Labels[0] != "sent" {
		t.Errorf("set labels must survive, got %v", m.Labels)
	}
}

func TestAccountPollInterval(t *testing.T) {
	fallback := 120 * time.Second

	a := Account{PollIntervalSec: 30}
	if got := a.PollInterval(fallback); got != 30*time.Second {
		t.Errorf("expected per-account override, got %v", got)
	}

	b := Account{}
	if got := b.PollInterval(fallback); got != fallback {
		t.Errorf("expected fallback, got %v", got)
	}
}
