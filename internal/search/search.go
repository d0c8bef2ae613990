// Package search ranks contacts and messages against a free-text query.
// It is a pure overlay: it never mutates the canonical store, only
// filters and orders views of it.
package search

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// Field weights. Contacts rank name over handle over last-message
// text; messages rank body over subject since bodies carry most of the
// signal.
const (
	contactNameWeight    = 0.5
	contactHandleWeight  = 0.3
	contactLastWeight    = 0.2
	messageSubjectWeight = 0.4
	messageBodyWeight    = 0.6

	// involvementBlend discounts a contact's best involving-message
	// score when blending it into the contact's own score.
	involvementBlend = 0.8
)

// ContactMatch pairs a contact with its ranking score.
type ContactMatch struct {
	Contact model.Contact
	Score   float64
}

// MessageMatch pairs a message with its ranking score.
type MessageMatch struct {
	Message model.Message
	Score   float64
}

// Result holds the ranked views for one query.
type Result struct {
	Contacts []ContactMatch
	Messages []MessageMatch
}

// Rank scores contacts and messages against query and returns both
// views sorted by descending score. An empty (or whitespace) query is
// the identity: every input passes through in its given order with a
// zero score.
func Rank(query string, contacts []model.Contact, messages []model.Message) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return passthrough(contacts, messages)
	}

	var msgMatches []MessageMatch
	// Best involving-message score per contact handle, for blending.
	bestByHandle := make(map[string]float64)

	for _, m := range messages {
		score := messageSubjectWeight*fieldScore(query, m.Subject) +
			messageBodyWeight*fieldScore(query, m.Body)
		if score <= 0 {
			continue
		}
		msgMatches = append(msgMatches, MessageMatch{Message: m, Score: score})

		for _, addr := range involvedHandles(m) {
			if score > bestByHandle[addr] {
				bestByHandle[addr] = score
			}
		}
	}

	var contactMatches []ContactMatch
	for _, c := range contacts {
		direct := contactNameWeight*fieldScore(query, c.Name) +
			contactHandleWeight*fieldScore(query, c.Handle) +
			contactLastWeight*fieldScore(query, c.LastMessage)

		blended := involvementBlend * bestByHandle[strings.ToLower(c.Handle)]
		score := direct
		if blended > score {
			score = blended
		}
		if score <= 0 {
			continue
		}
		contactMatches = append(contactMatches, ContactMatch{Contact: c, Score: score})
	}

	sort.SliceStable(contactMatches, func(i, j int) bool {
		return contactMatches[i].Score > contactMatches[j].Score
	})
	sort.SliceStable(msgMatches, func(i, j int) bool {
		return msgMatches[i].Score > msgMatches[j].Score
	})

	return Result{Contacts: contactMatches, Messages: msgMatches}
}

// passthrough returns every input unfiltered, preserving order.
func passthrough(contacts []model.Contact, messages []model.Message) Result {
	r := Result{
		Contacts: make([]ContactMatch, 0, len(contacts)),
		Messages: make([]MessageMatch, 0, len(messages)),
	}
	for _, c := range contacts {
		r.Contacts = append(r.Contacts, ContactMatch{Contact: c})
	}
	for _, m := range messages {
		r.Messages = append(r.Messages, MessageMatch{Message: m})
	}
	return r
}

// fieldScore fuzzy-matches query against one field. A non-match scores
// zero; any match scores at least one so matched fields always beat
// unmatched ones, with the library's score breaking ties.
func fieldScore(query, text string) float64 {
	if text == "" {
		return 0
	}
	matches := fuzzy.Find(query, []string{text})
	if len(matches) == 0 {
		return 0
	}
	score := matches[0].Score
	if score < 0 {
		score = 0
	}
	return 1 + float64(score)
}

// involvedHandles lists the lowercased handles a message involves, on
// either side of the exchange.
func involvedHandles(m model.Message) []string {
	out := make([]string, 0, 1+len(m.To))
	if m.From.Handle != "" {
		out = append(out, strings.ToLower(m.From.Handle))
	}
	for _, a := range m.To {
		if a.Handle != "" {
			out = append(out, strings.ToLower(a.Handle))
		}
	}
	return out
}
