// Package inbox holds the canonical message store: the merge-only,
// dedup-safe working set every sync pass writes through.
package inbox

import (
	"sort"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

// identity is the display-layer message identity: ids are unique only
// within one account.
type identity struct {
	accountID string
	id        string
}

func identityOf(m model.Message) identity {
	return identity{accountID: m.AccountID, id: m.ID}
}

// Merge reconciles two message batches into one, keyed by
// (accountID, id). On collision the incoming record wins (the provider
// is assumed to have fresher state), with one refinement: an
// incoming headers-only record never erases a body the existing record
// already carries, since lazy content completion must survive later
// metadata-only fetches.
//
// Merge is a pure function: O(n+m), idempotent, and commutative up to
// the incoming-wins rule. The result is ordered by date descending
// (with a deterministic tie-break) for display purposes; the store
// itself requires no order.
func Merge(existing, incoming []model.Message) []model.Message {
	byID := make(map[identity]int, len(existing)+len(incoming))
	merged := make([]model.Message, 0, len(existing)+len(incoming))

	for _, m := range existing {
		key := identityOf(m)
		if idx, ok := byID[key]; ok {
			merged[idx] = m
			continue
		}
		byID[key] = len(merged)
		merged = append(merged, m)
	}

	for _, m := range incoming {
		key := identityOf(m)
		idx, ok := byID[key]
		if !ok {
			byID[key] = len(merged)
			merged = append(merged, m)
			continue
		}

		prev := merged[idx]
		if m.ContentMissing() && !prev.ContentMissing() {
			m.Body = prev.Body
			m.HTMLBody = prev.HTMLBody
			if len(m.Attachments) == 0 {
				m.Attachments = prev.Attachments
			}
		}
		merged[idx] = m
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return a.ID < b.ID
	})

	return merged
}

// ReconcilePlaceholders drops locally-synthesized send placeholders
// once the provider-assigned copy of the same message has been
// observed: same account, same first recipient, same body.
func ReconcilePlaceholders(msgs []model.Message) []model.Message {
	type sendKey struct {
		accountID string
		recipient string
		body      string
	}

	confirmed := make(map[sendKey]bool)
	hasPlaceholder := false
	for _, m := range msgs {
		if isPlaceholder(m) {
			hasPlaceholder = true
			continue
		}
		if len(m.To) > 0 {
			confirmed[sendKey{m.AccountID, m.To[0].Handle, m.Body}] = true
		}
	}
	if !hasPlaceholder {
		return msgs
	}

	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if isPlaceholder(m) && len(m.To) > 0 &&
			confirmed[sendKey{m.AccountID, m.To[0].Handle, m.Body}] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func isPlaceholder(m model.Message) bool {
	return provider.IsPlaceholderID(m.ID)
}
