package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// AuthError indicates that authentication has failed or expired for a
// provider account. It is not retried automatically; the user must
// re-link the account.
type AuthError struct {
	ProviderType model.ProviderType
	Message      string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.ProviderType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ConnectionError indicates the adapter could not reach the provider.
// It is retriable on the next sync pass.
type ConnectionError struct {
	ProviderType model.ProviderType
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %v", e.ProviderType, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// PartialContentError indicates a message was fetched but its body is
// incomplete. The message is queued to the content completion worker.
type PartialContentError struct {
	MessageID string
}

func (e *PartialContentError) Error() string {
	return fmt.Sprintf("partial content for message %s", e.MessageID)
}

// IsPartialContent reports whether err means the provider has no body
// for the message yet.
func IsPartialContent(err error) bool {
	var partialErr *PartialContentError
	return errors.As(err, &partialErr)
}

// TestTimeout bounds every TestConnection call.
const TestTimeout = 10 * time.Second

// Filter narrows a fetch to messages matching all set fields. Providers
// without a server-side primitive for a field apply it client-side
// after a broader fetch (see Apply).
type Filter struct {
	Since   time.Time
	Before  time.Time
	From    string
	To      string
	Subject string
	Seen    *bool
	Flagged *bool
}

// IsZero reports whether no filter field is set.
func (f Filter) IsZero() bool {
	return f.Since.IsZero() && f.Before.IsZero() &&
		f.From == "" && f.To == "" && f.Subject == "" &&
		f.Seen == nil && f.Flagged == nil
}

// Matches reports whether a message satisfies every set filter field.
func (f Filter) Matches(m model.Message) bool {
	if !f.Since.IsZero() && m.Date.Before(f.Since) {
		return false
	}
	if !f.Before.IsZero() && !m.Date.Before(f.Before) {
		return false
	}
	if f.From != "" && !handleContains(m.From, f.From) {
		return false
	}
	if f.To != "" {
		found := false
		for _, to := range m.To {
			if handleContains(to, f.To) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Subject != "" && !strings.Contains(
		strings.ToLower(m.Subject), strings.ToLower(f.Subject),
	) {
		return false
	}
	if f.Seen != nil && m.Read != *f.Seen {
		return false
	}
	if f.Flagged != nil && m.Flagged != *f.Flagged {
		return false
	}
	return true
}

// Apply filters a batch client-side, preserving order.
func (f Filter) Apply(msgs []model.Message) []model.Message {
	if f.IsZero() {
		return msgs
	}
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if f.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

func handleContains(a model.Address, needle string) bool {
	needle = strings.ToLower(needle)
	return strings.Contains(strings.ToLower(a.Handle), needle) ||
		strings.Contains(strings.ToLower(a.Name), needle)
}

// FetchOptions controls pagination and filtering for fetch operations.
// Pagination is either offset-based (Page/PageSize) or cursor-based
// (Cursor); each adapter documents which it honors, and the orchestrator
// treats both uniformly through the returned cursor.
type FetchOptions struct {
	Page     int
	PageSize int
	Cursor   string
	SortDesc bool
	Filter   Filter
}

// EffectivePageSize returns PageSize with the adapter's default applied.
func (o FetchOptions) EffectivePageSize(def int) int {
	if o.PageSize > 0 {
		return o.PageSize
	}
	return def
}

// FetchResult holds a page of canonical messages. At least one of Total
// and Cursor is set so the caller can detect pagination exhaustion: an
// empty Cursor on a cursor-paged provider, or Page*PageSize >= *Total on
// an offset-based one, means the last page was reached.
type FetchResult struct {
	Messages []model.Message
	Total    *int
	Cursor   string
}

// Exhausted reports whether opts fetched the final page of result.
// A non-empty cursor always means more pages, even when client-side
// filtering emptied the current one; cursor-paged adapters return an
// empty cursor exactly at the end of provider state.
func (r *FetchResult) Exhausted(opts FetchOptions) bool {
	if r.Total != nil {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		size := opts.PageSize
		if size < 1 {
			size = len(r.Messages)
		}
		return page*size >= *r.Total || len(r.Messages) == 0
	}
	return r.Cursor == ""
}

// Outgoing describes a message to send through an adapter.
type Outgoing struct {
	To          []model.Address
	Subject     string
	Body        string
	HTML        string
	Attachments []model.Attachment

	// InReplyTo threads the outgoing message under an existing one
	// where the provider supports it.
	InReplyTo string
}

// Adapter is the contract every provider family implements. Adapters
// are the only code that sees provider-native payload shapes; they
// fully normalize to model.Message before returning.
type Adapter interface {
	// Type returns the provider family identifier.
	Type() model.ProviderType

	// TestConnection verifies credentials and connectivity. It never
	// returns an error: any auth or network failure within the bounded
	// timeout reports false.
	TestConnection(ctx context.Context, account model.Account) bool

	// Fetch retrieves a page of messages.
	Fetch(ctx context.Context, account model.Account, opts FetchOptions) (*FetchResult, error)

	// FetchBody retrieves the full content for a single message that
	// was previously fetched headers-only.
	FetchBody(ctx context.Context, account model.Account, id string) (*model.Message, error)

	// Send delivers an outgoing message and returns the canonical
	// record of what was sent, including provider-assigned ids.
	// Fire-and-forget providers return a synthesized placeholder that a
	// later inbound sync reconciles.
	Send(ctx context.Context, account model.Account, out Outgoing) (*model.Message, error)

	// MarkRead marks the given messages as read. Idempotent; ids that
	// no longer exist on the provider are not an error.
	MarkRead(ctx context.Context, account model.Account, ids []string) error

	// Delete removes the given messages. Same idempotency contract as
	// MarkRead.
	Delete(ctx context.Context, account model.Account, ids []string) error
}
