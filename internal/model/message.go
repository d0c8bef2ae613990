package model

import "time"

// ProviderType identifies the origin provider family of a message or account.
type ProviderType string

const (
	ProviderIMAP     ProviderType = "imap"
	ProviderGmail    ProviderType = "gmail"
	ProviderDiscord  ProviderType = "discord"
	ProviderWhatsApp ProviderType = "whatsapp"
	ProviderSMSA     ProviderType = "sms-a"
	ProviderSMSB     ProviderType = "sms-b"
)

// LabelInbox is the implicit label applied when a provider reports none.
const LabelInbox = "inbox"

// Address identifies a message participant. Handle carries the
// provider-native address: an email address, a Discord user id, a
// WhatsApp JID, or a phone number.
type Address struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// Attachment holds metadata about a message attachment. Content is never
// stored in the canonical model.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Message is the unified representation of a message from any provider.
//
// ID is unique within a single account, not globally; display identity
// is the (AccountID, ID) pair.
type Message struct {
	// ID is the provider-qualified message identifier.
	ID string `json:"id"`

	// ThreadID groups messages belonging to one conversation.
	ThreadID string `json:"thread_id"`

	From Address   `json:"from"`
	To   []Address `json:"to"`

	Subject string `json:"subject"`

	// Body is the plain-text body. Body and HTMLBody both empty means the
	// message was fetched headers-only and is awaiting content completion.
	Body     string `json:"body"`
	HTMLBody string `json:"html_body"`

	// Date is always resolvable; adapters default it to the ingestion
	// time when the provider omits it.
	Date time.Time `json:"date"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// Labels is never empty; adapters default it to LabelInbox.
	Labels []string `json:"labels"`

	Read    bool `json:"read"`
	Flagged bool `json:"flagged"`

	ProviderType ProviderType `json:"provider_type"`

	// AccountID is a back-reference to the owning account.
	AccountID string `json:"account_id"`
}

// ContentMissing reports whether the message was fetched headers-only
// and still needs its body completed.
func (m Message) ContentMissing() bool {
	return m.Body == "" && m.HTMLBody == ""
}

// Normalize applies the canonical-model defaults an adapter must
// guarantee before a message leaves it.
func (m Message) Normalize(now time.Time) Message {
	if m.Date.IsZero() {
		m.Date = now
	}
	if len(m.Labels) == 0 {
		m.Labels = []string{LabelInbox}
	}
	return m
}

// Contact is a projection over the message set keyed by a participant
// handle. Contacts are recomputed, never mutated directly.
type Contact struct {
	Name            string    `json:"name"`
	Handle          string    `json:"handle"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}
