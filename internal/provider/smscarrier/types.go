// Package smscarrier implements the provider adapters for the two
// supported SMS carrier APIs. Carrier A is offset-paged with
// synchronous sends; carrier B is cursor-paged and only confirms sends
// through later inbound sync.
package smscarrier

// Credentials is the opaque credential blob stored in the vault for a
// carrier account (either carrier).
type Credentials struct {
	APIKey string `json:"api_key"`

	// Number is the provisioned phone number in E.164 form.
	Number string `json:"number"`
}

// carrierAMessage is a message record from carrier A's API.
type carrierAMessage struct {
	SID      string `json:"sid"`
	From     string `json:"from"`
	To       string `json:"to"`
	Body     string `json:"body"`
	Status   string `json:"status"` // received, sent, delivered, failed
	DateSent string `json:"date_sent"`
}

// carrierAPage is carrier A's offset-paged listing.
type carrierAPage struct {
	Messages []carrierAMessage `json:"messages"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// carrierASendRequest is the body for carrier A sends.
type carrierASendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// carrierBMessage is a message record from carrier B's API.
type carrierBMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Direction string `json:"direction"` // inbound, outbound
	Timestamp int64  `json:"timestamp"`
}

// carrierBPage is carrier B's cursor-paged listing.
type carrierBPage struct {
	Items      []carrierBMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
}

// carrierBSendRequest is the body for carrier B sends. The carrier
// responds 202 with no message id; confirmation arrives only via the
// next inbound sync.
type carrierBSendRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}
