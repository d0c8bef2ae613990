package imapmail

import (
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// Credentials is the opaque credential blob stored in the vault for an
// IMAP/SMTP account.
type Credentials struct {
	IMAPHost string `json:"imap_host"`
	IMAPPort string `json:"imap_port"`
	SMTPHost string `json:"smtp_host"`
	SMTPPort string `json:"smtp_port"`
	Username string `json:"username"`
	Password string `json:"password"`
	TLS      bool   `json:"tls"`
}

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      model.Address
	To        []model.Address
	Date      time.Time
	Flags     []string // \Seen, \Flagged, \Answered, \Deleted
	UID       imap.UID
}

// ParsedMessage holds the full parsed content of an email message.
type ParsedMessage struct {
	Envelope    Envelope
	TextBody    string
	HTMLBody    string
	Attachments []model.Attachment
}

// SMTPConfig holds the SMTP server settings for sending mail.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}
