package imapmail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

// Client wraps go-imap v2 for connecting to and querying IMAP servers.
type Client struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewClient creates a new IMAP client configuration.
func NewClient(host, port, username, password string, tls bool) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (c *Client) Connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &provider.ConnectionError{
			ProviderType: model.ProviderIMAP,
			Err:          fmt.Errorf("connecting to IMAP %s: %w", addr, err),
		}
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &provider.AuthError{
			ProviderType: model.ProviderIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", c.username, err,
			),
		}
	}

	return client, nil
}

// searchCriteria maps a provider filter onto IMAP SEARCH criteria.
// Every filter field has a server-side primitive on IMAP.
func searchCriteria(f provider.Filter) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}

	if !f.Since.IsZero() {
		criteria.Since = f.Since
	}
	if !f.Before.IsZero() {
		criteria.Before = f.Before
	}
	if f.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "From", Value: f.From,
		})
	}
	if f.To != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "To", Value: f.To,
		})
	}
	if f.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "Subject", Value: f.Subject,
		})
	}
	if f.Seen != nil {
		if *f.Seen {
			criteria.Flag = append(criteria.Flag, imap.FlagSeen)
		} else {
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
		}
	}
	if f.Flagged != nil {
		if *f.Flagged {
			criteria.Flag = append(criteria.Flag, imap.FlagFlagged)
		} else {
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagFlagged)
		}
	}

	return criteria
}

// SearchUIDs connects, selects INBOX, and returns the UIDs matching the
// filter. An empty filter defaults to messages from the last 30 days so
// steady-state syncs stay bounded.
func (c *Client) SearchUIDs(ctx context.Context, f provider.Filter) ([]imap.UID, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := searchCriteria(f)
	if f.IsZero() {
		criteria.Since = time.Now().AddDate(0, 0, -30)
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	return searchData.AllUIDs(), nil
}

// FetchEnvelopes fetches envelope data (headers only, no body) for the
// given UIDs.
func (c *Client) FetchEnvelopes(ctx context.Context, uids []imap.UID) ([]Envelope, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	uidSet := imap.UIDSetNum(uids...)

	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return envelopes, fmt.Errorf("fetching envelopes: %w", err)
	}

	return envelopes, nil
}

// FetchMessage fetches the full message body for the given UID and
// parses it into a ParsedMessage.
func (c *Client) FetchMessage(ctx context.Context, uid imap.UID) (*ParsedMessage, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	uidSet := imap.UIDSetNum(uid)

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	parsed := &ParsedMessage{
		Envelope: envelopeFromBuffer(buf),
	}

	rawBody := buf.FindBodySection(bodySection)
	if rawBody != nil {
		textBody, htmlBody, attachments := parseMIMEBody(rawBody)
		parsed.TextBody = textBody
		parsed.HTMLBody = htmlBody
		parsed.Attachments = attachments
	}

	if err := fetchCmd.Close(); err != nil {
		return parsed, fmt.Errorf("closing fetch: %w", err)
	}

	return parsed, nil
}

// StoreFlags modifies flags on a set of messages. If add is true, the
// flags are added; otherwise they are removed. UIDs that no longer
// exist are silently skipped by the server, which keeps the operation
// idempotent.
func (c *Client) StoreFlags(
	ctx context.Context,
	uids []imap.UID,
	flags []imap.Flag,
	add bool,
) error {
	if len(uids) == 0 {
		return nil
	}

	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("selecting INBOX: %w", err)
	}

	uidSet := imap.UIDSetNum(uids...)

	op := imap.StoreFlagsAdd
	if !add {
		op = imap.StoreFlagsDel
	}

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  flags,
	}, nil)

	return storeCmd.Close()
}

// Expunge marks the given UIDs deleted and expunges them.
func (c *Client) Expunge(ctx context.Context, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}

	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("selecting INBOX: %w", err)
	}

	uidSet := imap.UIDSetNum(uids...)

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking deleted: %w", err)
	}

	return client.Expunge().Close()
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID: buf.UID,
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			env.From = model.Address{
				Name:   from.Name,
				Handle: from.Addr(),
			}
		}

		for _, to := range buf.Envelope.To {
			env.To = append(env.To, model.Address{
				Name:   to.Name,
				Handle: to.Addr(),
			})
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

// parseMIMEBody parses a raw RFC 2822 message body using go-message
// and extracts the text/plain body, text/html body, and attachment
// metadata.
func parseMIMEBody(raw []byte) (
	textBody string, htmlBody string, attachments []model.Attachment,
) {
	reader := bytes.NewReader(raw)

	mr, err := mail.CreateReader(reader)
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return string(raw), "", nil
	}
	defer mr.Close()

	attIndex := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			// Read to get size without storing content.
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attIndex++
			attachments = append(attachments, model.Attachment{
				ID:       fmt.Sprintf("part-%d", attIndex),
				Filename: filename,
				Size:     int64(len(body)),
				MimeType: contentType,
			})
		}
	}

	return textBody, htmlBody, attachments
}
