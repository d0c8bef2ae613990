// Package imapmail implements the provider adapter for IMAP mailboxes
// with SMTP sending.
package imapmail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/jaytaylor/html2text"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

// Adapter implements provider.Adapter for IMAP/SMTP mailboxes.
//
// Fetching is offset-paged over a server-side UID search; every filter
// field maps to an IMAP SEARCH primitive. List fetches return envelopes
// only; bodies arrive through FetchBody.
type Adapter struct {
	client     *Client
	smtpConfig SMTPConfig
	username   string
}

// NewAdapter creates an IMAP/SMTP adapter from vault credentials.
func NewAdapter(creds Credentials) *Adapter {
	return &Adapter{
		client: NewClient(
			creds.IMAPHost, creds.IMAPPort,
			creds.Username, creds.Password, creds.TLS,
		),
		smtpConfig: SMTPConfig{
			Host:     creds.SMTPHost,
			Port:     creds.SMTPPort,
			Username: creds.Username,
			Password: creds.Password,
			TLS:      creds.TLS,
		},
		username: creds.Username,
	}
}

// Type returns the provider family identifier.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderIMAP
}

// TestConnection verifies IMAP credentials by connecting, logging in,
// and selecting INBOX within the bounded timeout.
func (a *Adapter) TestConnection(ctx context.Context, _ model.Account) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.TestTimeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		client, err := a.client.Connect(ctx)
		if err != nil {
			done <- false
			return
		}
		defer func() { _ = client.Logout().Wait() }()

		_, err = client.Select("INBOX", nil).Wait()
		done <- err == nil
	}()

	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Fetch retrieves a page of envelope-only messages. Pagination is
// offset-based; Total is always set.
func (a *Adapter) Fetch(
	ctx context.Context,
	account model.Account,
	opts provider.FetchOptions,
) (*provider.FetchResult, error) {
	uids, err := a.client.SearchUIDs(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("fetching mail for %s: %w", account.ID, err)
	}

	// UID search returns ascending order; newest-first means walking
	// from the tail.
	if opts.SortDesc {
		for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
			uids[i], uids[j] = uids[j], uids[i]
		}
	}

	total := len(uids)
	pageSize := opts.EffectivePageSize(50)
	page := opts.Page
	if page < 1 {
		page = 1
	}

	start := (page - 1) * pageSize
	if start >= total {
		return &provider.FetchResult{Total: &total}, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	envelopes, err := a.client.FetchEnvelopes(ctx, uids[start:end])
	if err != nil {
		return nil, fmt.Errorf("fetching mail for %s: %w", account.ID, err)
	}

	now := time.Now()
	messages := make([]model.Message, 0, len(envelopes))
	for _, env := range envelopes {
		messages = append(messages, a.envelopeToMessage(env, account, now))
	}

	if opts.SortDesc {
		sort.SliceStable(messages, func(i, j int) bool {
			return messages[i].Date.After(messages[j].Date)
		})
	}

	return &provider.FetchResult{
		Messages: messages,
		Total:    &total,
	}, nil
}

// FetchBody retrieves the full content of one message.
func (a *Adapter) FetchBody(
	ctx context.Context,
	account model.Account,
	id string,
) (*model.Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	parsed, err := a.client.FetchMessage(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("fetching mail body %s: %w", id, err)
	}

	msg := a.envelopeToMessage(parsed.Envelope, account, time.Now())
	msg.Body = parsed.TextBody
	msg.HTMLBody = parsed.HTMLBody
	msg.Attachments = parsed.Attachments

	if msg.Body == "" && msg.HTMLBody != "" {
		if text, err := html2text.FromString(msg.HTMLBody); err == nil {
			msg.Body = text
		}
	}

	return &msg, nil
}

// Send composes and delivers a message over SMTP. The returned record
// carries a synthesized id until the sent copy is observed by a later
// inbound sync; mail servers assign no id at submission time.
func (a *Adapter) Send(
	_ context.Context,
	account model.Account,
	out provider.Outgoing,
) (*model.Message, error) {
	if len(out.To) == 0 {
		return nil, fmt.Errorf("sending mail: no recipients")
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", a.username))

	var rcpts []string
	for _, to := range out.To {
		rcpts = append(rcpts, to.Handle)
	}
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(rcpts, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", out.Subject))
	if out.InReplyTo != "" {
		msg.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", out.InReplyTo))
		msg.WriteString(fmt.Sprintf("References: <%s>\r\n", out.InReplyTo))
	}
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(out.Body)

	addr := a.smtpConfig.Host + ":" + a.smtpConfig.Port

	var err error
	if a.smtpConfig.TLS {
		err = sendSMTPWithTLS(addr, a.smtpConfig, a.username, rcpts, msg.String())
	} else {
		err = sendSMTPWithStartTLS(addr, a.smtpConfig, a.username, rcpts, msg.String())
	}
	if err != nil {
		return nil, err
	}

	sent := model.Message{
		ID:      provider.PlaceholderID(),
		From:    model.Address{Handle: a.username},
		To:      out.To,
		Subject: out.Subject,
		Body:    out.Body,
		HTMLBody: out.HTML,
		Date:    time.Now(),
		Read:    true,
		Labels:  []string{"sent"},
		ProviderType: model.ProviderIMAP,
		AccountID:    account.ID,
	}
	sent.ThreadID = threadKey(sent.Subject)
	return &sent, nil
}

// MarkRead adds the \Seen flag to the given UIDs. Missing UIDs are not
// an error.
func (a *Adapter) MarkRead(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	uids, err := parseUIDs(ids)
	if err != nil {
		return err
	}
	return a.client.StoreFlags(ctx, uids, []imap.Flag{imap.FlagSeen}, true)
}

// Delete expunges the given UIDs. Missing UIDs are not an error.
func (a *Adapter) Delete(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	uids, err := parseUIDs(ids)
	if err != nil {
		return err
	}
	return a.client.Expunge(ctx, uids)
}

// envelopeToMessage converts an IMAP envelope to a canonical message.
// The body is intentionally left empty; content completion fills it.
func (a *Adapter) envelopeToMessage(
	env Envelope,
	account model.Account,
	now time.Time,
) model.Message {
	msg := model.Message{
		ID:           strconv.FormatUint(uint64(env.UID), 10),
		ThreadID:     threadKey(env.Subject),
		From:         env.From,
		To:           env.To,
		Subject:      env.Subject,
		Date:         env.Date,
		ProviderType: model.ProviderIMAP,
		AccountID:    account.ID,
	}

	for _, flag := range env.Flags {
		switch flag {
		case `\Seen`:
			msg.Read = true
		case `\Flagged`:
			msg.Flagged = true
		}
	}

	return msg.Normalize(now)
}

// threadKey normalizes a subject into a conversation key by stripping
// reply/forward prefixes.
func threadKey(subject string) string {
	s := strings.TrimSpace(strings.ToLower(subject))
	for {
		trimmed := s
		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// sendSMTPWithTLS sends an email over an implicit TLS connection.
func sendSMTPWithTLS(
	addr string, cfg SMTPConfig,
	from string, to []string, body string,
) error {
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return &provider.ConnectionError{
			ProviderType: model.ProviderIMAP,
			Err:          fmt.Errorf("TLS dial to %s: %w", addr, err),
		}
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		return &provider.AuthError{
			ProviderType: model.ProviderIMAP,
			Message:      fmt.Sprintf("SMTP auth: %v", err),
		}
	}

	return sendMailViaSMTPClient(client, from, to, body)
}

// sendSMTPWithStartTLS sends an email using STARTTLS.
func sendSMTPWithStartTLS(
	addr string, cfg SMTPConfig,
	from string, to []string, body string,
) error {
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return &provider.ConnectionError{
			ProviderType: model.ProviderIMAP,
			Err:          fmt.Errorf("dial to %s: %w", addr, err),
		}
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: cfg.Host}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		return &provider.AuthError{
			ProviderType: model.ProviderIMAP,
			Message:      fmt.Sprintf("SMTP auth: %v", err),
		}
	}

	return sendMailViaSMTPClient(client, from, to, body)
}

// sendMailViaSMTPClient sends a message using an already-authenticated
// SMTP client.
func sendMailViaSMTPClient(
	client *smtp.Client, from string, to []string, body string,
) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write([]byte(body)); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

// parseUID converts a canonical message id to an IMAP UID.
func parseUID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mail UID %q: %w", id, err)
	}
	return imap.UID(uid), nil
}

func parseUIDs(ids []string) ([]imap.UID, error) {
	uids := make([]imap.UID, 0, len(ids))
	for _, id := range ids {
		uid, err := parseUID(id)
		if err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	return uids, nil
}
