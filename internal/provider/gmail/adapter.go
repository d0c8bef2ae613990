// Package gmail implements the provider adapter for Gmail-style token
// message APIs.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
	"github.com/DevSrijit/commsync-sub002/internal/provider/httpx"
)

// DefaultBaseURL is the production API root. Accounts may override it
// for testing or proxied deployments.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

const basePath = "/users/me"

// Adapter implements provider.Adapter for Gmail-style token APIs.
//
// Pagination is cursor-based (pageToken). List fetches request metadata
// format (headers only); FetchBody requests the full MIME tree.
type Adapter struct {
	client *httpx.Client
	email  string
}

// NewAdapter creates a Gmail adapter from vault credentials. baseURL
// falls back to DefaultBaseURL when empty.
func NewAdapter(baseURL string, creds Credentials) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		client: httpx.New(baseURL, model.ProviderGmail, map[string]string{
			"Authorization": "Bearer " + creds.AccessToken,
		}),
		email: creds.EmailAddress,
	}
}

// Type returns the provider family identifier.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderGmail
}

// TestConnection verifies the token by fetching the profile.
func (a *Adapter) TestConnection(ctx context.Context, _ model.Account) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.TestTimeout)
	defer cancel()

	var profile profileResponse
	err := a.client.Get(ctx, basePath+"/profile", nil, &profile)
	return err == nil
}

// Fetch lists message ids matching the filter and hydrates their
// metadata. The filter maps onto the API's q search string, so all
// filtering is server-side.
func (a *Adapter) Fetch(
	ctx context.Context,
	account model.Account,
	opts provider.FetchOptions,
) (*provider.FetchResult, error) {
	query := url.Values{}
	query.Set("maxResults", strconv.Itoa(opts.EffectivePageSize(50)))
	if opts.Cursor != "" {
		query.Set("pageToken", opts.Cursor)
	}
	if q := buildQuery(opts.Filter); q != "" {
		query.Set("q", q)
	}

	var list listResponse
	if err := a.client.Get(ctx, basePath+"/messages", query, &list); err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", account.ID, err)
	}

	now := time.Now()
	messages := make([]model.Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		var msg apiMessage
		mq := url.Values{}
		mq.Set("format", "metadata")
		err := a.client.Get(
			ctx, basePath+"/messages/"+ref.ID, mq, &msg,
		)
		if err != nil {
			// Messages can vanish between list and get; skip them.
			if httpx.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("fetching message %s: %w", ref.ID, err)
		}
		messages = append(messages, a.toCanonical(msg, account, now))
	}

	return &provider.FetchResult{
		Messages: messages,
		Cursor:   list.NextPageToken,
	}, nil
}

// FetchBody retrieves the full MIME tree for one message and extracts
// text, HTML, and attachment metadata.
func (a *Adapter) FetchBody(
	ctx context.Context,
	account model.Account,
	id string,
) (*model.Message, error) {
	var msg apiMessage
	query := url.Values{}
	query.Set("format", "full")
	err := a.client.Get(ctx, basePath+"/messages/"+id, query, &msg)
	if err != nil {
		return nil, fmt.Errorf("fetching message body %s: %w", id, err)
	}

	canonical := a.toCanonical(msg, account, time.Now())
	if msg.Payload != nil {
		text, html, attachments := walkPayload(*msg.Payload)
		canonical.Body = text
		canonical.HTMLBody = html
		canonical.Attachments = attachments
	}

	if canonical.Body == "" && canonical.HTMLBody != "" {
		if text, err := html2text.FromString(canonical.HTMLBody); err == nil {
			canonical.Body = text
		}
	}
	if canonical.Body == "" {
		canonical.Body = msg.Snippet
	}
	if canonical.ContentMissing() {
		return nil, &provider.PartialContentError{MessageID: id}
	}

	return &canonical, nil
}

// Send delivers a message through the send endpoint and returns the
// canonical record with the provider-assigned id.
func (a *Adapter) Send(
	ctx context.Context,
	account model.Account,
	out provider.Outgoing,
) (*model.Message, error) {
	if len(out.To) == 0 {
		return nil, fmt.Errorf("sending message: no recipients")
	}

	var rcpts []string
	for _, to := range out.To {
		rcpts = append(rcpts, to.Handle)
	}

	var raw strings.Builder
	raw.WriteString(fmt.Sprintf("From: %s\r\n", a.email))
	raw.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(rcpts, ", ")))
	raw.WriteString(fmt.Sprintf("Subject: %s\r\n", out.Subject))
	if out.InReplyTo != "" {
		raw.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", out.InReplyTo))
	}
	if out.HTML != "" {
		raw.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		raw.WriteString(out.HTML)
	} else {
		raw.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		raw.WriteString(out.Body)
	}

	req := sendRequest{
		Raw: base64.RawURLEncoding.EncodeToString([]byte(raw.String())),
	}

	var sent apiMessage
	err := a.client.Post(ctx, basePath+"/messages/send", req, &sent)
	if err != nil {
		return nil, fmt.Errorf("sending message for %s: %w", account.ID, err)
	}

	msg := model.Message{
		ID:           sent.ID,
		ThreadID:     sent.ThreadID,
		From:         model.Address{Handle: a.email},
		To:           out.To,
		Subject:      out.Subject,
		Body:         out.Body,
		HTMLBody:     out.HTML,
		Date:         time.Now(),
		Read:         true,
		Labels:       []string{"sent"},
		ProviderType: model.ProviderGmail,
		AccountID:    account.ID,
	}
	return &msg, nil
}

// MarkRead removes the UNREAD label from each id. Vanished ids are
// tolerated.
func (a *Adapter) MarkRead(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	req := modifyRequest{RemoveLabelIDs: []string{"UNREAD"}}
	for _, id := range ids {
		err := a.client.Post(ctx, basePath+"/messages/"+id+"/modify", req, nil)
		if err != nil && !httpx.IsNotFound(err) {
			return fmt.Errorf("marking message %s read: %w", id, err)
		}
	}
	return nil
}

// Delete moves each id to the trash. Vanished ids are tolerated.
func (a *Adapter) Delete(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	for _, id := range ids {
		err := a.client.Post(ctx, basePath+"/messages/"+id+"/trash", nil, nil)
		if err != nil && !httpx.IsNotFound(err) {
			return fmt.Errorf("trashing message %s: %w", id, err)
		}
	}
	return nil
}

// buildQuery translates the filter into the API's q search syntax.
func buildQuery(f provider.Filter) string {
	var parts []string
	if !f.Since.IsZero() {
		parts = append(parts, "after:"+f.Since.Format("2006/01/02"))
	}
	if !f.Before.IsZero() {
		parts = append(parts, "before:"+f.Before.Format("2006/01/02"))
	}
	if f.From != "" {
		parts = append(parts, "from:"+f.From)
	}
	if f.To != "" {
		parts = append(parts, "to:"+f.To)
	}
	if f.Subject != "" {
		parts = append(parts, "subject:"+f.Subject)
	}
	if f.Seen != nil {
		if *f.Seen {
			parts = append(parts, "-is:unread")
		} else {
			parts = append(parts, "is:unread")
		}
	}
	if f.Flagged != nil {
		if *f.Flagged {
			parts = append(parts, "is:starred")
		} else {
			parts = append(parts, "-is:starred")
		}
	}
	return strings.Join(parts, " ")
}

// toCanonical converts a metadata-format message resource into the
// canonical model. Body fields stay empty so content completion picks
// it up.
func (a *Adapter) toCanonical(
	msg apiMessage,
	account model.Account,
	now time.Time,
) model.Message {
	out := model.Message{
		ID:           msg.ID,
		ThreadID:     msg.ThreadID,
		ProviderType: model.ProviderGmail,
		AccountID:    account.ID,
		Read:         true,
	}

	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil && ms > 0 {
		out.Date = time.UnixMilli(ms)
	}

	for _, label := range msg.LabelIDs {
		switch label {
		case "UNREAD":
			out.Read = false
		case "STARRED":
			out.Flagged = true
		default:
			out.Labels = append(out.Labels, strings.ToLower(label))
		}
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				out.Subject = h.Value
			case "from":
				out.From = parseAddress(h.Value)
			case "to":
				out.To = parseAddressList(h.Value)
			}
		}
	}

	return out.Normalize(now)
}

// walkPayload traverses the MIME tree collecting text, HTML, and
// attachment metadata.
func walkPayload(p payload) (text, html string, attachments []model.Attachment) {
	if p.Filename != "" && p.Body != nil {
		attachments = append(attachments, model.Attachment{
			ID:       p.Body.AttachmentID,
			Filename: p.Filename,
			MimeType: p.MimeType,
			Size:     p.Body.Size,
		})
		return
	}

	if p.Body != nil && p.Body.Data != "" {
		// Body data is base64url, with or without padding.
		decoded, err := base64.RawURLEncoding.DecodeString(
			strings.TrimRight(p.Body.Data, "="),
		)
		if err == nil {
			switch {
			case strings.HasPrefix(p.MimeType, "text/plain"):
				text = string(decoded)
			case strings.HasPrefix(p.MimeType, "text/html"):
				html = string(decoded)
			}
		}
	}

	for _, part := range p.Parts {
		t, h, atts := walkPayload(part)
		if text == "" {
			text = t
		}
		if html == "" {
			html = h
		}
		attachments = append(attachments, atts...)
	}

	return
}

// parseAddress parses one RFC 5322 address, falling back to the raw
// string as the handle.
func parseAddress(s string) model.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return model.Address{Handle: strings.TrimSpace(s)}
	}
	return model.Address{Name: addr.Name, Handle: addr.Address}
}

func parseAddressList(s string) []model.Address {
	addrs, err := mail.ParseAddressList(s)
	if err != nil {
		var out []model.Address
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, model.Address{Handle: part})
			}
		}
		return out
	}

	out := make([]model.Address, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, model.Address{Name: addr.Name, Handle: addr.Address})
	}
	return out
}
