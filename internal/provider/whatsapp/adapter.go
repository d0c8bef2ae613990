// Package whatsapp implements the provider adapter for a third-party
// WhatsApp bridge API.
package whatsapp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
	"github.com/DevSrijit/commsync-sub002/internal/provider/httpx"
)

// Credentials is the opaque credential blob stored in the vault for a
// WhatsApp bridge session.
type Credentials struct {
	// APIKey authenticates against the bridge.
	APIKey string `json:"api_key"`

	// SelfJID is the bridge session's own WhatsApp JID.
	SelfJID string `json:"self_jid"`
}

// apiChat is a chat summary from GET /chats.
type apiChat struct {
	JID         string `json:"jid"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"is_group"`
	UnreadCount int    `json:"unread_count"`
}

// apiMessage is a message from GET /chats/{jid}/messages.
type apiMessage struct {
	MsgID      string `json:"msg_id"`
	ChatJID    string `json:"chat_jid"`
	SenderJID  string `json:"sender_jid"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	FromMe     bool   `json:"from_me"`
	Read       bool   `json:"read"`
	Starred    bool   `json:"starred"`
	Timestamp  int64  `json:"timestamp"`

	Media *apiMedia `json:"media,omitempty"`
}

type apiMedia struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// messagesResponse is the paged message listing.
type messagesResponse struct {
	Messages   []apiMessage `json:"messages"`
	NextCursor string       `json:"next_cursor"`
}

// sendRequest is the body for POST /chats/{jid}/messages.
type sendRequest struct {
	Body string `json:"body"`
}

// receiptRequest is the body for POST /chats/{jid}/read.
type receiptRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// Adapter implements provider.Adapter for a WhatsApp bridge.
//
// The bridge exposes chats and per-chat cursor-paged messages; the
// adapter walks chats in order, carrying "jid|cursor" as its opaque
// cursor. Bodies are always present.
type Adapter struct {
	client *httpx.Client
	self   string
}

// NewAdapter creates a WhatsApp bridge adapter. The bridge URL comes
// from the account's base URL since bridges are self-hosted.
func NewAdapter(baseURL string, creds Credentials) *Adapter {
	return &Adapter{
		client: httpx.New(baseURL, model.ProviderWhatsApp, map[string]string{
			"X-Api-Key": creds.APIKey,
		}),
		self: creds.SelfJID,
	}
}

// Type returns the provider family identifier.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderWhatsApp
}

// TestConnection checks the bridge session status.
func (a *Adapter) TestConnection(ctx context.Context, _ model.Account) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.TestTimeout)
	defer cancel()

	var status struct {
		Connected bool `json:"connected"`
	}
	if err := a.client.Get(ctx, "/session", nil, &status); err != nil {
		return false
	}
	return status.Connected
}

// Fetch walks chats in order, paging through each chat's messages. A
// chat that runs out of pages (or has none at all) hands over to the
// next chat within the same call, so a single cursor-less fetch
// reaches every chat and bulk paging never stops at an empty one.
// Since/Before map to bridge query parameters; the remaining filter
// fields are applied client-side.
func (a *Adapter) Fetch(
	ctx context.Context,
	account model.Account,
	opts provider.FetchOptions,
) (*provider.FetchResult, error) {
	var chats []apiChat
	if err := a.client.Get(ctx, "/chats", nil, &chats); err != nil {
		return nil, fmt.Errorf("listing chats for %s: %w", account.ID, err)
	}
	if len(chats) == 0 {
		total := 0
		return &provider.FetchResult{Total: &total}, nil
	}

	jid, pageCursor := decodeCursor(opts.Cursor)
	chatIdx := 0
	if jid != "" {
		for i, c := range chats {
			if c.JID == jid {
				chatIdx = i
				break
			}
		}
	}

	limit := opts.EffectivePageSize(50)
	now := time.Now()
	var messages []model.Message

	for chatIdx < len(chats) && len(messages) < limit {
		chat := chats[chatIdx]

		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		if pageCursor != "" {
			query.Set("cursor", pageCursor)
		}
		if !opts.Filter.Since.IsZero() {
			query.Set("since", strconv.FormatInt(opts.Filter.Since.Unix(), 10))
		}
		if !opts.Filter.Before.IsZero() {
			query.Set("before", strconv.FormatInt(opts.Filter.Before.Unix(), 10))
		}

		var page messagesResponse
		err := a.client.Get(ctx, "/chats/"+url.PathEscape(chat.JID)+"/messages", query, &page)
		if err != nil {
			return nil, fmt.Errorf("fetching chat %s: %w", chat.JID, err)
		}

		for _, m := range page.Messages {
			messages = append(messages, a.toCanonical(m, chat, account, now))
		}

		if page.NextCursor == "" {
			// Chat exhausted; continue with the next one.
			chatIdx++
			pageCursor = ""
			continue
		}
		pageCursor = page.NextCursor
	}

	cursor := ""
	if chatIdx < len(chats) {
		cursor = encodeCursor(chats[chatIdx].JID, pageCursor)
	}

	return &provider.FetchResult{
		Messages: opts.Filter.Apply(messages),
		Cursor:   cursor,
	}, nil
}

// FetchBody refetches a single message; bridge list responses already
// carry bodies, so this only serves the completion contract.
func (a *Adapter) FetchBody(
	ctx context.Context,
	account model.Account,
	id string,
) (*model.Message, error) {
	jid, msgID := splitID(id)
	if jid == "" {
		return nil, fmt.Errorf("invalid whatsapp message id %q", id)
	}

	var raw apiMessage
	err := a.client.Get(
		ctx,
		"/chats/"+url.PathEscape(jid)+"/messages/"+url.PathEscape(msgID),
		nil, &raw,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}

	msg := a.toCanonical(raw, apiChat{JID: jid}, account, time.Now())
	return &msg, nil
}

// Send delivers a message to the chat named by the first recipient's
// handle (a JID).
func (a *Adapter) Send(
	ctx context.Context,
	account model.Account,
	out provider.Outgoing,
) (*model.Message, error) {
	if len(out.To) == 0 {
		return nil, fmt.Errorf("sending message: no recipients")
	}
	jid := out.To[0].Handle

	var sent apiMessage
	err := a.client.Post(
		ctx, "/chats/"+url.PathEscape(jid)+"/messages",
		sendRequest{Body: out.Body}, &sent,
	)
	if err != nil {
		return nil, fmt.Errorf("sending to chat %s: %w", jid, err)
	}

	msg := a.toCanonical(sent, apiChat{JID: jid}, account, time.Now())
	msg.Read = true
	msg.Labels = []string{"sent"}
	return &msg, nil
}

// MarkRead sends read receipts per chat. Missing ids are tolerated by
// the bridge.
func (a *Adapter) MarkRead(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	byChat := make(map[string][]string)
	for _, id := range ids {
		jid, msgID := splitID(id)
		if jid == "" {
			continue
		}
		byChat[jid] = append(byChat[jid], msgID)
	}

	for jid, msgIDs := range byChat {
		err := a.client.Post(
			ctx, "/chats/"+url.PathEscape(jid)+"/read",
			receiptRequest{MessageIDs: msgIDs}, nil,
		)
		if err != nil && !httpx.IsNotFound(err) {
			return fmt.Errorf("marking chat %s read: %w", jid, err)
		}
	}
	return nil
}

// Delete removes messages; ids already gone are tolerated.
func (a *Adapter) Delete(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	for _, id := range ids {
		jid, msgID := splitID(id)
		if jid == "" {
			continue
		}
		err := a.client.Delete(
			ctx,
			"/chats/"+url.PathEscape(jid)+"/messages/"+url.PathEscape(msgID),
		)
		if err != nil {
			return fmt.Errorf("deleting message %s: %w", id, err)
		}
	}
	return nil
}

// toCanonical converts a bridge message. Canonical ids are "jid|msgid"
// so every operation can recover the chat.
func (a *Adapter) toCanonical(
	m apiMessage,
	chat apiChat,
	account model.Account,
	now time.Time,
) model.Message {
	chatJID := m.ChatJID
	if chatJID == "" {
		chatJID = chat.JID
	}

	msg := model.Message{
		ID:       chatJID + "|" + m.MsgID,
		ThreadID: chatJID,
		From: model.Address{
			Name:   m.SenderName,
			Handle: m.SenderJID,
		},
		To: []model.Address{
			{Name: chat.Name, Handle: chatJID},
		},
		Body:         m.Body,
		Read:         m.Read || m.FromMe,
		Flagged:      m.Starred,
		ProviderType: model.ProviderWhatsApp,
		AccountID:    account.ID,
	}

	if m.FromMe {
		msg.From = model.Address{Handle: a.self}
	}
	if m.Timestamp > 0 {
		msg.Date = time.Unix(m.Timestamp, 0)
	}
	if m.Media != nil {
		msg.Attachments = []model.Attachment{{
			ID:       m.Media.ID,
			Filename: m.Media.Filename,
			MimeType: m.Media.MimeType,
			Size:     m.Media.Size,
		}}
	}

	return msg.Normalize(now)
}

func encodeCursor(jid, pageCursor string) string {
	return jid + "|" + pageCursor
}

func decodeCursor(cursor string) (jid, pageCursor string) {
	if cursor == "" {
		return "", ""
	}
	for i := len(cursor) - 1; i >= 0; i-- {
		if cursor[i] == '|' {
			return cursor[:i], cursor[i+1:]
		}
	}
	return cursor, ""
}

func splitID(id string) (jid, msgID string) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '|' {
			return id[:i], id[i+1:]
		}
	}
	return "", id
}
