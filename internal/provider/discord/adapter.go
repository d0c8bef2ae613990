// Package discord implements the provider adapter for Discord bot
// accounts.
package discord

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

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://discord.com/api/v10"

// discordEpoch is the millisecond origin of snowflake timestamps.
const discordEpoch = int64(1420070400000)

// Credentials is the opaque credential blob stored in the vault for a
// Discord bot account.
type Credentials struct {
	BotToken string `json:"bot_token"`

	// ChannelIDs are the channels the account aggregates.
	ChannelIDs []string `json:"channel_ids"`
}

// apiMessage is a message object from the channel messages endpoint.
type apiMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp string    `json:"timestamp"`
	Author    apiAuthor `json:"author"`
	Pinned    bool      `json:"pinned"`

	Attachments []apiAttachment `json:"attachments"`
}

type apiAuthor struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

type apiAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// sendRequest is the body for POST /channels/{id}/messages.
type sendRequest struct {
	Content string `json:"content"`
}

// Adapter implements provider.Adapter for Discord.
//
// Pagination is cursor-based over snowflake ids ("channel:before").
// Bodies are always present, so no content completion is needed.
// Discord bots have no per-message read state; MarkRead succeeds
// locally without a provider call.
type Adapter struct {
	client   *httpx.Client
	channels []string
}

// NewAdapter creates a Discord adapter from vault credentials. baseURL
// falls back to DefaultBaseURL when empty.
func NewAdapter(baseURL string, creds Credentials) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		client: httpx.New(baseURL, model.ProviderDiscord, map[string]string{
			"Authorization": "Bot " + creds.BotToken,
		}),
		channels: creds.ChannelIDs,
	}
}

// Type returns the provider family identifier.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderDiscord
}

// TestConnection verifies the bot token against the gateway endpoint.
func (a *Adapter) TestConnection(ctx context.Context, _ model.Account) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.TestTimeout)
	defer cancel()

	var me struct {
		ID string `json:"id"`
	}
	return a.client.Get(ctx, "/users/@me", nil, &me) == nil
}

// Fetch pages through the configured channels newest-first. The cursor
// encodes the channel index and the snowflake to continue before. A
// channel whose messages run out hands over to the next channel within
// the same call, so a single cursor-less fetch reaches every channel
// and bulk paging never stops at a channel boundary.
// Since/Before map to snowflake bounds server-side; the remaining
// filter fields are applied client-side.
func (a *Adapter) Fetch(
	ctx context.Context,
	account model.Account,
	opts provider.FetchOptions,
) (*provider.FetchResult, error) {
	if len(a.channels) == 0 {
		total := 0
		return &provider.FetchResult{Total: &total}, nil
	}

	limit := clampLimit(opts.EffectivePageSize(50))
	chanIdx, before := decodeCursor(opts.Cursor)

	now := time.Now()
	var messages []model.Message

	for chanIdx < len(a.channels) && len(messages) < limit {
		channel := a.channels[chanIdx]

		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		if before != "" {
			query.Set("before", before)
		} else if !opts.Filter.Before.IsZero() {
			query.Set("before", snowflakeFor(opts.Filter.Before))
		}
		if !opts.Filter.Since.IsZero() && before == "" {
			query.Set("after", snowflakeFor(opts.Filter.Since))
		}

		var raw []apiMessage
		err := a.client.Get(ctx, "/channels/"+channel+"/messages", query, &raw)
		if err != nil {
			return nil, fmt.Errorf("fetching channel %s: %w", channel, err)
		}

		for _, m := range raw {
			messages = append(messages, toCanonical(m, account, now))
		}

		if len(raw) < limit {
			// Channel exhausted; continue with the next one.
			chanIdx++
			before = ""
			continue
		}
		before = raw[len(raw)-1].ID
	}

	cursor := ""
	if chanIdx < len(a.channels) {
		cursor = encodeCursor(chanIdx, before)
	}

	return &provider.FetchResult{
		Messages: opts.Filter.Apply(messages),
		Cursor:   cursor,
	}, nil
}

// FetchBody refetches a single message. Discord list fetches already
// include content, so this exists only to satisfy the completion
// contract.
func (a *Adapter) FetchBody(
	ctx context.Context,
	account model.Account,
	id string,
) (*model.Message, error) {
	channel, msgID := splitID(id)
	if channel == "" {
		return nil, fmt.Errorf("invalid discord message id %q", id)
	}

	var raw apiMessage
	err := a.client.Get(ctx, "/channels/"+channel+"/messages/"+msgID, nil, &raw)
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}

	msg := toCanonical(raw, account, time.Now())
	return &msg, nil
}

// Send posts a message to the first configured channel, or to the
// channel named by InReplyTo's id prefix when replying.
func (a *Adapter) Send(
	ctx context.Context,
	account model.Account,
	out provider.Outgoing,
) (*model.Message, error) {
	channel := ""
	if out.InReplyTo != "" {
		channel, _ = splitID(out.InReplyTo)
	}
	if channel == "" {
		if len(a.channels) == 0 {
			return nil, fmt.Errorf("sending message: no channel configured")
		}
		channel = a.channels[0]
	}

	var sent apiMessage
	err := a.client.Post(
		ctx, "/channels/"+channel+"/messages",
		sendRequest{Content: out.Body}, &sent,
	)
	if err != nil {
		return nil, fmt.Errorf("sending to channel %s: %w", channel, err)
	}

	msg := toCanonical(sent, account, time.Now())
	msg.Read = true
	msg.Labels = []string{"sent"}
	return &msg, nil
}

// MarkRead is a local no-op: Discord has no bot-visible per-message
// read state, so read tracking lives entirely in the canonical store.
func (a *Adapter) MarkRead(context.Context, model.Account, []string) error {
	return nil
}

// Delete removes messages; ids already gone are tolerated.
func (a *Adapter) Delete(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	for _, id := range ids {
		channel, msgID := splitID(id)
		if channel == "" {
			continue
		}
		if err := a.client.Delete(ctx, "/channels/"+channel+"/messages/"+msgID); err != nil {
			return fmt.Errorf("deleting message %s: %w", id, err)
		}
	}
	return nil
}

// toCanonical converts an API message. Canonical ids are
// "channel/message" so every operation can recover the channel.
func toCanonical(m apiMessage, account model.Account, now time.Time) model.Message {
	name := m.Author.GlobalName
	if name == "" {
		name = m.Author.Username
	}

	msg := model.Message{
		ID:       m.ChannelID + "/" + m.ID,
		ThreadID: m.ChannelID,
		From: model.Address{
			Name:   name,
			Handle: m.Author.ID,
		},
		Body:         m.Content,
		Flagged:      m.Pinned,
		ProviderType: model.ProviderDiscord,
		AccountID:    account.ID,
	}

	if ts, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
		msg.Date = ts
	}

	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			ID:       att.ID,
			Filename: att.Filename,
			MimeType: att.ContentType,
			Size:     att.Size,
		})
	}

	return msg.Normalize(now)
}

func clampLimit(n int) int {
	if n > 100 {
		return 100
	}
	return n
}

// snowflakeFor converts a time to the smallest snowflake at or after it.
func snowflakeFor(t time.Time) string {
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms<<22, 10)
}

func encodeCursor(chanIdx int, before string) string {
	return strconv.Itoa(chanIdx) + ":" + before
}

func decodeCursor(cursor string) (chanIdx int, before string) {
	if cursor == "" {
		return 0, ""
	}
	for i := 0; i < len(cursor); i++ {
		if cursor[i] == ':' {
			idx, err := strconv.Atoi(cursor[:i])
			if err != nil {
				return 0, ""
			}
			return idx, cursor[i+1:]
		}
	}
	return 0, ""
}

func splitID(id string) (channel, msgID string) {
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return id[:i], id[i+1:]
		}
	}
	return "", id
}
