package smscarrier

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

// CarrierB implements provider.Adapter for the cursor-paged carrier.
//
// Sends are fire-and-forget: the carrier accepts with 202 and assigns
// no id, so Send returns a synthesized placeholder record that the
// canonical store reconciles against the outbound copy observed by a
// later inbound sync. Deletion is unsupported upstream and therefore an
// idempotent local no-op.
type CarrierB struct {
	client *httpx.Client
	number string
}

// NewCarrierB creates a carrier B adapter from vault credentials.
func NewCarrierB(baseURL string, creds Credentials) *CarrierB {
	return &CarrierB{
		client: httpx.New(baseURL, model.ProviderSMSB, map[string]string{
			"X-Api-Key": creds.APIKey,
		}),
		number: creds.Number,
	}
}

// Type returns the provider family identifier.
func (b *CarrierB) Type() model.ProviderType {
	return model.ProviderSMSB
}

// TestConnection verifies the API key against the health endpoint.
func (b *CarrierB) TestConnection(ctx context.Context, _ model.Account) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.TestTimeout)
	defer cancel()

	var health struct {
		OK bool `json:"ok"`
	}
	if err := b.client.Get(ctx, "/v1/health", nil, &health); err != nil {
		return false
	}
	return health.OK
}

// Fetch lists messages cursor-paged. Only Since is server-side; the
// rest of the filter applies client-side.
func (b *CarrierB) Fetch(
	ctx context.Context,
	account model.Account,
	opts provider.FetchOptions,
) (*provider.FetchResult, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(opts.EffectivePageSize(50)))
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if !opts.Filter.Since.IsZero() {
		query.Set("since", strconv.FormatInt(opts.Filter.Since.Unix(), 10))
	}

	var page carrierBPage
	if err := b.client.Get(ctx, "/v1/messages", query, &page); err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", account.ID, err)
	}

	now := time.Now()
	messages := make([]model.Message, 0, len(page.Items))
	for _, m := range page.Items {
		messages = append(messages, b.toCanonical(m, account, now))
	}

	residual := opts.Filter
	residual.Since = time.Time{}
	messages = residual.Apply(messages)

	return &provider.FetchResult{
		Messages: messages,
		Cursor:   page.NextCursor,
	}, nil
}

// FetchBody refetches one message; listings include full text.
func (b *CarrierB) FetchBody(
	ctx context.Context,
	account model.Account,
	id string,
) (*model.Message, error) {
	var raw carrierBMessage
	if err := b.client.Get(ctx, "/v1/messages/"+id, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}
	msg := b.toCanonical(raw, account, time.Now())
	return &msg, nil
}

// Send submits an SMS. The carrier only acknowledges acceptance, so the
// returned record is a placeholder with a collision-resistant local id;
// the outbound copy observed by a later sync replaces it.
func (b *CarrierB) Send(
	ctx context.Context,
	account model.Account,
	out provider.Outgoing,
) (*model.Message, error) {
	if len(out.To) == 0 {
		return nil, fmt.Errorf("sending SMS: no recipients")
	}
	recipient := out.To[0].Handle

	err := b.client.Post(ctx, "/v1/messages", carrierBSendRequest{
		Recipient: recipient,
		Text:      out.Body,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("sending SMS for %s: %w", account.ID, err)
	}

	placeholder := model.Message{
		ID:           provider.PlaceholderID(),
		ThreadID:     recipient,
		From:         model.Address{Handle: b.number},
		To:           []model.Address{{Handle: recipient}},
		Body:         out.Body,
		Date:         time.Now(),
		Read:         true,
		Labels:       []string{"sent", "pending"},
		ProviderType: model.ProviderSMSB,
		AccountID:    account.ID,
	}
	return &placeholder, nil
}

// MarkRead is a local no-op: the carrier tracks no read state.
func (b *CarrierB) MarkRead(context.Context, model.Account, []string) error {
	return nil
}

// Delete is unsupported upstream; per the adapter contract deleting an
// id that cannot be deleted remotely is not an error, so the canonical
// store's removal alone stands.
func (b *CarrierB) Delete(context.Context, model.Account, []string) error {
	return nil
}

func (b *CarrierB) toCanonical(
	m carrierBMessage,
	account model.Account,
	now time.Time,
) model.Message {
	msg := model.Message{
		ID:           m.ID,
		ThreadID:     conversationKey(m.Sender, m.Recipient, b.number),
		From:         model.Address{Handle: m.Sender},
		To:           []model.Address{{Handle: m.Recipient}},
		Body:         m.Text,
		Read:         m.Direction == "outbound",
		ProviderType: model.ProviderSMSB,
		AccountID:    account.ID,
	}
	if m.Direction == "outbound" {
		msg.Labels = []string{"sent"}
	}
	if m.Timestamp > 0 {
		msg.Date = time.Unix(m.Timestamp, 0)
	}
	return msg.Normalize(now)
}
