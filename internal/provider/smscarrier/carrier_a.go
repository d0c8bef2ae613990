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

// CarrierA implements provider.Adapter for the offset-paged carrier.
// Sends are synchronous: the carrier returns the full message record
// including its assigned SID.
type CarrierA struct {
	client *httpx.Client
	number string
}

// NewCarrierA creates a carrier A adapter from vault credentials.
func NewCarrierA(baseURL string, creds Credentials) *CarrierA {
	return &CarrierA{
		client: httpx.New(baseURL, model.ProviderSMSA, map[string]string{
			"Authorization": "Bearer " + creds.APIKey,
		}),
		number: creds.Number,
	}
}

// Type returns the provider family identifier.
func (a *CarrierA) Type() model.ProviderType {
	return model.ProviderSMSA
}

// TestConnection verifies the API key against the account endpoint.
func (a *CarrierA) TestConnection(ctx context.Context, _ model.Account) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.TestTimeout)
	defer cancel()

	var acct struct {
		SID string `json:"sid"`
	}
	return a.client.Get(ctx, "/account", nil, &acct) == nil
}

// Fetch lists messages offset-paged. Since/Before/From/To are
// server-side query parameters; Subject/Seen/Flagged do not apply to
// SMS and are handled client-side (they almost always pass).
func (a *CarrierA) Fetch(
	ctx context.Context,
	account model.Account,
	opts provider.FetchOptions,
) (*provider.FetchResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(opts.EffectivePageSize(50)))
	if !opts.Filter.Since.IsZero() {
		query.Set("date_sent_after", opts.Filter.Since.Format(time.RFC3339))
	}
	if !opts.Filter.Before.IsZero() {
		query.Set("date_sent_before", opts.Filter.Before.Format(time.RFC3339))
	}
	if opts.Filter.From != "" {
		query.Set("from", opts.Filter.From)
	}
	if opts.Filter.To != "" {
		query.Set("to", opts.Filter.To)
	}

	var listing carrierAPage
	if err := a.client.Get(ctx, "/messages", query, &listing); err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", account.ID, err)
	}

	now := time.Now()
	messages := make([]model.Message, 0, len(listing.Messages))
	for _, m := range listing.Messages {
		messages = append(messages, a.toCanonical(m, account, now))
	}

	residual := provider.Filter{
		Subject: opts.Filter.Subject,
		Seen:    opts.Filter.Seen,
		Flagged: opts.Filter.Flagged,
	}
	messages = residual.Apply(messages)

	total := listing.Total
	return &provider.FetchResult{
		Messages: messages,
		Total:    &total,
	}, nil
}

// FetchBody refetches one message; carrier listings include full text,
// so this only serves the completion contract.
func (a *CarrierA) FetchBody(
	ctx context.Context,
	account model.Account,
	id string,
) (*model.Message, error) {
	var raw carrierAMessage
	if err := a.client.Get(ctx, "/messages/"+id, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}
	msg := a.toCanonical(raw, account, time.Now())
	return &msg, nil
}

// Send delivers an SMS synchronously; the carrier returns the assigned
// record.
func (a *CarrierA) Send(
	ctx context.Context,
	account model.Account,
	out provider.Outgoing,
) (*model.Message, error) {
	if len(out.To) == 0 {
		return nil, fmt.Errorf("sending SMS: no recipients")
	}

	var sent carrierAMessage
	err := a.client.Post(ctx, "/messages", carrierASendRequest{
		From: a.number,
		To:   out.To[0].Handle,
		Body: out.Body,
	}, &sent)
	if err != nil {
		return nil, fmt.Errorf("sending SMS for %s: %w", account.ID, err)
	}

	msg := a.toCanonical(sent, account, time.Now())
	msg.Read = true
	msg.Labels = []string{"sent"}
	return &msg, nil
}

// MarkRead is a local no-op: the carrier tracks no read state.
func (a *CarrierA) MarkRead(context.Context, model.Account, []string) error {
	return nil
}

// Delete removes message records; ids already gone are tolerated.
func (a *CarrierA) Delete(
	ctx context.Context,
	_ model.Account,
	ids []string,
) error {
	for _, id := range ids {
		if err := a.client.Delete(ctx, "/messages/"+id); err != nil {
			return fmt.Errorf("deleting message %s: %w", id, err)
		}
	}
	return nil
}

func (a *CarrierA) toCanonical(
	m carrierAMessage,
	account model.Account,
	now time.Time,
) model.Message {
	msg := model.Message{
		ID:       m.SID,
		ThreadID: conversationKey(m.From, m.To, a.number),
		From:     model.Address{Handle: m.From},
		To:       []model.Address{{Handle: m.To}},
		Body:     m.Body,
		// Outbound records count as read; inbound read state is local.
		Read:         m.From == a.number,
		ProviderType: model.ProviderSMSA,
		AccountID:    account.ID,
	}

	if ts, err := time.Parse(time.RFC3339, m.DateSent); err == nil {
		msg.Date = ts
	}

	return msg.Normalize(now)
}

// conversationKey derives a stable thread id from the remote party.
func conversationKey(from, to, self string) string {
	if from == self {
		return to
	}
	return from
}
