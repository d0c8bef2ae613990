// Package ai provides the assistant features layered over the message
// store: free-form questions about the mailbox and thread summaries.
// Every call reports its credit cost so usage accounting can record it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 1024
	apiURL           = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"

	// tokensPerCredit converts model token usage into plan credits.
	tokensPerCredit = 1000

	// summaryMessageLimit caps how many messages of a thread are sent
	// for summarization.
	summaryMessageLimit = 25
)

// Result is the outcome of one assistant call.
type Result struct {
	Text string

	// CreditCost is the plan credits this call consumed, derived from
	// token usage. The caller records it against the subscription.
	CreditCost int64
}

// Client talks to the model API and keeps a rolling conversation
// context for multi-turn questions.
type Client struct {
	apiKey    string
	model     string
	maxTokens int
	context   *ConversationContext
	client    *http.Client
}

// New creates an assistant client with the given configuration.
func New(apiKey, modelName string, maxTokens int) *Client {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		apiKey:    apiKey,
		model:     modelName,
		maxTokens: maxTokens,
		context:   NewConversationContext(),
		client:    &http.Client{},
	}
}

// Reset clears the conversation history.
func (c *Client) Reset() {
	c.context.Reset()
}

// Ask sends a user question as the next conversation turn and returns
// the assistant's reply with its credit cost. Messages in about ground
// the answer: each transcript is sent once per conversation, keyed by
// canonical identity, so follow-up questions about the same messages
// do not repeat them.
func (c *Client) Ask(ctx context.Context, question string, about []model.Message) (Result, error) {
	fresh, refs := c.selectFresh(about)
	c.context.AddTurn(RoleUser, buildAskPrompt(question, fresh), refs)

	resp, err := c.callAPI(ctx, c.systemPrompt(), c.buildAPIMessages())
	if err != nil {
		return Result{}, err
	}

	text := joinText(resp.Content)
	c.context.AddTurn(RoleAssistant, text, nil)

	return Result{Text: text, CreditCost: creditCost(resp.Usage)}, nil
}

// selectFresh splits about into the messages not yet present in the
// conversation and the full reference list for the new turn.
func (c *Client) selectFresh(about []model.Message) ([]model.Message, []MessageRef) {
	var fresh []model.Message
	refs := make([]MessageRef, 0, len(about))
	seen := make(map[MessageRef]bool, len(about))

	for _, m := range about {
		ref := refOf(m)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
		if !c.context.Referenced(ref) {
			fresh = append(fresh, m)
		}
	}
	return fresh, refs
}

// Summarize produces a short summary of the given messages as a single
// one-shot call, outside the rolling conversation.
func (c *Client) Summarize(ctx context.Context, msgs []model.Message) (Result, error) {
	if len(msgs) == 0 {
		return Result{}, fmt.Errorf("nothing to summarize")
	}
	if len(msgs) > summaryMessageLimit {
		msgs = msgs[:summaryMessageLimit]
	}

	prompt := buildSummaryPrompt(msgs)
	messages := []apiMessage{
		{
			Role:    string(RoleUser),
			Content: []apiContentBlock{{Type: "text", Text: prompt}},
		},
	}

	resp, err := c.callAPI(ctx, summarySystemPrompt, messages)
	if err != nil {
		return Result{}, err
	}

	return Result{Text: joinText(resp.Content), CreditCost: creditCost(resp.Usage)}, nil
}

// callAPI makes a single request to the model's messages API.
func (c *Client) callAPI(
	ctx context.Context,
	system string,
	messages []apiMessage,
) (*apiResponse, error) {
	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, apiURL, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling model API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &result, nil
}

const summarySystemPrompt = "You summarize message threads. " +
	"Produce a short plain-text summary: who is involved, what was " +
	"discussed, and any open questions or action items. Do not invent " +
	"details that are not in the messages."

// systemPrompt constructs the system prompt for conversational turns.
func (c *Client) systemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are a messaging assistant. ")
	sb.WriteString("You answer questions about the user's synced messages ")
	sb.WriteString("across email, chat, and SMS accounts.\n\n")

	sb.WriteString("IMPORTANT: You CANNOT send, delete, or modify messages. ")
	sb.WriteString("If asked to perform such an action, explain that you can ")
	sb.WriteString("only read and summarize, and that the user should perform ")
	sb.WriteString("the action themselves.\n\n")

	sb.WriteString("When referencing messages, include the sender and subject. ")
	sb.WriteString("Keep responses concise and focused.")

	return sb.String()
}

// buildSummaryPrompt renders the messages into a plain-text transcript.
func buildSummaryPrompt(msgs []model.Message) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following messages:\n\n")
	for _, m := range msgs {
		writeTranscript(&sb, m)
	}
	return sb.String()
}

// buildAskPrompt renders a question, preceded by the transcripts of
// messages the conversation has not carried before.
func buildAskPrompt(question string, fresh []model.Message) string {
	if len(fresh) == 0 {
		return question
	}

	var sb strings.Builder
	sb.WriteString("Messages for reference:\n\n")
	for _, m := range fresh {
		writeTranscript(&sb, m)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

func writeTranscript(sb *strings.Builder, m model.Message) {
	sb.WriteString(fmt.Sprintf("From: %s <%s>\n", m.From.Name, m.From.Handle))
	if m.Subject != "" {
		sb.WriteString("Subject: " + m.Subject + "\n")
	}
	sb.WriteString("Date: " + m.Date.Format("2006-01-02 15:04") + "\n")
	body := m.Body
	if body == "" {
		body = "(no content)"
	}
	sb.WriteString(body)
	sb.WriteString("\n---\n")
}

// buildAPIMessages converts the conversation context into the API
// message format.
func (c *Client) buildAPIMessages() []apiMessage {
	turns := c.context.Turns()
	messages := make([]apiMessage, 0, len(turns))

	for _, t := range turns {
		messages = append(messages, apiMessage{
			Role: string(t.Role),
			Content: []apiContentBlock{
				{Type: "text", Text: t.Content},
			},
		})
	}

	return messages
}

// joinText concatenates the text blocks of a response.
func joinText(blocks []apiContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "")
}

// creditCost converts token usage into plan credits, rounding up with
// a minimum of one credit per call.
func creditCost(u apiUsage) int64 {
	total := u.InputTokens + u.OutputTokens
	credits := (int64(total) + tokensPerCredit - 1) / tokensPerCredit
	if credits < 1 {
		credits = 1
	}
	return credits
}

// --- API types ---

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      apiUsage          `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
