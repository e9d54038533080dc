// ABOUTME: Outbound client for the chat organizer completion API
// ABOUTME: Wraps transcripts in the organizing prompt and returns parsed JSON

package organizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrOrganizeFailed is returned when the completion API rejects or fails a
// request, or returns output that is not valid JSON.
var ErrOrganizeFailed = errors.New("organizing chat failed")

// organizingPrompt instructs the model to extract structured insight
// categories from a raw group chat transcript.
const organizingPrompt = `You are an intelligent assistant designed to analyze and organize group chat transcripts. I will provide you with raw, unstructured group messages. Your task is to deeply analyze the content and return highly detailed and structured insights under the following categories:

1. **Actions** - List all tasks or responsibilities discussed. Mention who is responsible, what the task is, and any relevant deadlines or follow-up.
2. **Events** - Identify any planned, ongoing, or completed events. Include details like date, time, location (if mentioned), purpose of the event, and participants.
3. **Jokes** - Extract all humorous content, sarcastic comments, or light-hearted banter. Try to explain why something might be funny or humorous.
4. **Summaries** - Provide a comprehensive summary of the entire conversation. Describe the flow of the chat, main topics, and outcomes.
5. **Questions** - List all explicit or implicit questions asked. Identify who asked them and if they were answered or not.
6. **Reminders** - Identify any explicit or implied reminders or follow-ups. Note who is reminding whom, and what the reminder is about.
7. **Decisions** - Highlight all decisions made in the chat. Be specific about what was decided, who made the decision, and if it was agreed upon by the group.
8. **Disagreements** - Extract any conflicting opinions, debates, or disagreements. Provide context, involved parties, and resolution status (if resolved).
9. **Topic Clusters** - Identify major topics of discussion and group related messages under each topic. For each cluster, provide a short title and a description.

Do not invent category entries; a transcript may cover only some categories. Capture names, dates, message tone, intent, and outcomes wherever applicable.

Return the result in the following JSON structure:

{
  "Actions": [ { "who": "", "what": "", "due_when": "", "context": "" } ],
  "Events": [ { "description": "", "when": "", "where": "", "who": "", "context": "" } ],
  "Jokes": [ { "message": "", "why_funny": "", "who": "", "context": "" } ],
  "Summaries": "Full detailed summary of the entire chat here...",
  "Questions": [ { "question": "", "who": "", "answered_by": "", "answer": "" } ],
  "Reminders": [ { "reminder": "", "who": "", "for_whom": "", "when": "", "context": "" } ],
  "Decisions": [ { "decision": "", "who": "", "agreed_by": "", "context": "" } ],
  "Disagreements": [ { "topic": "", "parties": "", "summary": "", "resolved": "", "context": "" } ]
}

Here is the chat transcript:
`

// Organizer turns raw chat transcripts into structured insight JSON.
// Satisfied by Client and by test stubs.
type Organizer interface {
	Organize(ctx context.Context, transcript string) (json.RawMessage, error)
}

// Client calls a chat-completions API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an organizer client.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 120 * time.Second},
		logger:  slog.Default().With("component", "organizer"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Organize analyzes a transcript and returns the structured categories.
func (c *Client) Organize(ctx context.Context, transcript string) (json.RawMessage, error) {
	payload := completionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: organizingPrompt + transcript},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrganizeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("completion request failed", "status", resp.StatusCode, "body", string(detail))
		return nil, fmt.Errorf("%w: status %d", ErrOrganizeFailed, resp.StatusCode)
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrOrganizeFailed)
	}

	cleaned := stripCodeFence(result.Choices[0].Message.Content)
	if !json.Valid([]byte(cleaned)) {
		c.logger.Error("completion output is not valid JSON")
		return nil, fmt.Errorf("%w: model output is not valid JSON", ErrOrganizeFailed)
	}
	return json.RawMessage(cleaned), nil
}

// stripCodeFence removes a ```json ... ``` wrapper the model sometimes adds.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Ensure Client implements Organizer
var _ Organizer = (*Client)(nil)
