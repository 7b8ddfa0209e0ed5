// Package anthropicapi is a reference llm.Client adapter for the Anthropic
// Messages API. It is grounded on the hand-rolled HTTP provider
// (pkg/llms/anthropic.go) rather than a generated SDK: it talks to Claude
// directly over net/http, trimmed to what the agent loop needs. Each
// Complete call is a single HTTP request; failed requests are not retried.
//
// The model service itself is out of scope; this package
// exists only as the one concrete Client an operator can wire in.
package anthropicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wittyreference/feature-factory/internal/llm"
	"github.com/wittyreference/feature-factory/internal/model"
)

const defaultBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// Config configures the client.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements llm.Client against the Anthropic Messages API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropicapi: API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{apiKey: cfg.APIKey, baseURL: baseURL, http: hc}, nil
}

type wireMessage struct {
	Role    string            `json:"role"`
	Content []wireContentBlock `json:"content"`
}

type wireContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wireResponse struct {
	Content    []wireContentBlock `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      wireUsage          `json:"usage"`
	Error      *wireError         `json:"error,omitempty"`
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	wreq := wireRequest{
		Model:     req.Model,
		System:    req.SystemPrompt,
		MaxTokens: req.MaxTokens,
	}
	if wreq.MaxTokens == 0 {
		wreq.MaxTokens = 4096
	}
	for _, m := range req.Messages {
		wreq.Messages = append(wreq.Messages, toWireMessage(m))
	}
	for _, t := range req.Tools {
		wreq.Tools = append(wreq.Tools, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	body, err := json.Marshal(wreq)
	if err != nil {
		return nil, fmt.Errorf("anthropicapi: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropicapi: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropicapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropicapi: read response: %w", err)
	}

	var wresp wireResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return nil, fmt.Errorf("anthropicapi: decode response (status %d): %w", resp.StatusCode, err)
	}
	if wresp.Error != nil {
		return nil, fmt.Errorf("anthropicapi: %s: %s", wresp.Error.Type, wresp.Error.Message)
	}

	out := &llm.Response{
		StopReason:   wresp.StopReason,
		InputTokens:  wresp.Usage.InputTokens,
		OutputTokens: wresp.Usage.OutputTokens,
	}
	for _, b := range wresp.Content {
		out.Blocks = append(out.Blocks, fromWireBlock(b))
	}
	return out, nil
}

func toWireMessage(m model.Message) wireMessage {
	role := "user"
	if m.Role == model.RoleAssistant {
		role = "assistant"
	}
	var blocks []wireContentBlock
	if m.Text != "" {
		blocks = append(blocks, wireContentBlock{Type: "text", Text: m.Text})
	}
	for _, b := range m.Blocks {
		switch b.Type {
		case "tool_use":
			blocks = append(blocks, wireContentBlock{
				Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.Input,
			})
		case "tool_result":
			blocks = append(blocks, wireContentBlock{
				Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Result, IsError: b.IsError,
			})
		case "text":
			blocks = append(blocks, wireContentBlock{Type: "text", Text: b.Text})
		}
	}
	return wireMessage{Role: role, Content: blocks}
}

func fromWireBlock(b wireContentBlock) model.ContentBlock {
	return model.ContentBlock{
		Type:      b.Type,
		Text:      b.Text,
		ToolUseID: firstNonEmpty(b.ID, b.ToolUseID),
		ToolName:  b.Name,
		Input:     b.Input,
		Result:    b.Content,
		IsError:   b.IsError,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
