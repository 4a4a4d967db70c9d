package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/agentcore/runtime/internal/sse"
	"github.com/agentcore/runtime/pkg/models"
)

// AnthropicProvider speaks the Anthropic Messages wire format. Request and
// response struct shapes follow anthropic-sdk-go's own types; the decoder
// is hand-rolled against internal/sse rather than the SDK's stream reader,
// since the agent loop needs the exact incremental byte-stream contract
// SPEC_FULL.md's SSE section specifies, not the SDK's buffered event
// structs.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicProvider constructs an adapter against the Anthropic Messages
// API. baseURL defaults to the public API when empty, which is how a model
// catalog entry requests a self-hosted-compatible gateway instead.
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{apiKey: apiKey, baseURL: baseURL, httpClient: &http.Client{}}
}

func (p *AnthropicProvider) Name() string     { return "anthropic" }
func (p *AnthropicProvider) Api() models.Api { return models.ApiAnthropicMessages }

type anthropicRequestMessage struct {
	Role    string                   `json:"role"`
	Content []map[string]any `json:"content"`
}

type anthropicRequest struct {
	Model     string                    `json:"model"`
	System    string                    `json:"system,omitempty"`
	Messages  []anthropicRequestMessage `json:"messages"`
	Tools     []anthropicTool           `json:"tools,omitempty"`
	MaxTokens int                       `json:"max_tokens"`
	Stream    bool                      `json:"stream"`
	Thinking  *anthropicThinking        `json:"thinking,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) buildRequest(req StreamRequest) anthropicRequest {
	out := anthropicRequest{
		Model:     req.Model.ID,
		System:    req.System,
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, convertAnthropicMessage(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	if budget, ok := models.AnthropicBudgetTokens(req.ThinkingLevel); ok {
		out.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: budget}
	}
	return out
}

func convertAnthropicMessage(m models.Message) anthropicRequestMessage {
	switch m.Kind {
	case models.MessageUser:
		role := "user"
		var content []map[string]any
		for _, b := range m.Content {
			switch b.Kind {
			case models.BlockText:
				content = append(content, map[string]any{"type": "text", "text": b.Text})
			case models.BlockImage:
				content = append(content, map[string]any{
					"type":   "image",
					"source": map[string]any{"type": "base64", "media_type": b.ImageMediaType, "data": b.ImageData},
				})
			}
		}
		return anthropicRequestMessage{Role: role, Content: content}
	case models.MessageToolResult:
		status := "tool_result"
		block := map[string]any{"type": status, "tool_use_id": m.ToolCallID, "content": m.Text(), "is_error": m.IsError}
		return anthropicRequestMessage{Role: "user", Content: []map[string]any{block}}
	case models.MessageAssistant:
		var content []map[string]any
		for _, b := range m.Content {
			switch b.Kind {
			case models.BlockText:
				content = append(content, map[string]any{"type": "text", "text": b.Text})
			case models.BlockThinking:
				content = append(content, map[string]any{"type": "thinking", "thinking": b.Text})
			case models.BlockToolCall:
				if b.ToolCall != nil {
					content = append(content, map[string]any{
						"type": "tool_use", "id": b.ToolCall.ID, "name": b.ToolCall.Name,
						"input": b.ToolCall.Arguments,
					})
				}
			}
		}
		return anthropicRequestMessage{Role: "assistant", Content: content}
	default:
		return anthropicRequestMessage{}
	}
}

// Stream issues the HTTP request and decodes the SSE body into canonical
// events on a background goroutine, closing the channel once the terminal
// event is emitted or ctx is cancelled.
func (p *AnthropicProvider) Stream(ctx context.Context, req StreamRequest) (<-chan AssistantMessageEvent, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, &Error{Kind: KindDecodingError, Provider: p.Name(), Model: req.Model.ID, Cause: err, Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(p.Name(), req.Model.ID, err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	for k, v := range req.Model.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewError(p.Name(), req.Model.ID, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, p.errorFromBody(resp, req.Model.ID)
	}

	out := make(chan AssistantMessageEvent, 16)
	go p.pump(ctx, resp.Body, req.Model.ID, out)
	return out, nil
}

func (p *AnthropicProvider) errorFromBody(resp *http.Response, model string) *Error {
	data, _ := io.ReadAll(resp.Body)
	e := (&Error{Provider: p.Name(), Model: model}).WithStatus(resp.StatusCode)
	var body anthropicErrorBody
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		e.WithMessage(body.Error.Message)
		if e.Status != http.StatusTooManyRequests && e.Status != 529 && e.Status < 500 {
			e.Kind = KindAPIError
		}
	}
	if e.Kind == KindRateLimited {
		if ra := resp.Header.Get("retry-after"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				e.WithRetryAfter(secs)
			}
		}
	}
	return e
}

// anthropicStreamEvent models the subset of Anthropic's typed SSE payloads
// the decoder cares about; unrecognized fields are simply absent from each
// concrete shape and ignored by json.Unmarshal.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		Thinking    string `json:"thinking,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`

	Usage *struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage,omitempty"`

	Message *struct {
		StopReason string `json:"stop_reason"`
		Usage      *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func anthropicStopReason(s string) models.StopReason {
	switch s {
	case "end_turn", "stop_sequence":
		return models.StopReasonStop
	case "max_tokens":
		return models.StopReasonLength
	case "tool_use":
		return models.StopReasonToolUse
	default:
		return models.StopReasonStop
	}
}

// pump decodes the body into typed Anthropic events and translates each one
// into the canonical AssistantMessageEvent sequence, tracking a per-block
// raw-argument buffer for tool_use blocks so arguments parse exactly once
// at content_block_stop.
func (p *AnthropicProvider) pump(ctx context.Context, body io.ReadCloser, model string, out chan<- AssistantMessageEvent) {
	defer close(out)
	defer body.Close()

	decoder := sse.NewDecoder()
	toolBuffers := map[int]*models.ToolCall{}
	buf := make([]byte, 4096)

	emit := func(ev AssistantMessageEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	handle := func(raw sse.Event) bool {
		if raw.Data == "" {
			return true
		}
		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(raw.Data), &ev); err != nil {
			return emit(AssistantMessageEvent{Kind: EventError, Err: &Error{Kind: KindDecodingError, Provider: p.Name(), Model: model, Message: err.Error()}})
		}
		switch ev.Type {
		case "message_start":
			return emit(AssistantMessageEvent{Kind: EventMessageStart})
		case "content_block_start":
			if ev.ContentBlock == nil {
				return true
			}
			switch ev.ContentBlock.Type {
			case "text":
				return emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: ev.Index, BlockKind: models.BlockText})
			case "thinking":
				return emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: ev.Index, BlockKind: models.BlockThinking})
			case "tool_use":
				toolBuffers[ev.Index] = &models.ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
				return emit(AssistantMessageEvent{
					Kind: EventBlockStart, BlockIndex: ev.Index, BlockKind: models.BlockToolCall,
					ToolCallID: ev.ContentBlock.ID, ToolCallName: ev.ContentBlock.Name,
				})
			}
			return true
		case "content_block_delta":
			if ev.Delta == nil {
				return true
			}
			switch ev.Delta.Type {
			case "text_delta":
				return emit(AssistantMessageEvent{Kind: EventTextDelta, BlockIndex: ev.Index, Delta: ev.Delta.Text})
			case "thinking_delta":
				return emit(AssistantMessageEvent{Kind: EventThinkingDelta, BlockIndex: ev.Index, Delta: ev.Delta.Thinking})
			case "input_json_delta":
				if tc, ok := toolBuffers[ev.Index]; ok {
					tc.RawArguments = append(tc.RawArguments, []byte(ev.Delta.PartialJSON)...)
				}
				return emit(AssistantMessageEvent{Kind: EventToolCallDelta, BlockIndex: ev.Index, Delta: ev.Delta.PartialJSON})
			}
			return true
		case "content_block_stop":
			if tc, ok := toolBuffers[ev.Index]; ok {
				tc.ParseArguments()
				delete(toolBuffers, ev.Index)
				return emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: ev.Index, ToolCall: tc})
			}
			return emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: ev.Index})
		case "message_delta":
			if ev.Usage != nil {
				emit(AssistantMessageEvent{Kind: EventUsage, Usage: models.Usage{
					Input: ev.Usage.InputTokens, Output: ev.Usage.OutputTokens,
					CacheRead: ev.Usage.CacheReadInputTokens, CacheWrite: ev.Usage.CacheCreationInputTokens,
					Total: ev.Usage.InputTokens + ev.Usage.OutputTokens,
				}})
			}
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				return emit(AssistantMessageEvent{Kind: EventMessageStop, StopReason: anthropicStopReason(ev.Delta.StopReason)})
			}
			return true
		case "message_stop":
			return true
		case "error":
			kind := KindAPIError
			msg := ""
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return emit(AssistantMessageEvent{Kind: EventError, Err: &Error{Kind: kind, Provider: p.Name(), Model: model, Message: msg}})
		case "ping":
			return true
		default:
			return true
		}
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range decoder.Feed(buf[:n]) {
				if !handle(ev) {
					return
				}
			}
		}
		if err != nil {
			for _, ev := range decoder.Flush() {
				if !handle(ev) {
					return
				}
			}
			if err != io.EOF {
				emit(AssistantMessageEvent{Kind: EventError, Err: NewError(p.Name(), model, err)})
			}
			return
		}
		select {
		case <-ctx.Done():
			emit(AssistantMessageEvent{Kind: EventError, Err: &Error{Kind: KindAborted, Provider: p.Name(), Model: model}})
			return
		default:
		}
	}
}
