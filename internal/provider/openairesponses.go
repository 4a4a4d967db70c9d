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

// OpenAIResponsesProvider speaks the OpenAI Responses API wire format: an
// item-based event stream (response.output_item.added/done,
// response.output_text.delta, response.function_call_arguments.delta, ...)
// rather than Chat Completions' flat delta chunks. go-openai's Responses
// support does not cover streaming at the pin this module uses, so the
// request/response envelope here is hand-rolled directly against the
// documented event names; the incremental decode still goes through the
// same shared internal/sse.Decoder as the other two adapters.
type OpenAIResponsesProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIResponsesProvider constructs an adapter against the OpenAI
// Responses API.
func NewOpenAIResponsesProvider(apiKey, baseURL string) *OpenAIResponsesProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIResponsesProvider{apiKey: apiKey, baseURL: baseURL, httpClient: &http.Client{}}
}

func (p *OpenAIResponsesProvider) Name() string     { return "openai-responses" }
func (p *OpenAIResponsesProvider) Api() models.Api { return models.ApiOpenAIResponses }

type responsesInputItem struct {
	Type    string              `json:"type"`
	Role    string              `json:"role,omitempty"`
	Content []responsesContent  `json:"content,omitempty"`
	CallID  string              `json:"call_id,omitempty"`
	Output  string              `json:"output,omitempty"`
	Name    string              `json:"name,omitempty"`
	Args    json.RawMessage     `json:"arguments,omitempty"`
	ID      string              `json:"id,omitempty"`
}

type responsesContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type responsesRequest struct {
	Model      string               `json:"model"`
	Instructions string             `json:"instructions,omitempty"`
	Input      []responsesInputItem `json:"input"`
	Tools      []responsesTool      `json:"tools,omitempty"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
	Stream     bool                 `json:"stream"`
	Reasoning  *responsesReasoning  `json:"reasoning,omitempty"`
}

type responsesReasoning struct {
	Effort string `json:"effort"`
}

func (p *OpenAIResponsesProvider) buildRequest(req StreamRequest) responsesRequest {
	out := responsesRequest{
		Model:           req.Model.ID,
		Instructions:    req.System,
		MaxOutputTokens: req.MaxTokens,
		Stream:          true,
	}
	for _, m := range req.Messages {
		out.Input = append(out.Input, convertResponsesItem(m)...)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, responsesTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	if effort, ok := models.ReasoningEffortFor(req.ThinkingLevel); ok {
		out.Reasoning = &responsesReasoning{Effort: string(effort)}
	}
	return out
}

func convertResponsesItem(m models.Message) []responsesInputItem {
	switch m.Kind {
	case models.MessageUser:
		var content []responsesContent
		for _, b := range m.Content {
			switch b.Kind {
			case models.BlockText:
				content = append(content, responsesContent{Type: "input_text", Text: b.Text})
			case models.BlockImage:
				content = append(content, responsesContent{Type: "input_image", ImageURL: "data:" + b.ImageMediaType + ";base64," + b.ImageData})
			}
		}
		return []responsesInputItem{{Type: "message", Role: "user", Content: content}}
	case models.MessageToolResult:
		return []responsesInputItem{{Type: "function_call_output", CallID: m.ToolCallID, Output: m.Text()}}
	case models.MessageAssistant:
		var items []responsesInputItem
		var textContent []responsesContent
		for _, b := range m.Content {
			if b.Kind == models.BlockText {
				textContent = append(textContent, responsesContent{Type: "output_text", Text: b.Text})
			}
		}
		if len(textContent) > 0 {
			items = append(items, responsesInputItem{Type: "message", Role: "assistant", Content: textContent})
		}
		for _, tc := range m.ToolCalls() {
			argBytes, _ := json.Marshal(tc.Arguments)
			items = append(items, responsesInputItem{Type: "function_call", ID: tc.ID, CallID: tc.ID, Name: tc.Name, Args: argBytes})
		}
		return items
	default:
		return nil
	}
}

func (p *OpenAIResponsesProvider) Stream(ctx context.Context, req StreamRequest) (<-chan AssistantMessageEvent, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, &Error{Kind: KindDecodingError, Provider: p.Name(), Model: req.Model.ID, Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(p.Name(), req.Model.ID, err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("authorization", "Bearer "+p.apiKey)
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

func (p *OpenAIResponsesProvider) errorFromBody(resp *http.Response, model string) *Error {
	data, _ := io.ReadAll(resp.Body)
	e := (&Error{Provider: p.Name(), Model: model}).WithStatus(resp.StatusCode)
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		e.WithMessage(body.Error.Message)
		if e.Status != http.StatusTooManyRequests && e.Status < 500 {
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

// responsesStreamEvent models the Responses API's item-based event
// envelope. Every event carries a "type" discriminator and, depending on
// type, an output_index identifying which item it concerns.
type responsesStreamEvent struct {
	Type        string `json:"type"`
	OutputIndex int    `json:"output_index"`

	Item *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	} `json:"item,omitempty"`

	Delta string `json:"delta,omitempty"`

	Response *struct {
		Status     string `json:"status"`
		Usage      *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage,omitempty"`
	} `json:"response,omitempty"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func responsesStopReason(status string) models.StopReason {
	switch status {
	case "completed":
		return models.StopReasonStop
	case "incomplete":
		return models.StopReasonLength
	case "failed":
		return models.StopReasonError
	default:
		return models.StopReasonStop
	}
}

// pump translates the Responses API's item lifecycle events into the
// canonical block-structured sequence. Each output item (message,
// function_call, reasoning) maps onto one content block at its
// output_index; a message item's text arrives via output_text.delta, a
// function_call item's arguments via function_call_arguments.delta.
func (p *OpenAIResponsesProvider) pump(ctx context.Context, body io.ReadCloser, model string, out chan<- AssistantMessageEvent) {
	defer close(out)
	defer body.Close()

	decoder := sse.NewDecoder()
	buf := make([]byte, 4096)

	toolBlocks := map[int]*models.ToolCall{}
	var finalStopReason models.StopReason
	var finalUsage *models.Usage

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
		var ev responsesStreamEvent
		if err := json.Unmarshal([]byte(raw.Data), &ev); err != nil {
			return emit(AssistantMessageEvent{Kind: EventError, Err: &Error{Kind: KindDecodingError, Provider: p.Name(), Model: model, Message: err.Error()}})
		}
		switch ev.Type {
		case "response.created":
			return emit(AssistantMessageEvent{Kind: EventMessageStart})
		case "response.output_item.added":
			if ev.Item == nil {
				return true
			}
			switch ev.Item.Type {
			case "message":
				return emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: ev.OutputIndex, BlockKind: models.BlockText})
			case "reasoning":
				return emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: ev.OutputIndex, BlockKind: models.BlockThinking})
			case "function_call":
				tc := &models.ToolCall{ID: ev.Item.ID, Name: ev.Item.Name}
				toolBlocks[ev.OutputIndex] = tc
				return emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: ev.OutputIndex, BlockKind: models.BlockToolCall, ToolCallID: tc.ID, ToolCallName: tc.Name})
			}
			return true
		case "response.output_text.delta":
			return emit(AssistantMessageEvent{Kind: EventTextDelta, BlockIndex: ev.OutputIndex, Delta: ev.Delta})
		case "response.reasoning_summary_text.delta":
			return emit(AssistantMessageEvent{Kind: EventThinkingDelta, BlockIndex: ev.OutputIndex, Delta: ev.Delta})
		case "response.function_call_arguments.delta":
			if tc, ok := toolBlocks[ev.OutputIndex]; ok {
				tc.RawArguments = append(tc.RawArguments, []byte(ev.Delta)...)
			}
			return emit(AssistantMessageEvent{Kind: EventToolCallDelta, BlockIndex: ev.OutputIndex, Delta: ev.Delta})
		case "response.output_item.done":
			if tc, ok := toolBlocks[ev.OutputIndex]; ok {
				tc.ParseArguments()
				delete(toolBlocks, ev.OutputIndex)
				return emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: ev.OutputIndex, ToolCall: tc})
			}
			return emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: ev.OutputIndex})
		case "response.completed", "response.incomplete", "response.failed":
			if ev.Response != nil {
				finalStopReason = responsesStopReason(ev.Response.Status)
				if ev.Response.Usage != nil {
					finalUsage = &models.Usage{
						Input: ev.Response.Usage.InputTokens, Output: ev.Response.Usage.OutputTokens,
						Total: ev.Response.Usage.TotalTokens,
					}
				}
			}
			if finalUsage != nil {
				if !emit(AssistantMessageEvent{Kind: EventUsage, Usage: *finalUsage}) {
					return false
				}
			}
			return emit(AssistantMessageEvent{Kind: EventMessageStop, StopReason: finalStopReason})
		case "error":
			msg := ""
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return emit(AssistantMessageEvent{Kind: EventError, Err: &Error{Kind: KindAPIError, Provider: p.Name(), Model: model, Message: msg}})
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
