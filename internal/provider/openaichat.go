package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentcore/runtime/internal/sse"
	"github.com/agentcore/runtime/pkg/models"
)

// OpenAIChatProvider speaks the OpenAI Chat Completions wire format.
// Request and response struct shapes reuse go-openai's own types
// (openai.ChatCompletionRequest, openai.ChatCompletionStreamResponse) so the
// JSON the adapter builds and parses matches the SDK's understanding of the
// API exactly; the SDK's own stream reader is not used, since the decode
// path goes through the shared incremental SSE decoder instead.
type OpenAIChatProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIChatProvider constructs an adapter against the OpenAI Chat
// Completions API, or an OpenAI-compatible gateway at a custom baseURL.
func NewOpenAIChatProvider(apiKey, baseURL string) *OpenAIChatProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIChatProvider{apiKey: apiKey, baseURL: baseURL, httpClient: &http.Client{}}
}

func (p *OpenAIChatProvider) Name() string     { return "openai" }
func (p *OpenAIChatProvider) Api() models.Api { return models.ApiOpenAIChatCompletion }

func (p *OpenAIChatProvider) buildRequest(req StreamRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:     req.Model.ID,
		MaxTokens: req.MaxTokens,
		Stream:    true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, convertOpenAIChatMessages(m)...)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	if effort, ok := models.ReasoningEffortFor(req.ThinkingLevel); ok {
		out.ReasoningEffort = string(effort)
	}
	return out
}

func convertOpenAIChatMessages(m models.Message) []openai.ChatCompletionMessage {
	switch m.Kind {
	case models.MessageUser:
		return []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: m.Text()}}
	case models.MessageToolResult:
		return []openai.ChatCompletionMessage{{
			Role:       openai.ChatMessageRoleTool,
			Content:    m.Text(),
			ToolCallID: m.ToolCallID,
		}}
	case models.MessageAssistant:
		msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text()}
		for _, tc := range m.ToolCalls() {
			argBytes, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: string(argBytes)},
			})
		}
		return []openai.ChatCompletionMessage{msg}
	default:
		return nil
	}
}

func (p *OpenAIChatProvider) Stream(ctx context.Context, req StreamRequest) (<-chan AssistantMessageEvent, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, &Error{Kind: KindDecodingError, Provider: p.Name(), Model: req.Model.ID, Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
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

func (p *OpenAIChatProvider) errorFromBody(resp *http.Response, model string) *Error {
	data, _ := io.ReadAll(resp.Body)
	e := (&Error{Provider: p.Name(), Model: model}).WithStatus(resp.StatusCode)
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
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

func openAIChatStopReason(finish string) models.StopReason {
	switch finish {
	case "stop":
		return models.StopReasonStop
	case "length":
		return models.StopReasonLength
	case "tool_calls":
		return models.StopReasonToolUse
	case "content_filter":
		return models.StopReasonError
	default:
		return models.StopReasonStop
	}
}

// pump decodes the SSE body (terminated by the literal "data: [DONE]" line)
// into openai.ChatCompletionStreamResponse chunks and translates the
// accumulating delta stream into the canonical block-structured event
// sequence: Chat Completions has no explicit block boundaries, so the
// adapter synthesizes a single text block (index 0) and one tool-call block
// per distinct tool_calls[].index the API sends.
func (p *OpenAIChatProvider) pump(ctx context.Context, body io.ReadCloser, model string, out chan<- AssistantMessageEvent) {
	defer close(out)
	defer body.Close()

	decoder := sse.NewDecoder()
	buf := make([]byte, 4096)

	started := false
	textBlockOpen := false
	toolBlocks := map[int]*models.ToolCall{}
	nextBlockIndex := 1 // 0 reserved for the synthesized text block

	emit := func(ev AssistantMessageEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	ensureStarted := func() bool {
		if !started {
			started = true
			return emit(AssistantMessageEvent{Kind: EventMessageStart})
		}
		return true
	}

	closeAllBlocks := func() bool {
		if textBlockOpen {
			textBlockOpen = false
			if !emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: 0}) {
				return false
			}
		}
		for idx, tc := range toolBlocks {
			tc.ParseArguments()
			if !emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: idx, ToolCall: tc}) {
				return false
			}
		}
		toolBlocks = map[int]*models.ToolCall{}
		return true
	}

	handle := func(raw sse.Event) bool {
		if raw.Data == "" {
			return true
		}
		if raw.Data == "[DONE]" {
			return true
		}
		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(raw.Data), &chunk); err != nil {
			return emit(AssistantMessageEvent{Kind: EventError, Err: &Error{Kind: KindDecodingError, Provider: p.Name(), Model: model, Message: err.Error()}})
		}
		if !ensureStarted() {
			return false
		}
		if chunk.Usage != nil {
			if !emit(AssistantMessageEvent{Kind: EventUsage, Usage: models.Usage{
				Input: chunk.Usage.PromptTokens, Output: chunk.Usage.CompletionTokens, Total: chunk.Usage.TotalTokens,
			}}) {
				return false
			}
		}
		if len(chunk.Choices) == 0 {
			return true
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if !textBlockOpen {
				textBlockOpen = true
				if !emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: 0, BlockKind: models.BlockText}) {
					return false
				}
			}
			if !emit(AssistantMessageEvent{Kind: EventTextDelta, BlockIndex: 0, Delta: choice.Delta.Content}) {
				return false
			}
		}
		for _, tcDelta := range choice.Delta.ToolCalls {
			idx := 0
			if tcDelta.Index != nil {
				idx = *tcDelta.Index
			}
			blockIdx, known := indexFor(toolBlocks, idx, &nextBlockIndex)
			tc, exists := toolBlocks[blockIdx]
			if !exists {
				tc = &models.ToolCall{ID: tcDelta.ID, Name: tcDelta.Function.Name}
				toolBlocks[blockIdx] = tc
				if !emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: blockIdx, BlockKind: models.BlockToolCall, ToolCallID: tc.ID, ToolCallName: tc.Name}) {
					return false
				}
			}
			if !known && tcDelta.Function.Name != "" {
				tc.Name = tcDelta.Function.Name
			}
			if tcDelta.Function.Arguments != "" {
				tc.RawArguments = append(tc.RawArguments, []byte(tcDelta.Function.Arguments)...)
				if !emit(AssistantMessageEvent{Kind: EventToolCallDelta, BlockIndex: blockIdx, Delta: tcDelta.Function.Arguments}) {
					return false
				}
			}
		}
		if choice.FinishReason != "" {
			if !closeAllBlocks() {
				return false
			}
			return emit(AssistantMessageEvent{Kind: EventMessageStop, StopReason: openAIChatStopReason(string(choice.FinishReason))})
		}
		return true
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

// indexFor maps a provider-sent tool_calls[].index to a stable block index,
// allocating a new one via *next the first time an index is seen. The bool
// reports whether the mapping already existed.
func indexFor(blocks map[int]*models.ToolCall, providerIndex int, next *int) (int, bool) {
	// providerIndex is used directly offset by 1 to keep index 0 reserved
	// for the synthesized text block; OpenAI's tool_calls indices already
	// start at 0 and are stable for the duration of one message.
	blockIdx := providerIndex + 1
	if blockIdx >= *next {
		*next = blockIdx + 1
	}
	_, exists := blocks[blockIdx]
	return blockIdx, exists
}
