package provider

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	genai "google.golang.org/genai"

	"github.com/agentcore/runtime/pkg/models"
)

// GeminiProvider speaks Google's Generative Language API through the genai
// SDK's own streaming client rather than a hand-rolled HTTP+SSE path: it is
// a domain-stack enrichment beyond the three providers the canonical event
// model was designed around, and genai.Client.Models.GenerateContentStream
// already yields one fully-accumulated candidate per network chunk, so
// there is no raw byte stream worth decoding by hand here the way there is
// for the other three.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider constructs an adapter around a genai.Client configured
// for the Gemini API backend.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError("gemini", "", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string     { return "gemini" }
func (p *GeminiProvider) Api() models.Api { return models.Api("google-generative-language") }

func convertGeminiMessages(messages []models.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		content := &genai.Content{}
		switch m.Kind {
		case models.MessageUser:
			content.Role = genai.RoleUser
			for _, b := range m.Content {
				if b.Kind == models.BlockText {
					content.Parts = append(content.Parts, &genai.Part{Text: b.Text})
				}
			}
		case models.MessageToolResult:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     m.ToolName,
					Response: map[string]any{"result": m.Text()},
				},
			})
		case models.MessageAssistant:
			content.Role = genai.RoleModel
			for _, b := range m.Content {
				switch b.Kind {
				case models.BlockText:
					content.Parts = append(content.Parts, &genai.Part{Text: b.Text})
				case models.BlockToolCall:
					if b.ToolCall != nil {
						content.Parts = append(content.Parts, &genai.Part{
							FunctionCall: &genai.FunctionCall{Name: b.ToolCall.Name, Args: b.ToolCall.Arguments},
						})
					}
				}
			}
		default:
			continue
		}
		out = append(out, content)
	}
	return out
}

func convertGeminiTools(tools []ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  geminiSchemaFrom(schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// geminiSchemaFrom does a shallow conversion of a parsed JSON schema object
// into genai.Schema, sufficient for the flat object/string/number/boolean
// shapes the tool table's top-level parameter validation supports; nested
// schema features beyond what the argument validator checks are not
// round-tripped.
func geminiSchemaFrom(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		schema.Type = genai.Type(toUpperASCII(t))
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				schema.Properties[name] = geminiSchemaFrom(sub)
			}
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// Stream drives genai's own streaming iterator and translates each
// accumulated response into the canonical event sequence. Gemini sends one
// candidate snapshot per chunk rather than true incremental deltas for tool
// calls, so each function call part is opened and closed in the same
// iteration; text parts are treated as deltas since Gemini does send text
// incrementally.
func (p *GeminiProvider) Stream(ctx context.Context, req StreamRequest) (<-chan AssistantMessageEvent, error) {
	contents := convertGeminiMessages(req.Messages)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Tools:           convertGeminiTools(req.Tools),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	out := make(chan AssistantMessageEvent, 16)
	go p.pump(ctx, req.Model.ID, contents, config, out)
	return out, nil
}

func (p *GeminiProvider) pump(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, out chan<- AssistantMessageEvent) {
	defer close(out)

	emit := func(ev AssistantMessageEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(AssistantMessageEvent{Kind: EventMessageStart}) {
		return
	}

	textBlockOpen := false
	var lastFinish genai.FinishReason
	var lastUsage *models.Usage

	for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			emit(AssistantMessageEvent{Kind: EventError, Err: NewError(p.Name(), model, err)})
			return
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			lastUsage = &models.Usage{
				Input:  int(resp.UsageMetadata.PromptTokenCount),
				Output: int(resp.UsageMetadata.CandidatesTokenCount),
				Total:  int(resp.UsageMetadata.TotalTokenCount),
			}
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			if candidate.FinishReason != "" {
				lastFinish = candidate.FinishReason
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					if !textBlockOpen {
						textBlockOpen = true
						if !emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: 0, BlockKind: models.BlockText}) {
							return
						}
					}
					if !emit(AssistantMessageEvent{Kind: EventTextDelta, BlockIndex: 0, Delta: part.Text}) {
						return
					}
				}
				if part.FunctionCall != nil {
					idx := 1
					tc := &models.ToolCall{ID: uuid.NewString(), Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args}
					if !emit(AssistantMessageEvent{Kind: EventBlockStart, BlockIndex: idx, BlockKind: models.BlockToolCall, ToolCallID: tc.ID, ToolCallName: tc.Name}) {
						return
					}
					if !emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: idx, ToolCall: tc}) {
						return
					}
				}
			}
		}
	}

	if textBlockOpen {
		if !emit(AssistantMessageEvent{Kind: EventBlockStop, BlockIndex: 0}) {
			return
		}
	}
	if lastUsage != nil {
		if !emit(AssistantMessageEvent{Kind: EventUsage, Usage: *lastUsage}) {
			return
		}
	}
	emit(AssistantMessageEvent{Kind: EventMessageStop, StopReason: geminiStopReason(string(lastFinish))})
}

func geminiStopReason(finish string) models.StopReason {
	switch finish {
	case "STOP":
		return models.StopReasonStop
	case "MAX_TOKENS":
		return models.StopReasonLength
	case "":
		return models.StopReasonStop
	default:
		return models.StopReasonError
	}
}
