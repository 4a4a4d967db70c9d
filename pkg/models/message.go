package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// BlockKind discriminates a ContentBlock variant.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockImage    BlockKind = "image"
	BlockThinking BlockKind = "thinking"
	BlockToolCall BlockKind = "toolCall"
)

// ContentBlock is one fragment of a message's content. Only the fields
// relevant to Kind are populated. Order across block kinds within a single
// message is significant and preserved verbatim, since providers interleave
// text, thinking, and tool-call blocks freely.
type ContentBlock struct {
	Kind BlockKind `json:"kind"`

	// Text, present for BlockText and BlockThinking.
	Text string `json:"text,omitempty"`

	// Image, present for BlockImage.
	ImageMediaType string `json:"imageMediaType,omitempty"`
	ImageData      string `json:"imageData,omitempty"` // base64

	// ToolCall, present for BlockToolCall.
	ToolCall *ToolCall `json:"toolCall,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock { return ContentBlock{Kind: BlockText, Text: text} }

// ImageBlock builds a base64-encoded image content block.
func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{Kind: BlockImage, ImageMediaType: mediaType, ImageData: data}
}

// ThinkingBlock builds a thinking content block.
func ThinkingBlock(text string) ContentBlock { return ContentBlock{Kind: BlockThinking, Text: text} }

// ToolCallBlock wraps a ToolCall as a content block.
func ToolCallBlock(call ToolCall) ContentBlock {
	return ContentBlock{Kind: BlockToolCall, ToolCall: &call}
}

// ToolCall is a provider-assigned request to execute a tool.
//
// Arguments accumulate as a raw JSON string during streaming (RawArguments)
// and are parsed exactly once when the call block terminates; Arguments is
// nil until ParseArguments runs. A parse failure leaves Arguments empty,
// which the argument validator then rejects as if every required key were
// missing, rather than failing the whole stream.
type ToolCall struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	RawArguments     json.RawMessage `json:"rawArguments,omitempty"`
	Arguments        map[string]any  `json:"arguments,omitempty"`
	ThoughtSignature string          `json:"thoughtSignature,omitempty"`
}

// ParseArguments parses RawArguments into Arguments. Idempotent: calling it
// twice re-parses from RawArguments rather than operating on the prior
// result.
func (c *ToolCall) ParseArguments() {
	if len(c.RawArguments) == 0 {
		c.Arguments = map[string]any{}
		return
	}
	var args map[string]any
	if err := json.Unmarshal(c.RawArguments, &args); err != nil {
		c.Arguments = map[string]any{}
		return
	}
	c.Arguments = args
}

// MessageKind discriminates a Message variant.
type MessageKind string

const (
	MessageUser       MessageKind = "user"
	MessageAssistant  MessageKind = "assistant"
	MessageToolResult MessageKind = "toolResult"
)

// Message is the tagged union at the heart of the data model: a User turn,
// an Assistant turn, or a ToolResult. An Assistant message is immutable once
// its terminal event has been observed; User and ToolResult messages are
// immutable from construction.
type Message struct {
	Kind      MessageKind `json:"kind"`
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`

	// User: content is an ordered list of text/image blocks. A plain string
	// prompt is represented as a single TextBlock.
	//
	// Assistant: content is an ordered list of text/thinking/tool-call
	// blocks, in the order the provider emitted them.
	Content []ContentBlock `json:"content,omitempty"`

	// Assistant only.
	Api        Api        `json:"api,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	Model      string     `json:"model,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
	StopReason StopReason `json:"stopReason,omitempty"`
	Error      string     `json:"error,omitempty"`

	// ToolResult only.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

// NewUserMessage builds a User message from plain text.
func NewUserMessage(id, text string) Message {
	return Message{Kind: MessageUser, ID: id, Content: []ContentBlock{TextBlock(text)}, Timestamp: time.Now()}
}

// NewUserMessageBlocks builds a User message from explicit content blocks.
func NewUserMessageBlocks(id string, blocks []ContentBlock) Message {
	return Message{Kind: MessageUser, ID: id, Content: blocks, Timestamp: time.Now()}
}

// NewToolResult builds a ToolResult message.
func NewToolResult(id, toolCallID, toolName, content string, isError bool) Message {
	return Message{
		Kind:       MessageToolResult,
		ID:         id,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    []ContentBlock{TextBlock(content)},
		IsError:    isError,
		Timestamp:  time.Now(),
	}
}

// Text concatenates the message's text blocks, ignoring images, thinking,
// and tool calls. Useful for log lines and simple hosts.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls returns the tool calls embedded in an Assistant message's
// content, in block order.
func (m *Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Kind == BlockToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// AgentMessageKind discriminates an AgentMessage variant.
type AgentMessageKind string

const (
	AgentMessageWrapped AgentMessageKind = "message"
	AgentMessageCustom  AgentMessageKind = "custom"
)

// AgentMessage wraps either a Message or an opaque Custom record. Only
// Message variants are ever sent to a provider; Custom variants are
// persisted and visible to host code but filtered out at the LLM boundary.
type AgentMessage struct {
	Kind AgentMessageKind `json:"kind"`

	Message *Message `json:"message,omitempty"`

	CustomType string `json:"customType,omitempty"`
	CustomData any    `json:"customData,omitempty"`
}

// WrapMessage wraps a Message as an AgentMessage.
func WrapMessage(m Message) AgentMessage {
	return AgentMessage{Kind: AgentMessageWrapped, Message: &m}
}

// WrapCustom wraps an opaque host record as an AgentMessage.
func WrapCustom(customType string, data any) AgentMessage {
	return AgentMessage{Kind: AgentMessageCustom, CustomType: customType, CustomData: data}
}

// IsMessage reports whether this is a wrapped Message, as opposed to Custom.
func (a AgentMessage) IsMessage() bool { return a.Kind == AgentMessageWrapped && a.Message != nil }

// FilterLLMVisible drops every Custom entry, returning only the Messages a
// provider may see, in order.
func FilterLLMVisible(entries []AgentMessage) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		if e.IsMessage() {
			out = append(out, *e.Message)
		}
	}
	return out
}

func (c ContentBlock) String() string {
	switch c.Kind {
	case BlockText:
		return c.Text
	case BlockThinking:
		return fmt.Sprintf("[thinking] %s", c.Text)
	case BlockImage:
		return fmt.Sprintf("[image %s]", c.ImageMediaType)
	case BlockToolCall:
		if c.ToolCall != nil {
			return fmt.Sprintf("[tool_call %s]", c.ToolCall.Name)
		}
		return "[tool_call]"
	default:
		return ""
	}
}
