// Package chunk defines the streamed output vocabulary shared by every processor.
//
// Information Hiding:
// - Wire representation of metadata (string-only map, boolean literals)
// - Normalization rules applied by the Factory constructors
// - Key names used to correlate reasoning and tool sessions

package chunk

import (
	"strconv"
	"strings"
)

// Type identifies the kind of a Chunk.
type Type string

const (
	// TypeText is a piece of assistant answer text.
	TypeText Type = "text"
	// TypeThinking is a piece of a reasoning trace.
	TypeThinking Type = "thinking"
	// TypeThinkingResult closes a reasoning trace.
	TypeThinkingResult Type = "thinking_result"
	// TypeToolCall announces or updates a tool invocation.
	TypeToolCall Type = "tool_call"
	// TypeToolResult carries the outcome of a tool invocation.
	TypeToolResult Type = "tool_result"
	// TypeAction is a freeform note attached to a tool invocation.
	TypeAction Type = "action"
	// TypeImage is a finished generated image.
	TypeImage Type = "image"
	// TypeImagePartial is an intermediate rendering of a generated image.
	TypeImagePartial Type = "image_partial"
	// TypeCompletion marks the end of a response and carries statistics.
	TypeCompletion Type = "completion"
	// TypeAuthRequired reports that a tool server needs the user to authenticate.
	TypeAuthRequired Type = "auth_required"
	// TypeError reports a failure inside the response.
	TypeError Type = "error"
	// TypeAnnotation carries a citation or other reference.
	TypeAnnotation Type = "annotation"
	// TypeLifecycle reports a provider-side lifecycle stage.
	TypeLifecycle Type = "lifecycle"
)

var allTypes = []Type{
	TypeText, TypeThinking, TypeThinkingResult, TypeToolCall, TypeToolResult, TypeAction,
	TypeImage, TypeImagePartial, TypeCompletion, TypeAuthRequired, TypeError, TypeAnnotation,
	TypeLifecycle,
}

// Types returns every known chunk type.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is a known chunk type.
func (t Type) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Well-known metadata keys.
const (
	KeyProcessor        = "processor"
	KeyDelta            = "delta"
	KeyReasoningID      = "reasoning_id"
	KeyReasoningSession = "reasoning_session"
	KeyStatus           = "status"
	KeyToolName         = "tool_name"
	KeyToolID           = "tool_id"
	KeyServerLabel      = "server_label"
	KeyParameters       = "parameters"
	KeyDescription      = "description"
	KeyError            = "error"
	KeyErrorType        = "error_type"
	KeyStage            = "stage"
	KeyAuthURL          = "auth_url"
	KeyState            = "state"
	KeyServerID         = "server_id"
	KeyServerName       = "server_name"
	KeyURL              = "url"
	KeySource           = "source"
	KeyCitations        = "citations"
	KeyModel            = "model"
	KeyMessageID        = "message_id"
	KeyStreaming        = "streaming"
	KeyStopReason       = "stop_reason"
	KeyMimeType         = "mime_type"
	KeySeparator        = "separator"
)

// Status values stamped by the factory.
const (
	StatusStarting           = "starting"
	StatusInProgress         = "in_progress"
	StatusCompleted          = "completed"
	StatusError              = "error"
	StatusArgumentsStreaming = "arguments_streaming"
	StatusArgumentsComplete  = "arguments_complete"
	StatusResponseComplete   = "response_complete"
)

// Boolean literals used on the metadata channel.
const (
	True  = "True"
	False = "False"
)

// Chunk is one unit of streamed processor output.
type Chunk struct {
	Type       Type              `msgpack:"type" json:"type"`
	Text       string            `msgpack:"text" json:"text"`
	Metadata   map[string]string `msgpack:"metadata,omitempty" json:"metadata,omitempty"`
	Statistics *Statistics       `msgpack:"statistics,omitempty" json:"statistics,omitempty"`
}

// Meta returns the metadata value for key, or "" when absent.
func (c Chunk) Meta(key string) string {
	return c.Metadata[key]
}

// MetaOr returns the metadata value for key, or def when absent.
func (c Chunk) MetaOr(key, def string) string {
	if v, ok := c.Metadata[key]; ok {
		return v
	}
	return def
}

// Flag parses a boolean-ish metadata value. Absent or malformed values are false.
func Flag(meta map[string]string, key string) bool {
	v, ok := meta[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(v), "yes")
	}
	return b
}

// FormatBool renders b as a metadata boolean literal.
func FormatBool(b bool) string {
	if b {
		return True
	}
	return False
}

// Statistics counts tokens and tool uses for one processor call.
type Statistics struct {
	InputTokens  int            `msgpack:"input_tokens" json:"input_tokens"`
	OutputTokens int            `msgpack:"output_tokens" json:"output_tokens"`
	ToolUses     map[string]int `msgpack:"tool_uses,omitempty" json:"tool_uses,omitempty"`
	Model        string         `msgpack:"model" json:"model"`
	Processor    string         `msgpack:"processor" json:"processor"`
}

// NewStatistics creates empty statistics for one call.
func NewStatistics(model, processor string) *Statistics {
	return &Statistics{
		ToolUses:  make(map[string]int),
		Model:     model,
		Processor: processor,
	}
}

// SetUsage records token counts. Negative values leave the current count untouched.
func (s *Statistics) SetUsage(input, output int) {
	if s == nil {
		return
	}
	if input >= 0 {
		s.InputTokens = input
	}
	if output >= 0 {
		s.OutputTokens = output
	}
}

// AddToolUse increments the use count of a tool, keyed "server.tool" when a server label is known.
func (s *Statistics) AddToolUse(toolName, serverLabel string) {
	if s == nil || toolName == "" {
		return
	}
	if s.ToolUses == nil {
		s.ToolUses = make(map[string]int)
	}
	key := toolName
	if serverLabel != "" {
		key = serverLabel + "." + toolName
	}
	s.ToolUses[key]++
}

// TotalTokens returns input plus output tokens.
func (s *Statistics) TotalTokens() int {
	if s == nil {
		return 0
	}
	return s.InputTokens + s.OutputTokens
}

// Clone returns a deep copy.
func (s *Statistics) Clone() *Statistics {
	if s == nil {
		return nil
	}
	out := *s
	out.ToolUses = make(map[string]int, len(s.ToolUses))
	for k, v := range s.ToolUses {
		out.ToolUses[k] = v
	}
	return &out
}
