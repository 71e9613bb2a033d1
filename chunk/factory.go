package chunk

import (
	"fmt"
	"strconv"
)

// CompletionText is the text of every completion chunk.
const CompletionText = "Response generation completed"

// Factory builds normalized chunks on behalf of one processor.
type Factory struct {
	processor string
}

// NewFactory creates a factory stamping processorName on every chunk.
func NewFactory(processorName string) *Factory {
	return &Factory{processor: processorName}
}

// Processor returns the processor name stamped by this factory.
func (f *Factory) Processor() string {
	return f.processor
}

// Create builds a chunk of any type. Nil values in extra are dropped and
// non-string values are stringified.
func (f *Factory) Create(t Type, content string, extra map[string]any) Chunk {
	meta := make(map[string]string, len(extra)+1)
	meta[KeyProcessor] = f.processor
	for k, v := range extra {
		if s, ok := stringify(v); ok {
			meta[k] = s
		}
	}
	return Chunk{Type: t, Text: content, Metadata: meta}
}

// Text builds a TEXT chunk.
func (f *Factory) Text(content string) Chunk {
	return f.Create(TypeText, content, nil)
}

// TextDelta builds a TEXT chunk marked as an incremental delta.
func (f *Factory) TextDelta(content string) Chunk {
	return f.Create(TypeText, content, map[string]any{KeyDelta: content})
}

// ThinkingOpts are the optional fields of a THINKING chunk.
type ThinkingOpts struct {
	ReasoningID string
	// Status defaults to StatusInProgress.
	Status string
	// Delta marks the content as an increment to append verbatim.
	Delta bool
}

// Thinking builds a THINKING chunk.
func (f *Factory) Thinking(content string, opts ThinkingOpts) Chunk {
	status := opts.Status
	if status == "" {
		status = StatusInProgress
	}
	extra := map[string]any{
		KeyReasoningID: optional(opts.ReasoningID),
		KeyStatus:      status,
	}
	if opts.Delta {
		extra[KeyDelta] = content
	}
	return f.Create(TypeThinking, content, extra)
}

// ThinkingResult builds a THINKING_RESULT chunk closing a reasoning trace.
func (f *Factory) ThinkingResult(content, reasoningID string) Chunk {
	return f.Create(TypeThinkingResult, content, map[string]any{
		KeyReasoningID: optional(reasoningID),
		KeyStatus:      StatusCompleted,
	})
}

// ToolCallOpts describe a tool invocation.
type ToolCallOpts struct {
	ToolName    string
	ToolID      string
	ServerLabel string
	// Status defaults to StatusStarting.
	Status           string
	ReasoningSession string
	Parameters       string
	Description      string
}

// ToolCall builds a TOOL_CALL chunk.
func (f *Factory) ToolCall(content string, opts ToolCallOpts) Chunk {
	status := opts.Status
	if status == "" {
		status = StatusStarting
	}
	return f.Create(TypeToolCall, content, map[string]any{
		KeyToolName:         optional(opts.ToolName),
		KeyToolID:           optional(opts.ToolID),
		KeyServerLabel:      optional(opts.ServerLabel),
		KeyStatus:           status,
		KeyReasoningSession: optional(opts.ReasoningSession),
		KeyParameters:       optional(opts.Parameters),
		KeyDescription:      optional(opts.Description),
	})
}

// ToolResultOpts are the optional fields of a TOOL_RESULT chunk.
type ToolResultOpts struct {
	// Status defaults to StatusCompleted, or StatusError when IsError is set.
	Status           string
	IsError          bool
	ReasoningSession string
	ToolName         string
	ServerLabel      string
}

// ToolResult builds a TOOL_RESULT chunk. The error flag is always stamped.
func (f *Factory) ToolResult(content, toolID string, opts ToolResultOpts) Chunk {
	status := opts.Status
	if status == "" {
		status = StatusCompleted
		if opts.IsError {
			status = StatusError
		}
	}
	return f.Create(TypeToolResult, content, map[string]any{
		KeyToolID:           optional(toolID),
		KeyStatus:           status,
		KeyError:            opts.IsError,
		KeyReasoningSession: optional(opts.ReasoningSession),
		KeyToolName:         optional(opts.ToolName),
		KeyServerLabel:      optional(opts.ServerLabel),
	})
}

// Action builds an ACTION chunk attached to a tool session.
func (f *Factory) Action(content, toolID string) Chunk {
	return f.Create(TypeAction, content, map[string]any{KeyToolID: optional(toolID)})
}

// Lifecycle builds a LIFECYCLE chunk whose text is the stage name.
func (f *Factory) Lifecycle(stage string, extra map[string]any) Chunk {
	meta := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		meta[k] = v
	}
	meta[KeyStage] = stage
	return f.Create(TypeLifecycle, stage, meta)
}

// Completion builds the COMPLETION chunk ending a response.
func (f *Factory) Completion(status string, stats *Statistics) Chunk {
	if status == "" {
		status = StatusResponseComplete
	}
	c := f.Create(TypeCompletion, CompletionText, map[string]any{KeyStatus: status})
	c.Statistics = stats
	return c
}

// Error builds an ERROR chunk. errorType defaults to "unknown".
func (f *Factory) Error(content, errorType string) Chunk {
	if errorType == "" {
		errorType = "unknown"
	}
	return f.Create(TypeError, content, map[string]any{KeyErrorType: errorType})
}

// AuthOpts are the optional fields of an AUTH_REQUIRED chunk.
type AuthOpts struct {
	AuthURL  string
	State    string
	ServerID string
}

// AuthRequired builds an AUTH_REQUIRED chunk for a tool server.
func (f *Factory) AuthRequired(serverName string, opts AuthOpts) Chunk {
	return f.Create(TypeAuthRequired, fmt.Sprintf("Authentication required for %s", serverName), map[string]any{
		KeyServerName: serverName,
		KeyAuthURL:    optional(opts.AuthURL),
		KeyState:      optional(opts.State),
		KeyServerID:   optional(opts.ServerID),
	})
}

// Annotation builds an ANNOTATION chunk.
func (f *Factory) Annotation(content string, fields map[string]any) Chunk {
	return f.Create(TypeAnnotation, content, fields)
}

// Image builds an IMAGE, or IMAGE_PARTIAL when partial is set.
func (f *Factory) Image(content string, partial bool, extra map[string]any) Chunk {
	t := TypeImage
	if partial {
		t = TypeImagePartial
	}
	return f.Create(t, content, extra)
}

// optional maps an empty string to nil so Create drops it.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case bool:
		return FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}
