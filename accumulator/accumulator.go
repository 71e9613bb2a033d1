// Package accumulator reduces a chunk stream into conversation state.
//
// Information Hiding:
// - Reasoning and tool session correlation when processors omit ids
// - Lookup-or-create of thinking items by (type, id)
// - Parsing of string-only metadata flags
// - Transient turn state (activity label, auth prompt, image buffer)
//
// An Accumulator serves one turn at a time and is not safe for concurrent use.
package accumulator

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

// UnknownTool is the tool name used when a chunk carries none.
const UnknownTool = "Unknown"

// Activity labels.
const (
	ActivityThinking  = "Thinking..."
	activityToolUsing = "Using tool: "
)

// AuthRequest is the pending authentication prompt of a tool server.
// PendingMessage is the last human prompt, to be resent once authenticated.
type AuthRequest struct {
	Pending        bool
	ServerID       string
	ServerName     string
	AuthURL        string
	PendingMessage string
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithLogger sets the logger used for skipped chunks.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Accumulator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSessionIDs replaces the generator of new reasoning session ids.
func WithSessionIDs(next func() string) Option {
	return func(a *Accumulator) {
		if next != nil {
			a.nextSessionID = next
		}
	}
}

type itemKey struct {
	kind model.ThinkingType
	id   string
}

// Accumulator holds the state of one streamed turn.
type Accumulator struct {
	logger        *zap.Logger
	nextSessionID func() string

	messages *[]model.Message
	items    []*model.Thinking
	index    map[itemKey]*model.Thinking
	touched  *model.Thinking

	reasoningSession string
	toolSession      string

	images       []chunk.Chunk
	showThinking bool
	activity     string
	auth         AuthRequest
	lastError    string
	stats        *chunk.Statistics
}

// New creates an empty accumulator with its own message list.
func New(opts ...Option) *Accumulator {
	a := &Accumulator{
		logger:        zap.NewNop(),
		nextSessionID: newReasoningSessionID,
		messages:      &[]model.Message{},
		index:         make(map[itemKey]*model.Thinking),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func newReasoningSessionID() string {
	return "reasoning_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AttachMessages makes the accumulator mutate the caller's message list in place.
// A nil pointer detaches it again.
func (a *Accumulator) AttachMessages(messages *[]model.Message) {
	if messages == nil {
		messages = &[]model.Message{}
	}
	a.messages = messages
}

// Reset clears all turn state. The attached message list is kept.
func (a *Accumulator) Reset() {
	a.items = nil
	a.index = make(map[itemKey]*model.Thinking)
	a.touched = nil
	a.reasoningSession = ""
	a.toolSession = ""
	a.images = nil
	a.showThinking = false
	a.activity = ""
	a.auth = AuthRequest{}
	a.lastError = ""
	a.stats = nil
}

// Process applies one chunk. It never fails; chunks it cannot use are logged.
func (a *Accumulator) Process(c chunk.Chunk) {
	switch c.Type {
	case chunk.TypeText:
		msgs := *a.messages
		if n := len(msgs); n > 0 && msgs[n-1].Type == model.MessageAssistant {
			msgs[n-1].Text += c.Text
		}

	case chunk.TypeThinking, chunk.TypeThinkingResult:
		a.reasoning(c)

	case chunk.TypeToolCall, chunk.TypeToolResult, chunk.TypeAction:
		a.tool(c)

	case chunk.TypeImage, chunk.TypeImagePartial:
		a.images = append(a.images, c)

	case chunk.TypeCompletion:
		a.showThinking = false
		if c.Statistics != nil {
			a.stats = c.Statistics.Clone()
		}

	case chunk.TypeAuthRequired:
		a.auth = AuthRequest{
			Pending:        true,
			ServerID:       c.Meta(chunk.KeyServerID),
			ServerName:     c.Meta(chunk.KeyServerName),
			AuthURL:        c.Meta(chunk.KeyAuthURL),
			PendingMessage: a.lastHumanText(),
		}

	case chunk.TypeError:
		msg := model.NewMessage(model.MessageError, c.Text)
		msg.Done = true
		*a.messages = append(*a.messages, msg)
		a.lastError = c.Text

	case chunk.TypeAnnotation, chunk.TypeLifecycle:
		a.logger.Debug("Chunk carries no display state", zap.String("type", string(c.Type)))

	default:
		a.logger.Warn("Unhandled chunk type", zap.String("type", string(c.Type)))
	}
}

func (a *Accumulator) reasoning(c chunk.Chunk) {
	if c.Type == chunk.TypeThinking {
		a.showThinking = true
		a.activity = ActivityThinking
	}

	session := a.reasoningSessionFor(c)
	item := a.item(model.ThinkingReasoning, session, func(t *model.Thinking) {
		t.Status = model.ThinkingInProgress
		if c.Type == chunk.TypeThinkingResult {
			t.Status = model.ThinkingCompleted
		}
	})

	if c.Type == chunk.TypeThinking {
		_, delta := c.Metadata[chunk.KeyDelta]
		switch {
		case delta:
			item.Text += c.Text
		case item.Text != "" && item.Text != c.Text:
			item.Text += "\n" + c.Text
		default:
			item.Text = c.Text
		}
		return
	}

	item.Status = model.ThinkingCompleted
	if c.Text != "" {
		item.Text += " " + c.Text
	}
}

// reasoningSessionFor resolves the session of a THINKING or THINKING_RESULT chunk.
// Only reasoning_session is an explicit key; otherwise a new session starts when there is none yet, or the
// last touched item is a tool call or a completed reasoning trace.
func (a *Accumulator) reasoningSessionFor(c chunk.Chunk) string {
	if id := c.Meta(chunk.KeyReasoningSession); id != "" {
		return id
	}
	last := a.touched
	if a.reasoningSession == "" ||
		(last != nil && last.Type == model.ThinkingToolCall) ||
		(last != nil && last.Type == model.ThinkingReasoning && last.Status == model.ThinkingCompleted) {
		a.reasoningSession = a.nextSessionID()
	}
	return a.reasoningSession
}

func (a *Accumulator) toolSessionFor(c chunk.Chunk) string {
	if id := c.Meta(chunk.KeyToolID); id != "" {
		a.toolSession = id
		return id
	}
	if c.Type != chunk.TypeToolCall && a.toolSession != "" {
		return a.toolSession
	}
	a.toolSession = "tool_" + strconv.Itoa(a.countTools())
	return a.toolSession
}

func (a *Accumulator) tool(c chunk.Chunk) {
	session := a.toolSessionFor(c)

	toolName := c.MetaOr(chunk.KeyToolName, UnknownTool)
	displayName := toolName
	if label := c.Meta(chunk.KeyServerLabel); label != "" && toolName != UnknownTool {
		displayName = label + "." + toolName
	}
	known := displayName != "" && displayName != UnknownTool

	a.logger.Debug("Tool chunk received",
		zap.String("type", string(c.Type)),
		zap.String("tool_id", session),
		zap.String("tool_name", displayName))

	if c.Type == chunk.TypeToolCall && known {
		a.activity = activityToolUsing + displayName + "..."
	}

	isError := chunk.Flag(c.Metadata, chunk.KeyError)
	item := a.item(model.ThinkingToolCall, session, func(t *model.Thinking) {
		t.Status = model.ThinkingInProgress
		if known {
			t.ToolName = displayName
		}
		if c.Type == chunk.TypeToolResult {
			t.Status = model.ThinkingCompleted
			if isError {
				t.Status = model.ThinkingError
			}
		}
	})

	switch c.Type {
	case chunk.TypeToolCall:
		item.Parameters = c.MetaOr(chunk.KeyParameters, c.Text)
		item.Text = c.Meta(chunk.KeyDescription)
		if known && (item.ToolName == "" || item.ToolName == UnknownTool) {
			item.ToolName = displayName
		}
		item.Status = model.ThinkingInProgress

	case chunk.TypeToolResult:
		item.Result = c.Text
		item.Error = ""
		item.Status = model.ThinkingCompleted
		if isError {
			item.Error = c.Text
			item.Status = model.ThinkingError
		}

	case chunk.TypeAction:
		item.Text += "\n---\nAction: " + c.Text
	}
}

// item finds the thinking item (kind, id) or appends a new one initialised by init.
// Either way it becomes the last touched item.
func (a *Accumulator) item(kind model.ThinkingType, id string, init func(*model.Thinking)) *model.Thinking {
	key := itemKey{kind: kind, id: id}
	t, ok := a.index[key]
	if !ok {
		t = &model.Thinking{Type: kind, ID: id}
		init(t)
		a.items = append(a.items, t)
		a.index[key] = t
	}
	a.touched = t
	return t
}

func (a *Accumulator) lastHumanText() string {
	msgs := *a.messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == model.MessageHuman {
			return msgs[i].Text
		}
	}
	return ""
}

func (a *Accumulator) countTools() int {
	n := 0
	for _, t := range a.items {
		if t.Type == model.ThinkingToolCall {
			n++
		}
	}
	return n
}

// Thinking returns a copy of the thinking items in first-touched order.
func (a *Accumulator) Thinking() []model.Thinking {
	out := make([]model.Thinking, len(a.items))
	for i, t := range a.items {
		out[i] = *t
	}
	return out
}

// Messages returns the attached message list.
func (a *Accumulator) Messages() []model.Message {
	return *a.messages
}

// Images returns the buffered image chunks in arrival order.
func (a *Accumulator) Images() []chunk.Chunk {
	return append([]chunk.Chunk(nil), a.images...)
}

// ShowThinking reports whether reasoning is streaming.
func (a *Accumulator) ShowThinking() bool { return a.showThinking }

// CurrentActivity returns the free-text activity label.
func (a *Accumulator) CurrentActivity() string { return a.activity }

// Auth returns the pending authentication prompt, if any.
func (a *Accumulator) Auth() AuthRequest { return a.auth }

// LastError returns the text of the last ERROR chunk.
func (a *Accumulator) LastError() string { return a.lastError }

// ReasoningSession returns the current inferred reasoning session id.
func (a *Accumulator) ReasoningSession() string { return a.reasoningSession }

// ToolSession returns the current tool session id.
func (a *Accumulator) ToolSession() string { return a.toolSession }

// Statistics returns the statistics of the last COMPLETION chunk, or nil.
func (a *Accumulator) Statistics() *chunk.Statistics { return a.stats }
