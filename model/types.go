// Package model provides domain types shared across packages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a conversation message.
type MessageType string

const (
	MessageHuman     MessageType = "human"
	MessageSystem    MessageType = "system"
	MessageAssistant MessageType = "assistant"
	MessageToolUse   MessageType = "tool_use"
	MessageError     MessageType = "error"
	MessageInfo      MessageType = "info"
	MessageWarning   MessageType = "warning"
)

// Message is one entry of a conversation. Text grows by concatenation while
// an assistant response streams in.
type Message struct {
	ID           string      `json:"id" yaml:"id"`
	Text         string      `json:"text" yaml:"text"`
	OriginalText string      `json:"original_text,omitempty" yaml:"original_text,omitempty"`
	Editable     bool        `json:"editable" yaml:"editable"`
	Type         MessageType `json:"type" yaml:"type"`
	Done         bool        `json:"done" yaml:"done"`
	Attachments  []string    `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(t MessageType, text string) Message {
	return Message{ID: uuid.NewString(), Text: text, Type: t}
}

// ThinkingType classifies a thinking item.
type ThinkingType string

const (
	ThinkingReasoning ThinkingType = "reasoning"
	ThinkingToolCall  ThinkingType = "tool_call"
)

// ThinkingStatus is the progress of a thinking item.
type ThinkingStatus string

const (
	ThinkingInProgress ThinkingStatus = "in_progress"
	ThinkingCompleted  ThinkingStatus = "completed"
	ThinkingError      ThinkingStatus = "error"
)

// Thinking is one reasoning trace or one tool invocation. (Type, ID) is its identity.
type Thinking struct {
	Type       ThinkingType   `json:"type"`
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Status     ThinkingStatus `json:"status"`
	ToolName   string         `json:"tool_name,omitempty"`
	Parameters string         `json:"parameters,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Defaults applied to models that leave the fields empty.
const (
	DefaultIcon        = "codesandbox"
	DefaultTemperature = 0.05
)

// AIModel describes a model a processor can serve.
type AIModel struct {
	ID                  string   `json:"id" yaml:"id"`
	Text                string   `json:"text" yaml:"text"`
	Icon                string   `json:"icon" yaml:"icon"`
	Model               string   `json:"model" yaml:"model"`
	Stream              bool     `json:"stream" yaml:"stream"`
	Temperature         float64  `json:"temperature" yaml:"temperature"`
	SupportsTools       bool     `json:"supports_tools" yaml:"supports_tools"`
	SupportsAttachments bool     `json:"supports_attachments" yaml:"supports_attachments"`
	SupportsSearch      bool     `json:"supports_search" yaml:"supports_search"`
	Keywords            []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Disabled            bool     `json:"disabled" yaml:"disabled"`
	RequiresRole        string   `json:"requires_role,omitempty" yaml:"requires_role,omitempty"`

	// Perplexity search options.
	SearchContextSize  string   `json:"search_context_size,omitempty" yaml:"search_context_size,omitempty"`
	SearchDomainFilter []string `json:"search_domain_filter,omitempty" yaml:"search_domain_filter,omitempty"`
}

// WithDefaults returns a copy with empty icon, vendor model name and temperature filled in.
func (m AIModel) WithDefaults() AIModel {
	if m.Icon == "" {
		m.Icon = DefaultIcon
	}
	if m.Temperature == 0 {
		m.Temperature = DefaultTemperature
	}
	if m.Model == "" {
		m.Model = m.ID
	}
	if m.Text == "" {
		m.Text = m.ID
	}
	return m
}

// MCPServer is a remote tool server made available to a processor.
type MCPServer struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Prompt   string            `json:"prompt,omitempty"`
	AuthType string            `json:"auth_type,omitempty"`
}

// ThreadStatus is the lifecycle state of a thread.
type ThreadStatus string

const (
	ThreadNew     ThreadStatus = "new"
	ThreadActive  ThreadStatus = "active"
	ThreadIdle    ThreadStatus = "idle"
	ThreadError   ThreadStatus = "error"
	ThreadDeleted ThreadStatus = "deleted"
)

// DefaultThreadTitle is the title of a thread before its first prompt.
const DefaultThreadTitle = "New thread"

// Thread is a conversation with its messages.
type Thread struct {
	ThreadID  string       `json:"thread_id"`
	Title     string       `json:"title"`
	State     ThreadStatus `json:"state"`
	AIModel   string       `json:"ai_model"`
	Active    bool         `json:"active"`
	Messages  []Message    `json:"messages"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewThread creates an empty thread bound to modelID.
func NewThread(modelID string) *Thread {
	now := time.Now().UTC()
	return &Thread{
		ThreadID:  uuid.NewString(),
		Title:     DefaultThreadTitle,
		State:     ThreadNew,
		AIModel:   modelID,
		Active:    true,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the thread.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	out := *t
	out.Messages = make([]Message, len(t.Messages))
	for i, m := range t.Messages {
		if m.Attachments != nil {
			m.Attachments = append([]string(nil), m.Attachments...)
		}
		out.Messages[i] = m
	}
	return &out
}

// LastMessage returns a pointer to the last message, or nil when there is none.
func (t *Thread) LastMessage() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}
