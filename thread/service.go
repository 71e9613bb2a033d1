// Package thread runs conversation turns against the model registry.
//
// Information Hiding:
// - Model and processor resolution for a turn
// - Placeholder bookkeeping of the streaming assistant message
// - One-turn-per-thread locking and cancellation tokens
// - Persistence after each turn
package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/richinex/chatkit/accumulator"
	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/llm"
	"github.com/richinex/chatkit/model"
	"github.com/richinex/chatkit/storage"
)

// MaxTitleRunes bounds thread titles derived from the first prompt.
const MaxTitleRunes = 100

var (
	// ErrEmptyPrompt is returned when the prompt is blank.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrTurnInProgress is returned when the thread is already running a turn.
	ErrTurnInProgress = errors.New("turn already in progress")
	// ErrNoProcessor is returned when no processor serves the selected model.
	ErrNoProcessor = errors.New("no processor found")
	// ErrNothingToResend is returned by a resend turn on a thread without a human message.
	ErrNothingToResend = errors.New("no prompt to resend")
)

// Observer receives every chunk of a turn after the accumulator applied it.
type Observer func(c chunk.Chunk, acc *accumulator.Accumulator)

// TurnRequest describes one user turn.
type TurnRequest struct {
	// ThreadID selects the thread; empty starts a new one.
	ThreadID   string
	Prompt     string
	ModelID    string
	Files      []string
	MCPServers []model.MCPServer
	Payload    map[string]any
	// Resend reruns the last human prompt without appending it again,
	// e.g. after a tool server asked for authentication.
	Resend   bool
	Observer Observer
}

// TurnResult is the state of a thread after a turn.
type TurnResult struct {
	Thread      *model.Thread
	Accumulator *accumulator.Accumulator
	Cancelled   bool
}

// Service runs turns. It is safe for concurrent use across threads.
type Service struct {
	manager *llm.ModelManager
	store   storage.ThreadStorage
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	turns map[string]*llm.CancellationToken
}

// NewService creates a service. A nil store keeps threads in memory.
func NewService(manager *llm.ModelManager, store storage.ThreadStorage, logger *zap.Logger) *Service {
	if store == nil {
		store = storage.NewInMemoryStorage()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		manager: manager,
		store:   store,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		turns:   make(map[string]*llm.CancellationToken),
	}
}

// Cancel trips the token of the thread's running turn and reports whether one was running.
func (s *Service) Cancel(threadID string) bool {
	s.mu.Lock()
	token, ok := s.turns[threadID]
	s.mu.Unlock()
	if ok {
		token.Cancel()
	}
	return ok
}

// Running reports whether the thread has a turn in progress.
func (s *Service) Running(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.turns[threadID]
	return ok
}

func (s *Service) begin(threadID string) (*llm.CancellationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.turns[threadID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrTurnInProgress, threadID)
	}
	token := llm.NewCancellationToken()
	s.turns[threadID] = token
	return token, nil
}

func (s *Service) end(threadID string) {
	s.mu.Lock()
	delete(s.turns, threadID)
	s.mu.Unlock()
}

// Run executes one turn and persists the thread. Processor failures are
// recorded in the thread as ERROR messages and also returned.
func (s *Service) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && !req.Resend {
		return nil, ErrEmptyPrompt
	}

	th, err := s.load(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	token, err := s.begin(th.ThreadID)
	if err != nil {
		return nil, err
	}
	defer s.end(th.ThreadID)

	if req.Resend {
		if prompt, err = prepareResend(th); err != nil {
			return nil, err
		}
	} else {
		th.Messages = append(th.Messages, model.NewMessage(model.MessageHuman, prompt))
	}

	modelID := s.resolveModel(req.ModelID, th.AIModel)
	th.AIModel = modelID
	logger := s.logger.With(zap.String("thread_id", th.ThreadID), zap.String("model", modelID))

	acc := accumulator.New(accumulator.WithLogger(logger))
	result := &TurnResult{Thread: th, Accumulator: acc}

	processor := s.manager.ProcessorForModel(modelID)
	if processor == nil {
		err := fmt.Errorf("%w for model %s", ErrNoProcessor, modelID)
		s.fail(th, prompt, fmt.Sprintf("No processor found for model %s", modelID))
		return result, s.finish(ctx, th, err)
	}

	history := append([]model.Message(nil), th.Messages...)
	placeholder := model.NewMessage(model.MessageAssistant, "")
	th.Messages = append(th.Messages, placeholder)

	acc.Reset()
	acc.AttachMessages(&th.Messages)

	seq, err := processor.Process(ctx, llm.Request{
		Messages:   history,
		ModelID:    modelID,
		Files:      req.Files,
		MCPServers: req.MCPServers,
		Payload:    req.Payload,
		Cancel:     token,
	})
	if err != nil {
		s.dropPlaceholder(th, placeholder.ID)
		s.fail(th, prompt, err.Error())
		return result, s.finish(ctx, th, err)
	}

	isNew := th.State == model.ThreadNew
	var streamErr error
	for c, err := range seq {
		if err != nil {
			streamErr = err
			break
		}
		acc.Process(c)
		if c.Type == chunk.TypeText && isNew {
			isNew = false
			th.State = model.ThreadActive
			setTitle(th, prompt)
		}
		if req.Observer != nil {
			req.Observer(c, acc)
		}
	}

	switch {
	case streamErr != nil:
		logger.Warn("Turn failed", zap.Error(streamErr))
		s.dropPlaceholder(th, placeholder.ID)
		s.fail(th, prompt, streamErr.Error())
		return result, s.finish(ctx, th, streamErr)

	case token.Cancelled():
		result.Cancelled = true
		logger.Info("Turn cancelled")

	default:
		if msg := findMessage(th, placeholder.ID); msg != nil {
			msg.Done = true
		}
	}
	return result, s.finish(ctx, th, nil)
}

func (s *Service) load(ctx context.Context, threadID string) (*model.Thread, error) {
	if threadID == "" {
		return model.NewThread(""), nil
	}
	th, err := s.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return th, nil
}

// resolveModel picks the requested model, then the thread's, then the registry default.
func (s *Service) resolveModel(requested, current string) string {
	if requested != "" {
		return requested
	}
	if current != "" {
		return current
	}
	return s.manager.DefaultModel()
}

// fail records a failed turn on the thread.
func (s *Service) fail(th *model.Thread, prompt, text string) {
	msg := model.NewMessage(model.MessageError, text)
	msg.Done = true
	th.Messages = append(th.Messages, msg)
	if th.State == model.ThreadNew {
		setTitle(th, prompt)
	}
	th.State = model.ThreadError
}

func (s *Service) finish(ctx context.Context, th *model.Thread, turnErr error) error {
	th.UpdatedAt = s.now()
	if err := s.store.Save(ctx, th); err != nil {
		s.logger.Error("Failed to save thread", zap.String("thread_id", th.ThreadID), zap.Error(err))
		return errors.Join(turnErr, fmt.Errorf("save thread %s: %w", th.ThreadID, err))
	}
	return turnErr
}

// dropPlaceholder removes the assistant placeholder if nothing was streamed into it.
func (s *Service) dropPlaceholder(th *model.Thread, id string) {
	for i, m := range th.Messages {
		if m.ID == id && m.Text == "" {
			th.Messages = append(th.Messages[:i], th.Messages[i+1:]...)
			return
		}
	}
}

// prepareResend strips the trailing assistant attempt and returns the prompt to rerun.
func prepareResend(th *model.Thread) (string, error) {
	if n := len(th.Messages); n > 0 && th.Messages[n-1].Type == model.MessageAssistant {
		th.Messages = th.Messages[:n-1]
	}
	for i := len(th.Messages) - 1; i >= 0; i-- {
		if th.Messages[i].Type == model.MessageHuman {
			return th.Messages[i].Text, nil
		}
	}
	return "", ErrNothingToResend
}

func findMessage(th *model.Thread, id string) *model.Message {
	for i := range th.Messages {
		if th.Messages[i].ID == id {
			return &th.Messages[i]
		}
	}
	return nil
}

// setTitle names a thread after its first prompt unless it already has a title of its own.
func setTitle(th *model.Thread, prompt string) {
	if th.Title != "" && th.Title != model.DefaultThreadTitle {
		return
	}
	th.Title = truncateRunes(prompt, MaxTitleRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
