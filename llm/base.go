package llm

import (
	"errors"
	"iter"
	"maps"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

// ErrStreamConsumed is yielded when a chunk sequence is ranged over a second time.
var ErrStreamConsumed = errors.New("chunk stream already consumed")

// Base holds what every processor shares: its name, model map, chunk factory and logger.
// Vendor processors embed it.
type Base struct {
	name     string
	models   map[string]model.AIModel
	chunks   *chunk.Factory
	logger   *zap.Logger
	disabled bool
}

// newBase indexes models by id. Disabled catalog entries are left out.
func newBase(name string, models []model.AIModel, logger *zap.Logger) Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]model.AIModel, len(models))
	for _, m := range models {
		if m.Disabled {
			continue
		}
		m = m.WithDefaults()
		byID[m.ID] = m
	}
	return Base{
		name:   name,
		models: byID,
		chunks: chunk.NewFactory(name),
		logger: logger.With(zap.String("processor", name)),
	}
}

// disable marks the processor unusable; it then serves no models.
func (b *Base) disable(reason string) {
	b.disabled = true
	b.logger.Warn(reason)
}

// Name returns the processor name.
func (b *Base) Name() string {
	return b.name
}

// SupportedModels returns a copy of the model map, empty when the processor is not configured.
func (b *Base) SupportedModels() map[string]model.AIModel {
	if b.disabled {
		return map[string]model.AIModel{}
	}
	return maps.Clone(b.models)
}

// Chunks returns the processor's chunk factory.
func (b *Base) Chunks() *chunk.Factory {
	return b.chunks
}

// Validate resolves modelID or fails with an *UnsupportedModelError.
func (b *Base) Validate(modelID string) (model.AIModel, error) {
	if b.disabled {
		return model.AIModel{}, ErrProcessorNotConfigured
	}
	m, ok := b.models[modelID]
	if !ok {
		return model.AIModel{}, &UnsupportedModelError{Processor: b.name, ModelID: modelID}
	}
	return m, nil
}

// NewStatistics creates request-scoped statistics for one call.
func (b *Base) NewStatistics(modelID string) *chunk.Statistics {
	return chunk.NewStatistics(modelID, b.name)
}

// stream wraps a producer into a single-use chunk sequence whose emissions poll token.
func (b *Base) stream(token *CancellationToken, produce func(e *emitter)) iter.Seq2[chunk.Chunk, error] {
	var used atomic.Bool
	return func(yield func(chunk.Chunk, error) bool) {
		if used.Swap(true) {
			yield(chunk.Chunk{}, ErrStreamConsumed)
			return
		}
		e := &emitter{yield: yield, token: token}
		produce(e)
		if token.Cancelled() {
			b.logger.Info("Processing cancelled by user")
		}
	}
}

// emitter delivers chunks to a consumer until the consumer stops or the token trips.
type emitter struct {
	yield   func(chunk.Chunk, error) bool
	token   *CancellationToken
	stopped bool
}

// emit delivers c and reports whether production should continue.
func (e *emitter) emit(c chunk.Chunk) bool {
	if e.stopped {
		return false
	}
	if e.token.Cancelled() {
		e.stopped = true
		return false
	}
	if !e.yield(c, nil) {
		e.stopped = true
		return false
	}
	return true
}

// fail ends the sequence with err. A tripped token ends it silently instead.
func (e *emitter) fail(err error) {
	if e.stopped || e.token.Cancelled() {
		e.stopped = true
		return
	}
	e.stopped = true
	e.yield(chunk.Chunk{}, err)
}

// done reports whether production should stop.
func (e *emitter) done() bool {
	if e.stopped {
		return true
	}
	if e.token.Cancelled() {
		e.stopped = true
	}
	return e.stopped
}
