// Model registry resolving model ids to processors.
//
// Information Hiding:
// - Ownership bookkeeping between processors and the models they serve
// - Default model selection and its fallback
// - Prefix resolution of partially typed model ids
// - Locking discipline around registration

package llm

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/chatkit/internal/dsa"
	"github.com/richinex/chatkit/model"
)

// DefaultModelSentinel is returned by DefaultModel when no model is registered.
const DefaultModelSentinel = "default"

var (
	// ErrModelNotFound is returned by ResolveModel when nothing matches.
	ErrModelNotFound = errors.New("model not found")
	// ErrAmbiguousModel is returned by ResolveModel when a prefix matches several models.
	ErrAmbiguousModel = errors.New("ambiguous model")
)

type modelEntry struct {
	model model.AIModel
	owner string
}

// ModelManager maps model ids to the processors serving them.
// One instance is shared by every request path in a process.
type ModelManager struct {
	mu           sync.RWMutex
	processors   map[string]Processor
	models       map[string]modelEntry
	ids          *dsa.Trie[string]
	order        []string
	defaultModel string
	logger       *zap.Logger
}

// NewModelManager creates an empty registry.
func NewModelManager(logger *zap.Logger) *ModelManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelManager{
		processors: make(map[string]Processor),
		models:     make(map[string]modelEntry),
		ids:        dsa.NewTrie[string](),
		logger:     logger,
	}
}

// RegisterProcessor adds p under name and takes over every model it serves.
// A previous registration under the same name is replaced; models it served
// and p does not remain registered. The first model seen becomes the default
// when none is set.
func (m *ModelManager) RegisterProcessor(name string, p Processor) {
	supported := p.SupportedModels()
	ids := make([]string, 0, len(supported))
	for id := range supported {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.processors[name] = p
	for _, id := range ids {
		if _, exists := m.models[id]; !exists {
			m.order = append(m.order, id)
		}
		m.models[id] = modelEntry{model: supported[id], owner: name}
		m.ids.Insert(id, name)
		if m.defaultModel == "" {
			m.defaultModel = id
		}
	}
	m.logger.Debug("Registered processor", zap.String("name", name), zap.Int("models", len(ids)))
}

// UnregisterProcessors removes the named processors and every model they own.
// If the default model is removed the default becomes unset.
func (m *ModelManager) UnregisterProcessors(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
		delete(m.processors, n)
	}

	if entry, ok := m.models[m.defaultModel]; ok && drop[entry.owner] {
		m.defaultModel = ""
	}

	m.order = slices.DeleteFunc(m.order, func(id string) bool {
		if drop[m.models[id].owner] {
			delete(m.models, id)
			m.ids.Delete(id)
			return true
		}
		return false
	})
}

// Model returns the metadata of a registered model.
func (m *ModelManager) Model(id string) (model.AIModel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.models[id]
	return entry.model, ok
}

// ResolveModel maps a model id or a unique id prefix to a registered id.
func (m *ModelManager) ResolveModel(query string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.models[query]; ok {
		return query, nil
	}
	if query == "" {
		return "", ErrModelNotFound
	}
	matches := m.ids.StartsWith(query, 5)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, query)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %s", ErrAmbiguousModel, query, strings.Join(matches, ", "))
	}
}

// ProcessorForModel returns the processor serving id, or nil.
func (m *ModelManager) ProcessorForModel(id string) Processor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.models[id]
	if !ok {
		return nil
	}
	return m.processors[entry.owner]
}

// Processor returns a processor by registration name.
func (m *ModelManager) Processor(name string) (Processor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.processors[name]
	return p, ok
}

// ProcessorNames returns registered processor names in sorted order.
func (m *ModelManager) ProcessorNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.processors))
	for name := range m.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllModels returns every registered model ordered by icon, then display text.
func (m *ModelManager) AllModels() []model.AIModel {
	m.mu.RLock()
	out := make([]model.AIModel, 0, len(m.models))
	for _, entry := range m.models {
		out = append(out, entry.model)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Icon != out[j].Icon {
			return out[i].Icon < out[j].Icon
		}
		ti, tj := strings.ToLower(out[i].Text), strings.ToLower(out[j].Text)
		if ti != tj {
			return ti < tj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DefaultModel returns the explicit default, else the first registered model.
// With nothing registered it logs a warning and returns DefaultModelSentinel.
func (m *ModelManager) DefaultModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.models) == 0 {
		m.logger.Warn("No models registered, using fallback default", zap.String("model", DefaultModelSentinel))
		return DefaultModelSentinel
	}
	if m.defaultModel != "" {
		return m.defaultModel
	}
	return m.order[0]
}

// SetDefaultModel sets the default. Unknown ids are logged and ignored.
func (m *ModelManager) SetDefaultModel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.models[id]; !ok {
		m.logger.Warn("Attempted to set unregistered model as default", zap.String("model", id))
		return
	}
	m.defaultModel = id
}

// ClearAll removes every processor and model and unsets the default.
func (m *ModelManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processors = make(map[string]Processor)
	m.models = make(map[string]modelEntry)
	m.ids.Clear()
	m.order = nil
	m.defaultModel = ""
}
