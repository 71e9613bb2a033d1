// Package llm provides the processor abstraction over AI vendors.
//
// Processor interface - the capability every vendor adapter implements.
// Each processor implementation hides:
// - API client initialization and authentication
// - Conversion of conversation messages to the vendor request format
// - Translation of the vendor stream into chunks
// - Vendor-specific error handling

package llm

import (
	"context"
	"iter"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

// Processor turns a conversation into a lazy chunk stream.
type Processor interface {
	// Name returns the processor name stamped on every chunk.
	Name() string

	// SupportedModels returns the models this processor serves, keyed by model id.
	SupportedModels() map[string]model.AIModel

	// Process starts one response. An unknown model id fails with an
	// *UnsupportedModelError before any chunk is produced. The returned
	// sequence is single-use and ends when the vendor stream ends, the
	// request's cancellation token trips or ctx is done.
	Process(ctx context.Context, req Request) (iter.Seq2[chunk.Chunk, error], error)
}

// Request is the input of one Process call.
type Request struct {
	Messages   []model.Message
	ModelID    string
	Files      []string
	MCPServers []model.MCPServer
	// Payload carries vendor-specific request fields.
	Payload map[string]any
	Cancel  *CancellationToken
}
