// Package retrievalflow provides a top-level convenience entry point for
// creating retrieval engines with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/retrievalflow"
//
//	eng, err := retrievalflow.New(
//	    retrievalflow.WithOpenAI("text-embedding-3-small"),
//	    retrievalflow.WithChunkStore(chunks),
//	)
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package retrievalflow

import (
	"github.com/BaSui01/retrievalflow/quick"
	"github.com/BaSui01/retrievalflow/retrieval"
)

// Option configures the engine created by [New].
type Option = quick.Option

// New creates a [retrieval.Engine] with minimal configuration.
// At minimum, an embedding provider and a chunk store must be specified.
func New(opts ...Option) (*retrieval.Engine, error) {
	return quick.New(opts...)
}

// Re-export option shortcuts so callers never need to import quick/.

// WithProvider sets a pre-built embedding provider.
var WithProvider = quick.WithProvider

// WithOpenAI creates an OpenAI-compatible embedding provider. API key from
// OPENAI_API_KEY env.
var WithOpenAI = quick.WithOpenAI

// WithAPIKey overrides the API key for the WithOpenAI shortcut.
var WithAPIKey = quick.WithAPIKey

// WithChunkStore sets the chunk store.
var WithChunkStore = quick.WithChunkStore

// WithEntityStore sets the entity store, enabling the graph signal.
var WithEntityStore = quick.WithEntityStore

// WithScorer sets the pairwise relevance scorer.
var WithScorer = quick.WithScorer

// WithTokenizer sets the token counter used by the assembler.
var WithTokenizer = quick.WithTokenizer

// WithConfig replaces the default engine configuration.
var WithConfig = quick.WithConfig

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithMetrics sets the metrics collector.
var WithMetrics = quick.WithMetrics
