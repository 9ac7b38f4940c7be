// =============================================================================
// Package quick — One-Line Engine Construction
// =============================================================================
// Provides a convenience entry point for creating retrieval engines with
// minimal boilerplate. Delegates to retrieval.NewEngine internally.
//
// Usage:
//
//	import "github.com/BaSui01/retrievalflow/quick"
//
//	eng, err := quick.New(
//	    quick.WithOpenAI("text-embedding-3-small"),
//	    quick.WithChunkStore(chunks),
//	)
//
// =============================================================================
package quick

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/embedding"
	"github.com/BaSui01/retrievalflow/internal/metrics"
	"github.com/BaSui01/retrievalflow/retrieval"
	"github.com/BaSui01/retrievalflow/store"
	"github.com/BaSui01/retrievalflow/tokenizer"
)

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	config   retrieval.Config
	provider embedding.Provider
	chunks   store.ChunkStore
	entities store.EntityStore
	scorer   retrieval.ScoreProvider
	counter  tokenizer.Tokenizer
	logger   *zap.Logger
	metrics  *metrics.Collector

	// Provider shortcut fields — used when provider is nil.
	model  string
	apiKey string
}

// WithProvider sets a pre-built embedding provider.
func WithProvider(p embedding.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI creates an OpenAI-compatible embedding provider using the given
// model. API key is read from OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAPIKey overrides the API key for the WithOpenAI shortcut.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithChunkStore sets the chunk store. Required.
func WithChunkStore(s store.ChunkStore) Option {
	return func(o *options) { o.chunks = s }
}

// WithEntityStore sets the entity store, enabling the graph signal.
func WithEntityStore(s store.EntityStore) Option {
	return func(o *options) { o.entities = s }
}

// WithScorer sets the pairwise relevance scorer used for reranking.
// Defaults to retrieval.SimpleScoreProvider.
func WithScorer(s retrieval.ScoreProvider) Option {
	return func(o *options) { o.scorer = s }
}

// WithTokenizer sets the token counter used by the assembler.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *options) { o.counter = t }
}

// WithConfig replaces the default engine configuration.
func WithConfig(cfg retrieval.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// New creates a retrieval.Engine with minimal configuration.
func New(opts ...Option) (*retrieval.Engine, error) {
	o := &options{
		config: retrieval.DefaultConfig(),
		scorer: retrieval.SimpleScoreProvider{},
	}
	for _, opt := range opts {
		opt(o)
	}

	p := o.provider
	if p == nil {
		if o.model == "" {
			return nil, fmt.Errorf("embedding provider is required: use WithProvider or WithOpenAI")
		}
		if o.apiKey == "" {
			return nil, fmt.Errorf("API key is required: set OPENAI_API_KEY or use WithAPIKey")
		}
		cfg := embedding.HTTPConfig{
			BaseURL: "https://api.openai.com",
			APIKey:  o.apiKey,
			Model:   o.model,
		}
		p = embedding.NewHTTPProvider(cfg)
	}
	if o.chunks == nil {
		return nil, fmt.Errorf("chunk store is required: use WithChunkStore")
	}
	counter := o.counter
	if counter == nil {
		counter = tokenizer.NewFallback(tokenizer.NewTiktoken(tokenizer.EncodingCl100k))
	}

	return retrieval.NewEngine(o.config, retrieval.Dependencies{
		Provider: p,
		Chunks:   o.chunks,
		Entities: o.entities,
		Scorer:   o.scorer,
		Counter:  counter,
		Logger:   o.logger,
		Metrics:  o.metrics,
	})
}
