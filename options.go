package chemvec

import (
	"log/slog"
	"time"

	"github.com/chemvec/chemvec/embedding"
	"github.com/chemvec/chemvec/index/hnsw"
)

// DefaultEFSearch is the default candidate list size for queries.
const DefaultEFSearch = 10

type options struct {
	lengths          []int
	embedTimeout     time.Duration
	m                int
	efConstruction   int
	efSearch         int
	heuristic        bool
	randomSeed       *int64
	buildConcurrency int
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Engine constructor behavior.
type Option func(*options)

// WithLengths configures the supported embedding lengths. Each length gets
// its own index. Defaults to embedding.DefaultLengths.
func WithLengths(lengths ...int) Option {
	return func(o *options) {
		o.lengths = lengths
	}
}

// WithEmbedTimeout bounds each embedding provider call.
func WithEmbedTimeout(d time.Duration) Option {
	return func(o *options) {
		o.embedTimeout = d
	}
}

// WithHNSW configures the graph parameters used by every per-length index.
// m is the number of bidirectional links per node, efConstruction the
// candidate list size during insertion, efSearch the candidate list size
// during queries (raised to k when smaller).
func WithHNSW(m, efConstruction, efSearch int) Option {
	return func(o *options) {
		if m > 0 {
			o.m = m
		}
		if efConstruction > 0 {
			o.efConstruction = efConstruction
		}
		if efSearch > 0 {
			o.efSearch = efSearch
		}
	}
}

// WithRandomSeed fixes graph level assignment for reproducible indexes.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.randomSeed = &seed
	}
}

// WithBuildConcurrency bounds how many per-length indexes are rebuilt in
// parallel by RebuildAllIndexes. Defaults to 4.
func WithBuildConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buildConcurrency = n
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		lengths:          embedding.DefaultLengths,
		embedTimeout:     embedding.DefaultOptions.Timeout,
		m:                hnsw.DefaultM,
		efConstruction:   hnsw.DefaultEFConstruction,
		efSearch:         DefaultEFSearch,
		heuristic:        true,
		buildConcurrency: 4,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
