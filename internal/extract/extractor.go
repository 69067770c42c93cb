// Package extract defines the extractor adapter contract and the built-in
// http, file and inline extractors. Extractors are plugins: they declare a
// config schema and stream record envelopes into the pipeline.
package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// EmitFunc receives one extracted envelope. It blocks for downstream
// backpressure and returns an error when the run is cancelled; extractors
// must stop on the first non-nil return.
type EmitFunc func(model.Envelope) error

// Context is the narrow view of the run an extractor receives.
type Context struct {
	PipelineID string
	RunID      string
	StepKey    string
	Logger     *logger.RunLogger

	// Checkpoint reads the step's saved cursor; SetCheckpoint replaces it.
	Checkpoint    func() map[string]any
	SetCheckpoint func(map[string]any)

	// IsCancelled must be polled inside extraction loops.
	IsCancelled func() bool

	// ResolveSecret and ResolveConnection give access to synced config.
	ResolveSecret     func(code string) (string, error)
	ResolveConnection func(code string) (map[string]any, error)
}

// Extractor is the streaming adapter contract.
type Extractor interface {
	// Code is the adapterCode steps reference.
	Code() string
	// Category tags the extractor for discovery listings.
	Category() string
	// Schema returns the JSON schema document for the step config.
	Schema() map[string]any
	// Validate checks a step config before the run starts.
	Validate(cfg map[string]any) error
	// Extract streams envelopes through emit until exhausted or cancelled.
	Extract(ctx context.Context, ec *Context, cfg map[string]any, emit EmitFunc) error
}

// BatchExtractor is the alternative all-at-once shape.
type BatchExtractor interface {
	ExtractAll(ctx context.Context, ec *Context, cfg map[string]any) ([]model.Envelope, error)
}

// ConnectionTester is an optional capability: adapters that can reach
// their upstream expose a connectivity check.
type ConnectionTester interface {
	TestConnection(ctx context.Context, ec *Context, cfg map[string]any) error
}

// Previewer optionally returns the first records without side effects.
type Previewer interface {
	Preview(ctx context.Context, ec *Context, cfg map[string]any, limit int) ([]model.Envelope, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Extractor)
)

// Register adds an extractor under its code. Startup-only.
func Register(e Extractor) error {
	if e == nil || e.Code() == "" {
		return sluiceerrors.NewAdapterError("", fmt.Errorf("extractor is nil or unnamed"))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[e.Code()]; exists {
		return sluiceerrors.NewAdapterError(e.Code(), fmt.Errorf("extractor already registered"))
	}
	registry[e.Code()] = e
	return nil
}

// Get retrieves an extractor by adapter code.
func Get(code string) (Extractor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	e, ok := registry[code]
	if !ok {
		return nil, sluiceerrors.NewAdapterError(code, fmt.Errorf("no extractor registered"))
	}
	return e, nil
}

// Codes lists registered adapter codes in stable order.
func Codes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for code := range registry {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Reset clears registrations (for tests).
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Extractor)
}

// RegisterBuiltins installs the http, file and inline extractors.
func RegisterBuiltins() error {
	for _, e := range []Extractor{newHTTPExtractor(), newFileExtractor(), newInlineExtractor()} {
		if err := Register(e); err != nil {
			return err
		}
	}
	return nil
}
