// Package sync applies code-first configuration to the store at
// startup: pipelines, secrets and connections declared in a sync file
// or supplied inline by the host process.
package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/sluicehq/sluice/internal/checkpoint"
	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/logger"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// Options configures one sync pass. FilePath is optional; inline
// declarations win over same-code declarations from the file.
type Options struct {
	FilePath    string
	Pipelines   []config.Pipeline
	Secrets     []config.Secret
	Connections []config.Connection
}

// Result reports what a sync pass applied.
type Result struct {
	Pipelines   int
	Secrets     int
	Connections int
}

// Service performs idempotent upserts of code-first configuration.
type Service struct {
	store *checkpoint.Store
	log   *logger.Logger
}

// New creates a sync service over the store.
func New(store *checkpoint.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{store: store, log: log}
}

// Apply merges file and inline declarations and upserts them. Running
// it twice with the same input is a no-op at the data level.
func (s *Service) Apply(ctx context.Context, opts Options) (*Result, error) {
	merged := struct {
		pipelines   map[string]config.Pipeline
		secrets     map[string]config.Secret
		connections map[string]config.Connection
	}{
		pipelines:   map[string]config.Pipeline{},
		secrets:     map[string]config.Secret{},
		connections: map[string]config.Connection{},
	}

	if opts.FilePath != "" {
		file, err := config.LoadSyncFile(opts.FilePath)
		if err != nil {
			return nil, err
		}
		for _, p := range file.Pipelines {
			merged.pipelines[p.Code] = p
		}
		for _, sec := range file.Secrets {
			merged.secrets[sec.Code] = sec
		}
		for _, conn := range file.Connections {
			merged.connections[conn.Code] = conn
		}
	}

	// Inline declarations override file ones with the same code.
	for _, p := range opts.Pipelines {
		if err := config.ValidatePipeline(&p); err != nil {
			return nil, err
		}
		merged.pipelines[p.Code] = p
	}
	for _, sec := range opts.Secrets {
		merged.secrets[sec.Code] = sec
	}
	for _, conn := range opts.Connections {
		merged.connections[conn.Code] = conn
	}

	var res Result
	for _, sec := range merged.secrets {
		if err := s.store.UpsertSecret(ctx, sec); err != nil {
			return nil, err
		}
		res.Secrets++
	}
	for _, conn := range merged.connections {
		settings, _ := config.ExpandEnv(conn.Settings).(map[string]any)
		conn.Settings = settings
		if err := s.store.UpsertConnection(ctx, conn); err != nil {
			return nil, err
		}
		res.Connections++
	}
	for _, p := range merged.pipelines {
		if p.Version == 0 {
			p.Version = 1
		}
		if p.Status == "" {
			p.Status = config.StatusPublished
		}
		if err := s.store.UpsertPipeline(ctx, p); err != nil {
			return nil, err
		}
		res.Pipelines++
	}

	s.log.WithFields(map[string]any{
		"pipelines":   res.Pipelines,
		"secrets":     res.Secrets,
		"connections": res.Connections,
	}).Info("configuration synced")
	return &res, nil
}

// Resolver hands secrets and connections to extractor adapters.
type Resolver struct {
	store *checkpoint.Store
}

// NewResolver creates a resolver over the store.
func NewResolver(store *checkpoint.Store) *Resolver {
	return &Resolver{store: store}
}

// Secret resolves a secret's value by code. Environment-provided
// secrets read the named variable at call time, never at sync time.
func (r *Resolver) Secret(ctx context.Context, code string) (string, error) {
	sec, err := r.store.GetSecret(ctx, code)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", sluiceerrors.NewValidationError("secret", fmt.Sprintf("unknown secret %q", code), nil)
	}
	switch sec.Provider {
	case config.SecretEnv:
		return os.Getenv(sec.Value), nil
	default:
		return sec.Value, nil
	}
}

// Connection resolves connection settings by code.
func (r *Resolver) Connection(ctx context.Context, code string) (map[string]any, error) {
	conn, err := r.store.GetConnection(ctx, code)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, sluiceerrors.NewValidationError("connection", fmt.Sprintf("unknown connection %q", code), nil)
	}
	return conn.Settings, nil
}
