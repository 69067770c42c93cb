package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sluicehq/sluice/internal/config"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// UpsertSecret stores or replaces a secret declaration by code.
func (s *Store) UpsertSecret(ctx context.Context, secret config.Secret) error {
	metadata, err := json.Marshal(secret.Metadata)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secrets (code, provider, value, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			provider = excluded.provider,
			value = excluded.value,
			metadata = excluded.metadata`,
		secret.Code, string(secret.Provider), secret.Value, string(metadata))
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

// GetSecret fetches a secret by code, or nil when not found.
func (s *Store) GetSecret(ctx context.Context, code string) (*config.Secret, error) {
	var row struct {
		Code     string `db:"code"`
		Provider string `db:"provider"`
		Value    string `db:"value"`
		Metadata string `db:"metadata"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT code, provider, value, metadata FROM secrets WHERE code = ?`, code)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, sluiceerrors.NewJournalError("", err)
	}

	secret := config.Secret{
		Code:     row.Code,
		Provider: config.SecretProvider(row.Provider),
		Value:    row.Value,
	}
	if row.Metadata != "" && row.Metadata != "null" {
		if err := json.Unmarshal([]byte(row.Metadata), &secret.Metadata); err != nil {
			return nil, sluiceerrors.NewJournalError("", err)
		}
	}
	return &secret, nil
}

// UpsertConnection stores or replaces a connection by code.
func (s *Store) UpsertConnection(ctx context.Context, conn config.Connection) error {
	settings, err := json.Marshal(conn.Settings)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (code, type, settings)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			type = excluded.type,
			settings = excluded.settings`,
		conn.Code, conn.Type, string(settings))
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

// GetConnection fetches a connection by code, or nil when not found.
func (s *Store) GetConnection(ctx context.Context, code string) (*config.Connection, error) {
	var row struct {
		Code     string `db:"code"`
		Type     string `db:"type"`
		Settings string `db:"settings"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT code, type, settings FROM connections WHERE code = ?`, code)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, sluiceerrors.NewJournalError("", err)
	}

	conn := config.Connection{Code: row.Code, Type: row.Type}
	if row.Settings != "" && row.Settings != "null" {
		if err := json.Unmarshal([]byte(row.Settings), &conn.Settings); err != nil {
			return nil, sluiceerrors.NewJournalError("", err)
		}
	}
	return &conn, nil
}

// UpsertPipeline stores or replaces a pipeline definition by code. The
// definition round-trips through JSON so typed step blocks survive.
func (s *Store) UpsertPipeline(ctx context.Context, p config.Pipeline) error {
	definition, err := json.Marshal(p.Definition)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}

	var publishedAt any
	if p.PublishedAt != nil {
		publishedAt = p.PublishedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipelines (code, name, enabled, status, version, published_at, definition)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			status = excluded.status,
			version = excluded.version,
			published_at = excluded.published_at,
			definition = excluded.definition`,
		p.Code, p.Name, p.Enabled, string(p.Status), p.Version, publishedAt, string(definition))
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

// GetPipeline fetches a pipeline by code, or nil when not found.
func (s *Store) GetPipeline(ctx context.Context, code string) (*config.Pipeline, error) {
	var row struct {
		Code        string     `db:"code"`
		Name        string     `db:"name"`
		Enabled     bool       `db:"enabled"`
		Status      string     `db:"status"`
		Version     int        `db:"version"`
		PublishedAt *time.Time `db:"published_at"`
		Definition  string     `db:"definition"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT code, name, enabled, status, version, published_at, definition
		FROM pipelines WHERE code = ?`, code)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, sluiceerrors.NewJournalError("", err)
	}

	p := config.Pipeline{
		Code:        row.Code,
		Name:        row.Name,
		Enabled:     row.Enabled,
		Status:      config.PipelineStatus(row.Status),
		Version:     row.Version,
		PublishedAt: row.PublishedAt,
	}
	if err := json.Unmarshal([]byte(row.Definition), &p.Definition); err != nil {
		return nil, sluiceerrors.NewJournalError("", err)
	}
	for i := range p.Definition.Steps {
		if err := p.Definition.Steps[i].DecodeTyped(); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// ListPipelines returns all stored pipelines sorted by code.
func (s *Store) ListPipelines(ctx context.Context) ([]config.Pipeline, error) {
	var codes []string
	if err := s.db.SelectContext(ctx, &codes,
		`SELECT code FROM pipelines ORDER BY code`); err != nil {
		return nil, sluiceerrors.NewJournalError("", err)
	}

	out := make([]config.Pipeline, 0, len(codes))
	for _, code := range codes {
		p, err := s.GetPipeline(ctx, code)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}
