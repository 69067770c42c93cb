package loaders

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

func assetSpec() *loader.Spec {
	return &loader.Spec{
		EntityType:          TypeAsset,
		Name:                "Assets",
		Category:            loader.CategoryMedia,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpsert},
		LookupFields:        []string{"sourceUrl", "id"},
		RequiredFields:      []string{"sourceUrl"},
		FieldSchema: map[string]loader.FieldSpec{
			"sourceUrl": {Type: "string", Required: true, Description: "Absolute http(s) URL"},
			"name":      {Type: "string", Description: "Defaults to the URL filename"},
			"tags":      {Type: "array"},
		},

		Validate: func(_ context.Context, _ *loader.Context, record model.Envelope, _ model.Operation) model.ValidationResult {
			if result := requireFields(record, "sourceUrl"); !result.Valid {
				return result
			}
			raw := asStr(record.Data["sourceUrl"])
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
				return model.Invalid("sourceUrl", "Invalid URL format", sluiceerrors.CodeInvalidFormat)
			}
			return model.ValidOK()
		},

		// Best-effort dedup: assets keep no unique code, so we match on
		// the stored source containing the URL's filename. Multiple hits
		// resolve by id order; a false positive only skips a re-download.
		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			filename := urlFilename(asStr(record.Data["sourceUrl"]))
			if filename == "" {
				return nil, nil
			}
			matches, err := lc.Entities.FindContaining(ctx, TypeAsset, entity.ContainsFilter{Field: "source", Substring: filename})
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, nil
			}
			return &matches[0], nil
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			source := asStr(record.Data["sourceUrl"])
			filename := urlFilename(source)
			if filename == "" {
				// Handled failure: nothing downloadable behind the URL.
				return "", nil
			}
			name := asStr(record.Data["name"])
			if name == "" {
				name = filename
			}
			fields := map[string]any{
				"name":   name,
				"source": source,
			}
			if tags, ok := record.Data["tags"]; ok {
				fields["tags"] = tags
			}
			return lc.Entities.Create(ctx, TypeAsset, fields)
		},

		Update: func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
			fields := map[string]any{}
			if name := asStr(record.Data["name"]); name != "" {
				fields["name"] = name
			}
			if tags, ok := record.Data["tags"]; ok {
				fields["tags"] = tags
			}
			if len(fields) == 0 {
				return nil
			}
			return lc.Entities.Update(ctx, TypeAsset, id, fields)
		},
	}
}

func urlFilename(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || !strings.Contains(base, ".") {
		return ""
	}
	return base
}
