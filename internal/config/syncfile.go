package config

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// SecretProvider selects where a secret's value comes from.
type SecretProvider string

const (
	SecretInline SecretProvider = "inline"
	SecretEnv    SecretProvider = "env"
)

// Secret is a code-first secret declaration. With provider=env the Value
// field names the environment variable to read at resolution time.
type Secret struct {
	Code     string         `yaml:"code" json:"code" validate:"required"`
	Provider SecretProvider `yaml:"provider" json:"provider" validate:"required,oneof=inline env"`
	Value    string         `yaml:"value" json:"value" validate:"required"`
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Connection is a named external system configuration. Settings may
// embed ${NAME} placeholders resolved from the environment.
type Connection struct {
	Code     string         `yaml:"code" json:"code" validate:"required"`
	Type     string         `yaml:"type" json:"type" validate:"required"`
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// SyncFile is the optional code-first configuration document merged into
// the store at startup.
type SyncFile struct {
	Pipelines   []Pipeline   `yaml:"pipelines,omitempty" json:"pipelines,omitempty"`
	Secrets     []Secret     `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	Connections []Connection `yaml:"connections,omitempty" json:"connections,omitempty"`
}

// LoadSyncFile parses a `.yaml|.yml|.json` sync document.
func LoadSyncFile(path string) (*SyncFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sluiceerrors.NewParseError(path, 0, err)
	}

	var f SyncFile
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, sluiceerrors.NewParseError(path, 0, err)
		}
		for i := range f.Pipelines {
			for j := range f.Pipelines[i].Definition.Steps {
				if err := f.Pipelines[i].Definition.Steps[j].DecodeTyped(); err != nil {
					return nil, err
				}
			}
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, sluiceerrors.NewParseError(path, extractLine(err), err)
		}
	}

	v := validatorInstance()
	for i := range f.Secrets {
		if err := v.Struct(&f.Secrets[i]); err != nil {
			return nil, convertValidationError(err)
		}
	}
	for i := range f.Connections {
		if err := v.Struct(&f.Connections[i]); err != nil {
			return nil, convertValidationError(err)
		}
	}
	for i := range f.Pipelines {
		if err := ValidatePipeline(&f.Pipelines[i]); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv substitutes ${NAME} placeholders from the environment,
// recursively over nested maps and arrays. Unset variables expand to the
// empty string.
func ExpandEnv(value any) any {
	switch v := value.(type) {
	case string:
		return envPlaceholder.ReplaceAllStringFunc(v, func(match string) string {
			name := match[2 : len(match)-1]
			return os.Getenv(name)
		})
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = ExpandEnv(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ExpandEnv(item)
		}
		return out
	default:
		return value
	}
}
