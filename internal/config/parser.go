package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParsePipeline loads a pipeline definition file from disk, validates it,
// and returns the resulting model. `.yaml`/`.yml` and `.json` are
// supported.
func ParsePipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sluiceerrors.NewParseError(path, 0, err)
	}

	var p Pipeline
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, sluiceerrors.NewParseError(path, 0, err)
		}
		for i := range p.Definition.Steps {
			if err := p.Definition.Steps[i].DecodeTyped(); err != nil {
				return nil, err
			}
		}
	} else {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, sluiceerrors.NewParseError(path, extractLine(err), err)
		}
	}

	if err := ValidatePipeline(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
