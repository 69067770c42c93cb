package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// fileExtractor streams records from a local JSON array or JSON-lines
// file. Codec internals for CSV/XML live behind their own adapters; this
// extractor covers the formats the runtime parses natively.
type fileExtractor struct{}

func newFileExtractor() *fileExtractor { return &fileExtractor{} }

func (f *fileExtractor) Code() string     { return "file" }
func (f *fileExtractor) Category() string { return "file" }

func (f *fileExtractor) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"path"},
		"properties": map[string]any{
			"path":   map[string]any{"type": "string"},
			"format": map[string]any{"type": "string", "enum": []any{"json", "jsonl"}},
		},
	}
}

func (f *fileExtractor) Validate(cfg map[string]any) error {
	if strAt(cfg, "path", "") == "" {
		return sluiceerrors.NewValidationError("path", "path is required", nil)
	}
	switch format := strAt(cfg, "format", "json"); format {
	case "json", "jsonl":
	default:
		return sluiceerrors.NewValidationError("format", fmt.Sprintf("unknown format %q", format), nil)
	}
	return nil
}

func (f *fileExtractor) Extract(ctx context.Context, ec *Context, cfg map[string]any, emit EmitFunc) error {
	path := strAt(cfg, "path", "")

	// Resume skips records already emitted in a previous attempt.
	skip := 0
	if cp := ec.Checkpoint(); cp != nil {
		skip = intAt(cp, "recordsSeen", 0)
	}

	var sequence int64
	emitRecord := func(data map[string]any) error {
		if ec.IsCancelled() {
			return context.Canceled
		}
		if int(sequence) < skip {
			sequence++
			return nil
		}
		if err := emit(model.NewEnvelope(data, sequence)); err != nil {
			return err
		}
		sequence++
		ec.SetCheckpoint(map[string]any{"recordsSeen": int(sequence)})
		return nil
	}

	if strAt(cfg, "format", "json") == "jsonl" {
		return f.extractLines(ctx, path, emitRecord)
	}
	return f.extractArray(path, emitRecord)
}

func (f *fileExtractor) extractArray(path string, emitRecord func(map[string]any) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sluiceerrors.NewParseError(path, 0, err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return sluiceerrors.NewParseError(path, 0, err)
	}
	for _, record := range records {
		if err := emitRecord(record); err != nil {
			return err
		}
	}
	return nil
}

func (f *fileExtractor) extractLines(ctx context.Context, path string, emitRecord func(map[string]any) error) error {
	file, err := os.Open(path)
	if err != nil {
		return sluiceerrors.NewParseError(path, 0, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return sluiceerrors.NewParseError(path, line, err)
		}
		if err := emitRecord(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}
