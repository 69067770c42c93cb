package extract

import (
	"fmt"
	"strings"
)

// PaginationMode selects how an HTTP source pages its results.
type PaginationMode string

const (
	PaginationNone       PaginationMode = "none"
	PaginationOffset     PaginationMode = "offset"
	PaginationCursor     PaginationMode = "cursor"
	PaginationPage       PaginationMode = "page"
	PaginationLinkHeader PaginationMode = "link-header"
)

// Pagination declares a source's paging behaviour. MaxPages is a
// mandatory safety cap: a missing or non-positive value fails validation.
type Pagination struct {
	Mode PaginationMode `json:"mode"`

	// Parameter names, per mode.
	OffsetParam string `json:"offsetParam,omitempty"`
	LimitParam  string `json:"limitParam,omitempty"`
	PageParam   string `json:"pageParam,omitempty"`
	SizeParam   string `json:"sizeParam,omitempty"`
	CursorParam string `json:"cursorParam,omitempty"`

	// CursorPath selects the next-cursor value within a response.
	CursorPath string `json:"cursorPath,omitempty"`

	// DataPath selects the record array within a response document.
	DataPath string `json:"dataPath,omitempty"`

	PageSize int `json:"pageSize,omitempty"`
	MaxPages int `json:"maxPages"`
}

// Validate enforces mode-specific parameter presence and the page cap.
func (p Pagination) Validate() error {
	switch p.Mode {
	case "", PaginationNone:
		return nil
	case PaginationOffset, PaginationCursor, PaginationPage, PaginationLinkHeader:
	default:
		return fmt.Errorf("unknown pagination mode %q", p.Mode)
	}
	if p.MaxPages <= 0 {
		return fmt.Errorf("pagination.maxPages is required and must be positive")
	}
	if p.Mode == PaginationCursor && p.CursorParam == "" {
		return fmt.Errorf("pagination.cursorParam is required for cursor mode")
	}
	return nil
}

// paginationFromConfig decodes the pagination block of a step config.
func paginationFromConfig(cfg map[string]any) Pagination {
	raw, ok := cfg["pagination"].(map[string]any)
	if !ok {
		return Pagination{Mode: PaginationNone}
	}
	p := Pagination{
		Mode:        PaginationMode(strAt(raw, "mode", string(PaginationNone))),
		OffsetParam: strAt(raw, "offsetParam", "offset"),
		LimitParam:  strAt(raw, "limitParam", "limit"),
		PageParam:   strAt(raw, "pageParam", "page"),
		SizeParam:   strAt(raw, "sizeParam", "pageSize"),
		CursorParam: strAt(raw, "cursorParam", ""),
		CursorPath:  strAt(raw, "cursorPath", "nextCursor"),
		DataPath:    strAt(raw, "dataPath", ""),
		PageSize:    intAt(raw, "pageSize", 100),
		MaxPages:    intAt(raw, "maxPages", 0),
	}
	return p
}

// selectDataPath walks a dotted path into a decoded JSON document and
// returns the array found there. An empty path expects the document
// itself to be an array.
func selectDataPath(doc any, path string) ([]any, error) {
	current := doc
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("dataPath %q: %q is not an object", path, part)
			}
			current, ok = obj[part]
			if !ok {
				return nil, fmt.Errorf("dataPath %q: key %q missing", path, part)
			}
		}
	}
	arr, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("dataPath %q does not select an array", path)
	}
	return arr, nil
}

func strAt(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intAt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
