package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/sluicehq/sluice/internal/model"
)

// Layouts tried in order when PARSE_DATE has no explicit format.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	time.RFC1123,
}

func dateTransforms() map[string]Func {
	return map[string]Func{
		"PARSE_DATE": pure(func(v any, args Args) (any, error) {
			if t, ok := v.(time.Time); ok {
				return t, nil
			}
			s := asString(v)
			if s == "" {
				return nil, fmt.Errorf("empty date value")
			}
			if layout := args.Str("format", ""); layout != "" {
				t, err := time.Parse(layout, s)
				if err != nil {
					return nil, err
				}
				return t.UTC(), nil
			}
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC(), nil
				}
			}
			return nil, fmt.Errorf("cannot parse %q as date", s)
		}),
		"FORMAT_DATE": pure(func(v any, args Args) (any, error) {
			t, ok := v.(time.Time)
			if !ok {
				parsed, err := parseAnyDate(asString(v))
				if err != nil {
					return nil, err
				}
				t = parsed
			}
			return t.Format(args.Str("format", time.RFC3339)), nil
		}),
		"NOW": func(_ context.Context, _ *Env, _ any, args Args, _ *model.Envelope) (any, error) {
			now := time.Now().UTC()
			if layout := args.Str("format", ""); layout != "" {
				return now.Format(layout), nil
			}
			return now, nil
		},
	}
}

func parseAnyDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as date", s)
}
