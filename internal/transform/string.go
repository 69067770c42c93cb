package transform

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/sluicehq/sluice/internal/model"
)

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9]+`)
	htmlTagStrip = regexp.MustCompile(`<[^>]*>`)
)

func stringTransforms() map[string]Func {
	return map[string]Func{
		"TRIM": pure(func(v any, _ Args) (any, error) {
			return strings.TrimSpace(asString(v)), nil
		}),
		"LOWERCASE": pure(func(v any, _ Args) (any, error) {
			return strings.ToLower(asString(v)), nil
		}),
		"UPPERCASE": pure(func(v any, _ Args) (any, error) {
			return strings.ToUpper(asString(v)), nil
		}),
		"SLUGIFY": pure(func(v any, _ Args) (any, error) {
			s := strings.ToLower(strings.TrimSpace(asString(v)))
			s = slugStrip.ReplaceAllString(s, "-")
			return strings.Trim(s, "-"), nil
		}),
		"TRUNCATE": pure(func(v any, args Args) (any, error) {
			s := asString(v)
			limit := args.Int("length", 255)
			if limit < 0 {
				limit = 0
			}
			runes := []rune(s)
			if len(runes) <= limit {
				return s, nil
			}
			suffix := args.Str("suffix", "")
			return string(runes[:limit]) + suffix, nil
		}),
		"PAD": pure(func(v any, args Args) (any, error) {
			s := asString(v)
			length := args.Int("length", 0)
			pad := args.Str("char", " ")
			if pad == "" {
				pad = " "
			}
			side := args.Str("side", "left")
			for len([]rune(s)) < length {
				if side == "right" {
					s += pad
				} else {
					s = pad + s
				}
			}
			return s, nil
		}),
		"REPLACE": pure(func(v any, args Args) (any, error) {
			s := asString(v)
			search := args.Str("search", "")
			replacement := args.Str("replacement", "")
			if search == "" {
				return s, nil
			}
			if args.Bool("global", true) {
				return strings.ReplaceAll(s, search, replacement), nil
			}
			return strings.Replace(s, search, replacement, 1), nil
		}),
		"REGEX_REPLACE": pure(func(v any, args Args) (any, error) {
			re, err := regexp.Compile(args.Str("pattern", ""))
			if err != nil {
				return nil, err
			}
			return re.ReplaceAllString(asString(v), args.Str("replacement", "")), nil
		}),
		"REGEX_EXTRACT": pure(func(v any, args Args) (any, error) {
			re, err := regexp.Compile(args.Str("pattern", ""))
			if err != nil {
				return nil, err
			}
			match := re.FindStringSubmatch(asString(v))
			if match == nil {
				return nil, nil
			}
			group := args.Int("group", 0)
			if group < 0 || group >= len(match) {
				return nil, fmt.Errorf("capture group %d out of range", group)
			}
			return match[group], nil
		}),
		"SPLIT": pure(func(v any, args Args) (any, error) {
			parts := strings.Split(asString(v), args.Str("separator", ","))
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		}),
		"JOIN": pure(func(v any, args Args) (any, error) {
			items, ok := v.([]any)
			if !ok {
				return asString(v), nil
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = asString(item)
			}
			return strings.Join(parts, args.Str("separator", ",")), nil
		}),
		"CONCAT": concatTransform,
		"TEMPLATE": func(_ context.Context, _ *Env, v any, args Args, record *model.Envelope) (any, error) {
			return renderTemplate(args.Str("template", ""), v, record), nil
		},
		"STRIP_HTML": pure(func(v any, _ Args) (any, error) {
			return html.UnescapeString(htmlTagStrip.ReplaceAllString(asString(v), "")), nil
		}),
		"ESCAPE_HTML": pure(func(v any, _ Args) (any, error) {
			return html.EscapeString(asString(v)), nil
		}),
		"TITLE_CASE": pure(func(v any, _ Args) (any, error) {
			return titleCase(asString(v)), nil
		}),
		"SENTENCE_CASE": pure(func(v any, _ Args) (any, error) {
			s := strings.ToLower(strings.TrimSpace(asString(v)))
			if s == "" {
				return s, nil
			}
			runes := []rune(s)
			runes[0] = unicode.ToUpper(runes[0])
			return string(runes), nil
		}),
	}
}

// pure lifts a context-free value function into a Func.
func pure(fn func(v any, args Args) (any, error)) Func {
	return func(_ context.Context, _ *Env, v any, args Args, _ *model.Envelope) (any, error) {
		return fn(v, args)
	}
}

func concatTransform(_ context.Context, _ *Env, v any, args Args, record *model.Envelope) (any, error) {
	var b strings.Builder
	b.WriteString(asString(v))
	separator := args.Str("separator", "")
	for _, item := range args.Slice("values") {
		if separator != "" && b.Len() > 0 {
			b.WriteString(separator)
		}
		s := asString(item)
		// Field references take the form {{field}}; literals pass through.
		if record != nil && strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
			name := strings.TrimSpace(s[2 : len(s)-2])
			if fv, ok := record.Field(name); ok {
				s = asString(fv)
			} else {
				s = ""
			}
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

var templateRef = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// renderTemplate substitutes {{field}} references from the record and
// {{value}} with the incoming value.
func renderTemplate(tpl string, value any, record *model.Envelope) string {
	return templateRef.ReplaceAllStringFunc(tpl, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if name == "value" {
			return asString(value)
		}
		if record != nil {
			if fv, ok := record.Field(name); ok {
				return asString(fv)
			}
		}
		return ""
	})
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
