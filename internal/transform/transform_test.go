package transform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	requireBuiltins(t)
	return &Evaluator{Env: &Env{Logger: logger.NewNop()}}
}

func requireBuiltins(t *testing.T) {
	t.Helper()
	if !Has("TRIM") {
		require.NoError(t, RegisterBuiltins())
	}
}

func TestChainApply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value any
		chain []ChainStep
		want  any
	}{
		{
			name:  "trim uppercase replace",
			value: "  Foo  ",
			chain: []ChainStep{
				{Type: "TRIM"},
				{Type: "UPPERCASE"},
				{Type: "REPLACE", Args: Args{"search": "O", "replacement": "0", "global": true}},
			},
			want: "F00",
		},
		{
			name:  "slugify",
			value: "Blue Suede Shoes!",
			chain: []ChainStep{{Type: "SLUGIFY"}},
			want:  "blue-suede-shoes",
		},
		{
			name:  "truncate with suffix",
			value: "abcdefgh",
			chain: []ChainStep{{Type: "TRUNCATE", Args: Args{"length": 5, "suffix": "..."}}},
			want:  "abcde...",
		},
		{
			name:  "to cents rounds",
			value: "19.99",
			chain: []ChainStep{{Type: "PARSE_NUMBER"}, {Type: "TO_CENTS"}},
			want:  int64(1999),
		},
		{
			name:  "to cents custom decimals",
			value: 12.345,
			chain: []ChainStep{{Type: "TO_CENTS", Args: Args{"decimals": 3}}},
			want:  int64(12345),
		},
		{
			name:  "from cents",
			value: int64(1999),
			chain: []ChainStep{{Type: "FROM_CENTS"}},
			want:  19.99,
		},
		{
			name:  "parse loose number",
			value: "1.299,95",
			chain: []ChainStep{{Type: "PARSE_NUMBER", Args: Args{"decimalSeparator": ","}}},
			want:  1299.95,
		},
		{
			name:  "math round trip",
			value: 10,
			chain: []ChainStep{
				{Type: "MATH", Args: Args{"operation": "mul", "operand": 3}},
				{Type: "MATH", Args: Args{"operation": "add", "operand": 12}},
			},
			want: float64(42),
		},
		{
			name:  "default fills empty",
			value: "",
			chain: []ChainStep{{Type: "DEFAULT", Args: Args{"value": "fallback"}}},
			want:  "fallback",
		},
		{
			name:  "map with default",
			value: "XX",
			chain: []ChainStep{{Type: "MAP", Args: Args{
				"values":       map[string]any{"US": "United States"},
				"defaultValue": "Unknown",
			}}},
			want: "Unknown",
		},
		{
			name:  "map case insensitive",
			value: "us",
			chain: []ChainStep{{Type: "MAP", Args: Args{
				"values":        map[string]any{"US": "United States"},
				"caseSensitive": false,
			}}},
			want: "United States",
		},
		{
			name:  "parse boolean",
			value: "yes",
			chain: []ChainStep{{Type: "PARSE_BOOLEAN"}},
			want:  true,
		},
		{
			name:  "strip html",
			value: "<p>Hello <b>world</b></p>",
			chain: []ChainStep{{Type: "STRIP_HTML"}},
			want:  "Hello world",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eval := newTestEvaluator(t)
			got, err := eval.Apply(context.Background(), tc.value, tc.chain, nil)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestChainFailurePassesValueThrough(t *testing.T) {
	t.Parallel()
	eval := newTestEvaluator(t)

	chain := []ChainStep{
		{Type: "MATH", Args: Args{"operation": "div", "operand": 0}},
		{Type: "UPPERCASE"},
	}
	got, err := eval.Apply(context.Background(), "abc", chain, nil)
	require.NoError(t, err)
	require.Equal(t, "ABC", got)
}

func TestChainStrictAborts(t *testing.T) {
	t.Parallel()
	requireBuiltins(t)
	eval := &Evaluator{Env: &Env{Logger: logger.NewNop()}, Strict: true}

	chain := []ChainStep{{Type: "MATH", Args: Args{"operation": "div", "operand": 0}}}
	_, err := eval.Apply(context.Background(), 5, chain, nil)
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	eval := newTestEvaluator(t)

	got, err := eval.Apply(context.Background(), "2024-03-01",
		[]ChainStep{{Type: "PARSE_DATE"}}, nil)
	require.NoError(t, err)

	parsed, ok := got.(time.Time)
	require.True(t, ok)
	require.Equal(t, 2024, parsed.Year())
	require.Equal(t, time.March, parsed.Month())
	require.Equal(t, time.UTC, parsed.Location())
}

func TestLookupTransform(t *testing.T) {
	t.Parallel()
	requireBuiltins(t)

	entities := entity.NewMemoryService()
	entities.Seed("tax-category", "2", map[string]any{"code": "standard", "name": "Standard"})
	entities.Seed("tax-category", "9", map[string]any{"code": "standard", "name": "Duplicate"})
	eval := &Evaluator{Env: &Env{Entities: entities, Logger: logger.NewNop()}}

	chain := []ChainStep{{Type: "LOOKUP", Args: Args{
		"lookupType": "ENTITY",
		"entityType": "tax-category",
	}}}

	t.Run("resolves code to id", func(t *testing.T) {
		got, err := eval.Apply(context.Background(), "standard", chain, nil)
		require.NoError(t, err)
		// Lowest id wins when several entities share the code.
		require.Equal(t, "2", got)
	})

	t.Run("miss yields nil", func(t *testing.T) {
		got, err := eval.Apply(context.Background(), "reduced", chain, nil)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("toField reads an attribute", func(t *testing.T) {
		named := []ChainStep{{Type: "LOOKUP", Args: Args{
			"entityType": "tax-category",
			"toField":    "name",
		}}}
		got, err := eval.Apply(context.Background(), "standard", named, nil)
		require.NoError(t, err)
		require.Equal(t, "Standard", got)
	})
}

func TestMapRecord(t *testing.T) {
	t.Parallel()
	eval := newTestEvaluator(t)

	record := model.NewEnvelope(map[string]any{
		"name":  "  Blue Shoes  ",
		"price": "19.99",
	}, 7)

	mappings := []FieldMapping{
		{From: "name", To: "name", Chain: []ChainStep{{Type: "TRIM"}}},
		{From: "name", To: "slug", Chain: []ChainStep{{Type: "SLUGIFY"}}},
		{From: "price", To: "priceCents", Chain: []ChainStep{{Type: "PARSE_NUMBER"}, {Type: "TO_CENTS"}}},
	}

	out, err := eval.MapRecord(context.Background(), record, mappings)
	require.NoError(t, err)
	require.Equal(t, "Blue Shoes", out.Data["name"])
	require.Equal(t, "blue-shoes", out.Data["slug"])
	require.Equal(t, int64(1999), out.Data["priceCents"])
	require.Equal(t, int64(7), out.Meta.Sequence)

	// The source record stays untouched.
	require.Equal(t, "  Blue Shoes  ", record.Data["name"])
}

func TestIfElseAndCoalesce(t *testing.T) {
	t.Parallel()
	eval := newTestEvaluator(t)

	record := model.NewEnvelope(map[string]any{"stock": 0, "backupName": "fallback"}, 0)

	got, err := eval.Apply(context.Background(), 0,
		[]ChainStep{{Type: "IF_ELSE", Args: Args{
			"condition": "value > 0",
			"then":      "in-stock",
			"else":      "out-of-stock",
		}}}, &record)
	require.NoError(t, err)
	require.Equal(t, "out-of-stock", got)

	got, err = eval.Apply(context.Background(), nil,
		[]ChainStep{{Type: "COALESCE", Args: Args{
			"fields":       []any{"missing", "backupName"},
			"defaultValue": "none",
		}}}, &record)
	require.NoError(t, err)
	require.Equal(t, "fallback", got)
}

func TestEvalPredicate(t *testing.T) {
	t.Parallel()

	record := model.NewEnvelope(map[string]any{
		"type":  "physical",
		"stock": 5,
		"tags":  "summer,sale",
	}, 0)

	cases := []struct {
		expr string
		want bool
	}{
		{`type == "physical"`, true},
		{`type != "digital"`, true},
		{`stock > 3`, true},
		{`stock <= 4`, false},
		{`tags contains "sale"`, true},
		{`exists stock`, true},
		{`exists missing`, false},
		{`!exists missing`, true},
		{`value == 10`, false},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			t.Parallel()
			got, err := EvalPredicate(tc.expr, 7, &record)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestArrayTransforms(t *testing.T) {
	t.Parallel()
	eval := newTestEvaluator(t)

	value := []any{" a ", " b "}
	got, err := eval.Apply(context.Background(), value, []ChainStep{
		{Type: "MAP_ARRAY", Args: Args{"chain": []any{
			map[string]any{"type": "TRIM"},
			map[string]any{"type": "UPPERCASE"},
		}}},
		{Type: "JOIN", Args: Args{"separator": "-"}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "A-B", got)

	filtered, err := eval.Apply(context.Background(),
		[]any{map[string]any{"qty": 3}, map[string]any{"qty": 0}},
		[]ChainStep{{Type: "FILTER", Args: Args{"condition": "qty > 0"}}}, nil)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}
