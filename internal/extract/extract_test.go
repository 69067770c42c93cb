package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// testContext returns an extractor context backed by a local checkpoint map.
func testContext() (*Context, *map[string]any) {
	checkpoint := map[string]any{}
	ec := &Context{
		PipelineID:    "p1",
		RunID:         "r1",
		StepKey:       "fetch",
		Logger:        logger.NewRunLogger(logger.NewNop(), "p1", "r1", logger.LevelPipeline),
		Checkpoint:    func() map[string]any { return checkpoint },
		SetCheckpoint: func(state map[string]any) { checkpoint = state },
		IsCancelled:   func() bool { return false },
	}
	return ec, &checkpoint
}

func collect(t *testing.T, e Extractor, ec *Context, cfg map[string]any) []model.Envelope {
	t.Helper()
	var out []model.Envelope
	require.NoError(t, e.Extract(context.Background(), ec, cfg, func(env model.Envelope) error {
		out = append(out, env)
		return nil
	}))
	return out
}

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFileExtractorJSONArray(t *testing.T) {
	t.Parallel()
	ec, checkpoint := testContext()

	path := writeTemp(t, "items.json", `[{"sku":"A"},{"sku":"B"},{"sku":"C"}]`)
	out := collect(t, newFileExtractor(), ec, map[string]any{"path": path})

	require.Len(t, out, 3)
	require.Equal(t, "A", out[0].Data["sku"])
	require.EqualValues(t, 0, out[0].Meta.Sequence)
	require.EqualValues(t, 2, out[2].Meta.Sequence)
	require.Equal(t, 3, (*checkpoint)["recordsSeen"])
}

func TestFileExtractorJSONL(t *testing.T) {
	t.Parallel()

	t.Run("streams lines and skips blanks", func(t *testing.T) {
		t.Parallel()
		ec, _ := testContext()
		path := writeTemp(t, "items.jsonl", "{\"sku\":\"A\"}\n\n{\"sku\":\"B\"}\n")
		out := collect(t, newFileExtractor(), ec, map[string]any{"path": path, "format": "jsonl"})
		require.Len(t, out, 2)
		require.Equal(t, "B", out[1].Data["sku"])
	})

	t.Run("bad line reports line number", func(t *testing.T) {
		t.Parallel()
		ec, _ := testContext()
		path := writeTemp(t, "broken.jsonl", "{\"sku\":\"A\"}\nnot json\n")
		err := newFileExtractor().Extract(context.Background(), ec,
			map[string]any{"path": path, "format": "jsonl"},
			func(model.Envelope) error { return nil })
		require.Error(t, err)
		var parseErr *sluiceerrors.ParseError
		require.ErrorAs(t, err, &parseErr)
		require.Equal(t, 2, parseErr.Line)
	})
}

func TestFileExtractorResume(t *testing.T) {
	t.Parallel()
	ec, checkpoint := testContext()
	*checkpoint = map[string]any{"recordsSeen": 2}

	path := writeTemp(t, "items.json", `[{"n":0},{"n":1},{"n":2},{"n":3}]`)
	out := collect(t, newFileExtractor(), ec, map[string]any{"path": path})

	require.Len(t, out, 2)
	require.Equal(t, float64(2), out[0].Data["n"])
	require.EqualValues(t, 2, out[0].Meta.Sequence)
}

func TestFileExtractorValidate(t *testing.T) {
	t.Parallel()
	f := newFileExtractor()

	require.Error(t, f.Validate(map[string]any{}))
	require.Error(t, f.Validate(map[string]any{"path": "x.csv", "format": "csv"}))
	require.NoError(t, f.Validate(map[string]any{"path": "x.jsonl", "format": "jsonl"}))
}

func TestInlineExtractor(t *testing.T) {
	t.Parallel()
	e := newInlineExtractor()

	t.Run("emits configured records in order", func(t *testing.T) {
		t.Parallel()
		ec, _ := testContext()
		out := collect(t, e, ec, map[string]any{
			"records": []any{
				map[string]any{"sku": "A"},
				map[string]any{"sku": "B"},
			},
		})
		require.Len(t, out, 2)
		require.EqualValues(t, 1, out[1].Meta.Sequence)
	})

	t.Run("extract all", func(t *testing.T) {
		t.Parallel()
		out, err := e.ExtractAll(context.Background(), nil, map[string]any{
			"records": []map[string]any{{"sku": "A"}},
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
	})

	t.Run("rejects non-object records", func(t *testing.T) {
		t.Parallel()
		err := e.Validate(map[string]any{"records": []any{"scalar"}})
		require.Error(t, err)
		var valErr *sluiceerrors.ValidationError
		require.ErrorAs(t, err, &valErr)
	})

	t.Run("requires records", func(t *testing.T) {
		t.Parallel()
		require.Error(t, e.Validate(map[string]any{}))
	})
}

func TestPaginationValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       Pagination
		wantErr string
	}{
		{name: "none needs nothing", p: Pagination{Mode: PaginationNone}},
		{name: "empty mode means none", p: Pagination{}},
		{name: "offset with cap", p: Pagination{Mode: PaginationOffset, MaxPages: 10}},
		{name: "offset without cap", p: Pagination{Mode: PaginationOffset}, wantErr: "maxPages"},
		{name: "cursor without param", p: Pagination{Mode: PaginationCursor, MaxPages: 5}, wantErr: "cursorParam"},
		{name: "cursor complete", p: Pagination{Mode: PaginationCursor, MaxPages: 5, CursorParam: "after"}},
		{name: "unknown mode", p: Pagination{Mode: "spiral", MaxPages: 5}, wantErr: "unknown pagination mode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.p.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSelectDataPath(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"data": map[string]any{
			"items": []any{map[string]any{"sku": "A"}},
		},
		"total": 1,
	}

	records, err := selectDataPath(doc, "data.items")
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = selectDataPath([]any{map[string]any{"sku": "A"}}, "")
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = selectDataPath(doc, "data.missing")
	require.Error(t, err)

	_, err = selectDataPath(doc, "total")
	require.Error(t, err)
}

func TestDoWithRetry(t *testing.T) {
	t.Parallel()
	policy := RetryPolicy{MaxAttempts: 3, InitialDelayMs: 1, BackoffMultiplier: 2}

	t.Run("retries retryable failures", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		err := doWithRetry(context.Background(), policy, func(int) error {
			attempts++
			if attempts < 3 {
				return Retryable(fmt.Errorf("upstream returned 503"))
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("stops on permanent failure", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		err := doWithRetry(context.Background(), policy, func(int) error {
			attempts++
			return fmt.Errorf("upstream returned 400")
		})
		require.Error(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()
		err := doWithRetry(context.Background(), policy, func(int) error {
			return Retryable(fmt.Errorf("timeout"))
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "giving up after 3 attempts")
	})
}

func TestRetryPolicyDefaults(t *testing.T) {
	t.Parallel()
	policy := DefaultRetryPolicy()
	require.True(t, policy.Retryable(503))
	require.True(t, policy.Retryable(429))
	require.False(t, policy.Retryable(404))
}

func TestHTTPExtractorOffsetPagination(t *testing.T) {
	t.Parallel()

	items := []map[string]any{
		{"sku": "A"}, {"sku": "B"}, {"sku": "C"}, {"sku": "D"}, {"sku": "E"},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		page := items[offset:end]
		json.NewEncoder(w).Encode(map[string]any{"items": page})
	}))
	t.Cleanup(server.Close)

	ec, checkpoint := testContext()
	out := collect(t, newHTTPExtractor(), ec, map[string]any{
		"url": server.URL,
		"pagination": map[string]any{
			"mode":     "offset",
			"pageSize": 2,
			"maxPages": 10,
			"dataPath": "items",
		},
	})

	require.Len(t, out, 5)
	require.Equal(t, "E", out[4].Data["sku"])
	require.EqualValues(t, 4, out[4].Meta.Sequence)
	require.Equal(t, 5, (*checkpoint)["recordsSeen"])
}

func TestHTTPExtractorCursorPagination(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("after") {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"items":      []any{map[string]any{"sku": "A"}},
				"nextCursor": "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(map[string]any{
				"items": []any{map[string]any{"sku": "B"}},
			})
		default:
			http.Error(w, "bad cursor", http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)

	ec, _ := testContext()
	out := collect(t, newHTTPExtractor(), ec, map[string]any{
		"url": server.URL,
		"pagination": map[string]any{
			"mode":        "cursor",
			"cursorParam": "after",
			"maxPages":    10,
			"dataPath":    "items",
		},
	})

	require.Len(t, out, 2)
	require.Equal(t, "B", out[1].Data["sku"])
}

func TestHTTPExtractorRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]any{map[string]any{"sku": "A"}})
	}))
	t.Cleanup(server.Close)

	ec, _ := testContext()
	out := collect(t, newHTTPExtractor(), ec, map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"maxAttempts": 2, "initialDelayMs": 1},
	})

	require.Len(t, out, 1)
	require.Equal(t, 2, hits)
}

func TestHTTPExtractorPermanentStatusFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	ec, _ := testContext()
	err := newHTTPExtractor().Extract(context.Background(), ec,
		map[string]any{"url": server.URL},
		func(model.Envelope) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestHTTPExtractorConnectionBaseURL(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]any{map[string]any{"sku": "A"}})
	}))
	t.Cleanup(server.Close)

	ec, _ := testContext()
	ec.ResolveConnection = func(code string) (map[string]any, error) {
		require.Equal(t, "erp", code)
		return map[string]any{
			"baseUrl": server.URL,
			"headers": map[string]any{"Authorization": "Bearer tok-123"},
		}, nil
	}

	out := collect(t, newHTTPExtractor(), ec, map[string]any{
		"url":        "/v1/items",
		"connection": "erp",
	})
	require.Len(t, out, 1)
	require.Equal(t, "/v1/items", gotPath)
	require.Equal(t, "Bearer tok-123", gotAuth)
}

func TestHTTPExtractorValidate(t *testing.T) {
	t.Parallel()
	h := newHTTPExtractor()

	require.Error(t, h.Validate(map[string]any{}))
	require.Error(t, h.Validate(map[string]any{
		"url":        "https://x",
		"pagination": map[string]any{"mode": "offset"},
	}))
	require.NoError(t, h.Validate(map[string]any{"url": "https://x"}))
}

func TestRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	require.NoError(t, RegisterBuiltins())
	require.Equal(t, []string{"file", "http", "inline"}, Codes())

	_, err := Get("ghost")
	require.Error(t, err)

	err = Register(newInlineExtractor())
	require.Error(t, err)
}
