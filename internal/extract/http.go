package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// httpExtractor pulls JSON records from a paginated HTTP endpoint.
type httpExtractor struct {
	client *http.Client
}

func newHTTPExtractor() *httpExtractor {
	return &httpExtractor{client: &http.Client{}}
}

func (h *httpExtractor) Code() string     { return "http" }
func (h *httpExtractor) Category() string { return "network" }

func (h *httpExtractor) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":        map[string]any{"type": "string", "format": "uri"},
			"method":     map[string]any{"type": "string", "enum": []any{"GET", "POST"}},
			"headers":    map[string]any{"type": "object"},
			"query":      map[string]any{"type": "object"},
			"timeoutMs":  map[string]any{"type": "integer", "minimum": 1.0},
			"connection": map[string]any{"type": "string"},
			"pagination": map[string]any{"type": "object"},
			"retry":      map[string]any{"type": "object"},
			"rateLimit":  map[string]any{"type": "object"},
		},
	}
}

func (h *httpExtractor) Validate(cfg map[string]any) error {
	if strAt(cfg, "url", "") == "" {
		return sluiceerrors.NewValidationError("url", "url is required", nil)
	}
	pagination := paginationFromConfig(cfg)
	if err := pagination.Validate(); err != nil {
		return sluiceerrors.NewValidationError("pagination", err.Error(), err)
	}
	return nil
}

func (h *httpExtractor) TestConnection(ctx context.Context, ec *Context, cfg map[string]any) error {
	req, err := h.buildRequest(ctx, ec, cfg, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("connection test failed: %s", resp.Status)
	}
	return nil
}

func (h *httpExtractor) Preview(ctx context.Context, ec *Context, cfg map[string]any, limit int) ([]model.Envelope, error) {
	var out []model.Envelope
	err := h.Extract(ctx, ec, cfg, func(env model.Envelope) error {
		out = append(out, env)
		if len(out) >= limit {
			return fmt.Errorf("preview limit reached")
		}
		return nil
	})
	if err != nil && len(out) >= limit {
		err = nil
	}
	return out, err
}

func (h *httpExtractor) Extract(ctx context.Context, ec *Context, cfg map[string]any, emit EmitFunc) error {
	pagination := paginationFromConfig(cfg)
	if err := pagination.Validate(); err != nil {
		return sluiceerrors.NewValidationError("pagination", err.Error(), err)
	}
	policy := retryFromConfig(cfg)
	lim := newLimiter(rateLimitFromConfig(cfg))

	timeout := time.Duration(intAt(cfg, "timeoutMs", 30_000)) * time.Millisecond

	cursor := newPageCursor(pagination, ec.Checkpoint())
	sequence := int64(cursor.recordsSeen)

	maxPages := pagination.MaxPages
	if pagination.Mode == PaginationNone || pagination.Mode == "" {
		maxPages = 1
	}

	for page := 0; page < maxPages; page++ {
		if ec.IsCancelled() {
			return context.Canceled
		}

		var doc any
		var nextLink string
		err := doWithRetry(ctx, policy, func(int) error {
			if err := lim.acquire(ctx); err != nil {
				return err
			}
			defer lim.release()

			fetchCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req, err := h.buildRequest(fetchCtx, ec, cfg, cursor)
			if err != nil {
				return err
			}
			resp, err := h.client.Do(req)
			if err != nil {
				return Retryable(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				err := fmt.Errorf("upstream returned %s", resp.Status)
				if policy.Retryable(resp.StatusCode) {
					return Retryable(err)
				}
				return err
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return Retryable(err)
			}
			if err := json.Unmarshal(body, &doc); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			nextLink = linkHeaderNext(resp.Header.Get("Link"))
			return nil
		})
		if err != nil {
			return err
		}

		records, err := selectDataPath(doc, pagination.DataPath)
		if err != nil {
			return err
		}

		for _, raw := range records {
			data, ok := raw.(map[string]any)
			if !ok {
				data = map[string]any{"value": raw}
			}
			if err := emit(model.NewEnvelope(data, sequence)); err != nil {
				return err
			}
			sequence++
		}
		ec.Logger.OnExtractData(ec.StepKey, len(records), sampleOf(records))

		done := cursor.advance(pagination, doc, len(records), nextLink)
		ec.SetCheckpoint(cursor.state(pagination, sequence))

		if done {
			break
		}
		if err := lim.pageDelay(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (h *httpExtractor) buildRequest(ctx context.Context, ec *Context, cfg map[string]any, cursor *pageCursor) (*http.Request, error) {
	rawURL := strAt(cfg, "url", "")

	// A connection code supplies a base URL and default headers.
	var connSettings map[string]any
	if code := strAt(cfg, "connection", ""); code != "" && ec.ResolveConnection != nil {
		settings, err := ec.ResolveConnection(code)
		if err != nil {
			return nil, err
		}
		connSettings = settings
		if base := strAt(settings, "baseUrl", ""); base != "" {
			rawURL = base + rawURL
		}
	}

	// Cursor-mode link-header pagination replaces the URL wholesale.
	if cursor != nil && cursor.nextURL != "" {
		rawURL = cursor.nextURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, sluiceerrors.NewValidationError("url", err.Error(), err)
	}

	query := parsed.Query()
	if params, ok := cfg["query"].(map[string]any); ok {
		for k, v := range params {
			query.Set(k, fmt.Sprint(v))
		}
	}
	if cursor != nil {
		cursor.applyQuery(&query)
	}
	parsed.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, strAt(cfg, "method", http.MethodGet), parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if headers, ok := connSettings["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}
	if headers, ok := cfg["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}
	return req, nil
}

// pageCursor tracks progress across pages, in whatever shape the
// pagination mode needs, and round-trips through the step checkpoint.
type pageCursor struct {
	pagination  Pagination
	offset      int
	page        int
	cursorValue string
	nextURL     string
	recordsSeen int
}

func newPageCursor(p Pagination, checkpoint map[string]any) *pageCursor {
	c := &pageCursor{pagination: p, page: 1}
	if checkpoint == nil {
		return c
	}
	c.offset = intAt(checkpoint, "offset", 0)
	c.page = intAt(checkpoint, "page", 1)
	c.cursorValue = strAt(checkpoint, "cursor", "")
	c.nextURL = strAt(checkpoint, "nextUrl", "")
	c.recordsSeen = intAt(checkpoint, "recordsSeen", 0)
	return c
}

func (c *pageCursor) applyQuery(query *url.Values) {
	p := c.pagination
	switch p.Mode {
	case PaginationOffset:
		query.Set(p.OffsetParam, strconv.Itoa(c.offset))
		query.Set(p.LimitParam, strconv.Itoa(p.PageSize))
	case PaginationPage:
		query.Set(p.PageParam, strconv.Itoa(c.page))
		query.Set(p.SizeParam, strconv.Itoa(p.PageSize))
	case PaginationCursor:
		if c.cursorValue != "" {
			query.Set(p.CursorParam, c.cursorValue)
		}
		if p.SizeParam != "" {
			query.Set(p.SizeParam, strconv.Itoa(p.PageSize))
		}
	}
}

// advance moves the cursor after a page; returns true when exhausted.
func (c *pageCursor) advance(p Pagination, doc any, count int, nextLink string) bool {
	c.recordsSeen += count
	switch p.Mode {
	case PaginationOffset:
		c.offset += count
		return count < p.PageSize || count == 0
	case PaginationPage:
		c.page++
		return count < p.PageSize || count == 0
	case PaginationCursor:
		next := cursorFromDoc(doc, p.CursorPath)
		c.cursorValue = next
		return next == ""
	case PaginationLinkHeader:
		c.nextURL = nextLink
		return nextLink == ""
	default:
		return true
	}
}

func (c *pageCursor) state(p Pagination, sequence int64) map[string]any {
	out := map[string]any{"recordsSeen": c.recordsSeen, "sequence": sequence}
	switch p.Mode {
	case PaginationOffset:
		out["offset"] = c.offset
	case PaginationPage:
		out["page"] = c.page
	case PaginationCursor:
		out["cursor"] = c.cursorValue
	case PaginationLinkHeader:
		out["nextUrl"] = c.nextURL
	}
	return out
}

func cursorFromDoc(doc any, path string) string {
	obj, ok := doc.(map[string]any)
	if !ok {
		return ""
	}
	v, ok := obj[path]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

func linkHeaderNext(header string) string {
	match := linkNextPattern.FindStringSubmatch(header)
	if match == nil {
		return ""
	}
	return match[1]
}

func sampleOf(records []any) any {
	if len(records) == 0 {
		return nil
	}
	return records[0]
}
