package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/AnomalyAI/anomalyd/internal/span"
)

// Key constants from spec §6.
const (
	BatchSize = 1000 // roots per page
	ChunkSize = 50   // roots per span-fetch chunk
	MaxSpans  = 1000 // spans per fetch
	keepAlive = "5m"
)

// Client pages root spans and their full traces out of the tracing
// schema's backing search index via a point-in-time handle.
type Client struct {
	baseURL  string
	index    string
	username string
	password string
	http     *http.Client
}

// New builds a Client. httpClient may be nil to use http.DefaultClient.
func New(baseURL, index, username, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, index: index, username: username, password: password, http: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("opensearch: marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("opensearch: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opensearch: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("opensearch: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var errRes errorResponse
		if jsonErr := json.Unmarshal(data, &errRes); jsonErr == nil && errRes.Error.Reason != "" {
			return nil, errRes
		}
		return nil, fmt.Errorf("opensearch: %s %s: status %d", method, path, resp.StatusCode)
	}
	return data, nil
}

// OpenPIT opens a point-in-time handle with the spec's 5-minute
// keep-alive (spec §6).
func (c *Client) OpenPIT(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/%s/_search/point_in_time?keep_alive=%s&allow_partial_pit_creation=false", c.index, keepAlive),
		nil)
	if err != nil {
		return "", err
	}
	var res createPITResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("opensearch: decode PIT response: %w", err)
	}
	if res.PITID == "" {
		return "", fmt.Errorf("opensearch: response missing pit id")
	}
	return res.PITID, nil
}

// ClosePIT releases a point-in-time handle. Errors are the caller's to
// log — the tick has already finished its real work by the time this
// runs (spec §5: "Close the point-in-time unconditionally").
func (c *Client) ClosePIT(ctx context.Context, pitID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/_search/point_in_time", map[string]string{"pit_id": pitID})
	return err
}

func findRootSpansQuery() map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"must_not": map[string]any{
				"nested": map[string]any{
					"path": "references",
					"query": map[string]any{
						"term": map[string]any{"references.refType": map[string]any{"value": "CHILD_OF"}},
					},
				},
			},
		},
	}
}

// RootPage is one page of root spans plus the cursor to continue paging
// from and the (possibly refreshed) PIT id the store returned.
type RootPage struct {
	Roots  []wireSpan
	Cursor []int64
	PITID  string
}

// SearchRoots fetches one page of root spans (no CHILD_OF reference)
// with startTime in [from, to), ordered ascending, continuing from a
// prior page's cursor (spec §6, §9 BATCH_SIZE).
func (c *Client) SearchRoots(ctx context.Context, pitID string, from, to int64, cursor []int64) (RootPage, error) {
	req := searchRequest{
		Query: map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"range": map[string]any{"startTime": map[string]any{"gte": from, "lt": to}}},
					findRootSpansQuery(),
				},
			},
		},
		Size:        BatchSize,
		PIT:         &pitRef{ID: pitID, KeepAlive: keepAlive},
		Sort:        []sortField{{"startTime": sortOpts{Order: "asc"}}},
		SearchAfter: cursor,
	}
	data, err := c.do(ctx, http.MethodPost, "/_search", req)
	if err != nil {
		return RootPage{}, err
	}
	res, err := decodeSearchResponse(data)
	if err != nil {
		return RootPage{}, err
	}
	if res.PITID == nil {
		return RootPage{}, fmt.Errorf("opensearch: response missing pit id")
	}
	page := RootPage{PITID: *res.PITID}
	for _, h := range res.Hits.Hits {
		page.Roots = append(page.Roots, h.Source)
		page.Cursor = h.Sort
	}
	return page, nil
}

// SpansByTraceIDs fetches every span (up to MaxSpans) whose trace id is
// among traceIDs, ordered ascending by start time (spec §6, §9
// CHUNK_SIZE/MAX_SPANS).
func (c *Client) SpansByTraceIDs(ctx context.Context, pitID string, traceIDs []string) ([]wireSpan, string, error) {
	req := searchRequest{
		Query: map[string]any{"terms": map[string]any{"traceID": traceIDs}},
		Size:  MaxSpans,
		PIT:   &pitRef{ID: pitID, KeepAlive: keepAlive},
		Sort:  []sortField{{"startTime": sortOpts{Order: "asc"}}},
	}
	data, err := c.do(ctx, http.MethodPost, "/_search", req)
	if err != nil {
		return nil, "", err
	}
	res, err := decodeSearchResponse(data)
	if err != nil {
		return nil, "", err
	}
	if res.PITID == nil {
		return nil, "", fmt.Errorf("opensearch: response missing pit id")
	}
	if res.Hits.Total.Relation != "eq" {
		return nil, "", fmt.Errorf("opensearch: trace fetch returned an approximate total, results may be truncated")
	}
	spans := make([]wireSpan, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		spans = append(spans, h.Source)
	}
	return spans, *res.PITID, nil
}

// Handler receives one fully assembled trace at a time, in ascending
// root start-time order.
type Handler func(root *span.Span, spans []*span.Span) error

// ForTraces pages every root span starting in [from, to) and the spans
// of its trace, dispatching each to handle in ascending start-time
// order. It opens one PIT for the whole walk and closes it
// unconditionally, even if handle or a page fetch fails (spec §6).
func (c *Client) ForTraces(ctx context.Context, from, to int64, handle Handler) error {
	pitID, err := c.OpenPIT(ctx)
	if err != nil {
		return err
	}
	walkErr := c.walkTraces(ctx, pitID, from, to, handle)
	if closeErr := c.ClosePIT(ctx, pitID); closeErr != nil && walkErr == nil {
		walkErr = fmt.Errorf("opensearch: close pit: %w", closeErr)
	}
	return walkErr
}

func (c *Client) walkTraces(ctx context.Context, pitID string, from, to int64, handle Handler) error {
	var cursor []int64
	for {
		page, err := c.SearchRoots(ctx, pitID, from, to, cursor)
		if err != nil {
			return err
		}
		pitID = page.PITID
		if len(page.Roots) == 0 {
			return nil
		}
		cursor = page.Cursor

		for i := 0; i < len(page.Roots); i += ChunkSize {
			end := i + ChunkSize
			if end > len(page.Roots) {
				end = len(page.Roots)
			}
			chunk := page.Roots[i:end]

			traceIDs := make([]string, len(chunk))
			for j, root := range chunk {
				traceIDs[j] = root.TraceID
			}
			spans, refreshedPIT, err := c.SpansByTraceIDs(ctx, pitID, traceIDs)
			if err != nil {
				return err
			}
			pitID = refreshedPIT

			byTrace := make(map[string][]*span.Span, len(chunk))
			for _, w := range spans {
				s := ToSpan(w)
				byTrace[s.TraceID] = append(byTrace[s.TraceID], s)
			}

			for _, root := range chunk {
				spans, ok := byTrace[root.TraceID]
				if !ok {
					continue
				}
				if err := handle(ToSpan(root), spans); err != nil {
					return err
				}
			}
		}
	}
}

// toTagValue converts a wire tag's flattened type/value into the typed
// span.TagValue the processor tree consumes.
func toTagValue(t wireTag) span.TagValue {
	switch {
	case t.VInt64 != nil:
		return span.TagValue{Kind: span.TagInt64, Int64: *t.VInt64}
	case t.VBool != nil:
		return span.TagValue{Kind: span.TagBool, Bool: *t.VBool}
	default:
		return span.TagValue{Kind: span.TagString, String: t.VString}
	}
}

func toTags(tags []wireTag) []span.Tag {
	out := make([]span.Tag, len(tags))
	for i, t := range tags {
		out[i] = span.Tag{Key: t.Key, Value: toTagValue(t)}
	}
	return out
}

// ToSpan converts a decoded wire span into the processor tree's read-only
// Span type, resolving the span's CHILD_OF parent reference if any and
// ignoring every other reference type (spec §3: "ignores non-CHILD_OF
// links").
func ToSpan(w wireSpan) *span.Span {
	var parentSpanID string
	for _, r := range w.References {
		if r.RefType == "CHILD_OF" {
			parentSpanID = r.SpanID
			break
		}
	}
	return &span.Span{
		TraceID:       w.TraceID,
		SpanID:        w.SpanID,
		OperationName: w.OperationName,
		ParentSpanID:  parentSpanID,
		StartTime:     w.StartTime,
		Duration:      w.Duration,
		Tags:          toTags(w.Tags),
		Process: span.Process{
			ServiceName: w.Process.ServiceName,
			Tags:        toTags(w.Process.Tags),
		},
	}
}
