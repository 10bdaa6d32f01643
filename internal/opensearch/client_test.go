package opensearch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnomalyAI/anomalyd/internal/span"
)

// fakeStore plays a PIT-backed store well enough to exercise ForTraces'
// paging/chunking: one root-span page and one trace-span fetch per
// chunk, keyed off the request path.
type fakeStore struct {
	t            *testing.T
	rootPages    [][]wireSpan // served in order, one per SearchRoots call
	rootCall     int
	spansByTrace map[string][]wireSpan
	pitClosed    bool
}

func (f *fakeStore) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "point_in_time") && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(createPITResponse{PITID: "pit-0"})
		case r.URL.Path == "/_search/point_in_time" && r.Method == http.MethodDelete:
			f.pitClosed = true
			_ = json.NewEncoder(w).Encode(map[string]any{"succeeded": true})
		case r.URL.Path == "/_search" && r.Method == http.MethodPost:
			var req searchRequest
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
			f.serveSearch(w, req)
		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
		}
	}
}

func (f *fakeStore) serveSearch(w http.ResponseWriter, req searchRequest) {
	// A trace-id fetch always carries a "terms" query; a root page search
	// always carries a "bool" query.
	if q, ok := req.Query.(map[string]any); ok {
		if _, isTerms := q["terms"]; isTerms {
			f.serveTraceFetch(w, q["terms"])
			return
		}
	}
	f.serveRootPage(w)
}

func (f *fakeStore) serveRootPage(w http.ResponseWriter) {
	idx := f.rootCall
	f.rootCall++
	if idx >= len(f.rootPages) {
		_ = json.NewEncoder(w).Encode(searchResponse{PITID: strPtr("pit-" + itoa(idx+1)), Hits: hits{Hits: []hit{}}})
		return
	}
	roots := f.rootPages[idx]
	res := searchResponse{PITID: strPtr("pit-" + itoa(idx+1)), Hits: hits{Total: total{Relation: "eq"}}}
	for i, r := range roots {
		res.Hits.Hits = append(res.Hits.Hits, hit{Source: r, Sort: []int64{r.StartTime, int64(i)}})
	}
	_ = json.NewEncoder(w).Encode(res)
}

func (f *fakeStore) serveTraceFetch(w http.ResponseWriter, termsRaw any) {
	terms, _ := termsRaw.(map[string]any)
	ids, _ := terms["traceID"].([]any)
	var spans []wireSpan
	for _, idAny := range ids {
		id, _ := idAny.(string)
		spans = append(spans, f.spansByTrace[id]...)
	}
	res := searchResponse{PITID: strPtr("pit-trace"), Hits: hits{Total: total{Relation: "eq"}}}
	for _, s := range spans {
		res.Hits.Hits = append(res.Hits.Hits, hit{Source: s})
	}
	_ = json.NewEncoder(w).Encode(res)
}

func strPtr(s string) *string { return &s }
func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
}

func TestForTracesPagesAndDispatchesInOrder(t *testing.T) {
	root1 := wireSpan{TraceID: "tr1", SpanID: "root1", StartTime: 10}
	root2 := wireSpan{TraceID: "tr2", SpanID: "root2", StartTime: 20}

	store := &fakeStore{
		t:         t,
		rootPages: [][]wireSpan{{root1, root2}},
		spansByTrace: map[string][]wireSpan{
			"tr1": {root1, {TraceID: "tr1", SpanID: "child1", References: []reference{{RefType: "CHILD_OF", SpanID: "root1"}}}},
			"tr2": {root2},
		},
	}
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := New(srv.URL, "jaeger-span-*", "", "", nil)

	var got []string
	err := c.ForTraces(t.Context(), 0, 100, func(root *span.Span, spans []*span.Span) error {
		got = append(got, root.TraceID)
		if root.TraceID == "tr1" {
			assert.Len(t, spans, 2)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tr1", "tr2"}, got)
	assert.True(t, store.pitClosed)
}

func TestForTracesClosesPITEvenOnHandlerError(t *testing.T) {
	root1 := wireSpan{TraceID: "tr1", SpanID: "root1", StartTime: 10}
	store := &fakeStore{
		t:            t,
		rootPages:    [][]wireSpan{{root1}},
		spansByTrace: map[string][]wireSpan{"tr1": {root1}},
	}
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := New(srv.URL, "jaeger-span-*", "", "", nil)

	boom := assert.AnError
	err := c.ForTraces(t.Context(), 0, 100, func(root *span.Span, spans []*span.Span) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, store.pitClosed)
}

func TestSpansByTraceIDsRejectsApproximateTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(searchResponse{PITID: strPtr("pit-1"), Hits: hits{Total: total{Relation: "gte"}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "jaeger-span-*", "", "", nil)
	_, _, err := c.SpansByTraceIDs(t.Context(), "pit-0", []string{"tr1"})
	require.Error(t, err)
}
