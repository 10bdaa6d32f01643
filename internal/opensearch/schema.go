// Package opensearch implements the point-in-time paged search client the
// orchestrator uses to page root spans and fetch their traces from the
// tracing schema's backing index (spec §6 "Input (trace store)").
package opensearch

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// searchRequest is one page of a PIT-backed search: an opaque query, a
// page size, the PIT handle, and an optional sort/search_after cursor.
type searchRequest struct {
	Query       any         `json:"query"`
	Size        int         `json:"size"`
	PIT         *pitRef     `json:"pit,omitempty"`
	Sort        []sortField `json:"sort,omitempty"`
	SearchAfter []int64     `json:"search_after,omitempty"`
}

type pitRef struct {
	ID        string `json:"id"`
	KeepAlive string `json:"keep_alive"`
}

type sortField map[string]sortOpts

type sortOpts struct {
	Order string `json:"order"`
}

// searchResponse wraps a page of hits along with a (possibly refreshed)
// PIT id, tagged-union-style over the success/error/unrecognized shapes
// the store returns (spec engine's opensearch.rs EsResponse).
type searchResponse struct {
	PITID *string `json:"pit_id"`
	Hits  hits    `json:"hits"`
}

type hits struct {
	Total total `json:"total"`
	Hits  []hit `json:"hits"`
}

type total struct {
	Relation string `json:"relation"`
}

type hit struct {
	Source wireSpan `json:"_source"`
	Sort   []int64  `json:"sort"`
}

// errorResponse is returned by the store in place of a searchResponse on
// failure.
type errorResponse struct {
	Status int `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (e errorResponse) Error() string {
	return fmt.Sprintf("opensearch: status %d: %s: %s", e.Status, e.Error.Type, e.Error.Reason)
}

// decodeSearchResponse distinguishes a successful hit page from an error
// body without a discriminator field, the same untagged-enum shape the
// original engine's EsResponse decodes (spec's backing store wire
// format is ambiguous between the two on the wire).
func decodeSearchResponse(data []byte) (searchResponse, error) {
	var res searchResponse
	if err := json.Unmarshal(data, &res); err == nil && res.Hits.Hits != nil {
		return res, nil
	}
	var errRes errorResponse
	if err := json.Unmarshal(data, &errRes); err == nil && errRes.Error.Reason != "" {
		return searchResponse{}, errRes
	}
	// Zero hits is a legitimate success response, not an error; retry the
	// plain decode before giving up.
	var plain searchResponse
	if err := json.Unmarshal(data, &plain); err != nil {
		return searchResponse{}, fmt.Errorf("opensearch: unrecognized response: %w", err)
	}
	return plain, nil
}

type createPITResponse struct {
	PITID string `json:"pit_id"`
}

// wireSpan is the tracing schema's span payload as it appears on the
// wire (spec §3 Span, §6 Input): trace/span ids, operation/service
// names, typed tags, process tags, references, duration in µs.
type wireSpan struct {
	TraceID       string      `json:"traceID"`
	SpanID        string      `json:"spanID"`
	OperationName string      `json:"operationName"`
	References    []reference `json:"references"`
	StartTime     int64       `json:"startTime"`
	Duration      int64       `json:"duration"`
	Tags          []wireTag   `json:"tags"`
	Process       wireProcess `json:"process"`
}

type reference struct {
	RefType string `json:"refType"`
	TraceID string `json:"traceID"`
	SpanID  string `json:"spanID"`
}

type wireProcess struct {
	ServiceName string    `json:"serviceName"`
	Tags        []wireTag `json:"tags"`
}

// wireTag carries a typed value flattened onto the tag object, per
// tagType discriminating which of value/vInt64/vBool is populated.
type wireTag struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	VString string `json:"value,omitempty"`
	VInt64  *int64 `json:"-"`
	VBool   *bool  `json:"-"`
}

// UnmarshalJSON decodes the tagged {"type":..,"value":..} shape into the
// typed limb the Type discriminator selects, since encoding/json can't
// express "value's Go type depends on a sibling field" declaratively.
func (t *wireTag) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key   string          `json:"key"`
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Key, t.Type = raw.Key, raw.Type
	switch raw.Type {
	case "int64":
		// The tracing schema serializes int64 tag values as digit strings,
		// not bare JSON numbers (they round-trip through a display/parse
		// pair rather than a native integer encoding).
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("opensearch: tag %q int64 value: %w", raw.Key, err)
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("opensearch: tag %q int64 value %q: %w", raw.Key, s, err)
		}
		t.VInt64 = &v
	case "bool":
		var v bool
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("opensearch: tag %q bool value: %w", raw.Key, err)
		}
		t.VBool = &v
	default:
		var v string
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("opensearch: tag %q string value: %w", raw.Key, err)
		}
		t.VString = v
	}
	return nil
}
