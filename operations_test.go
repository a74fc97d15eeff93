package esclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedRequest keeps the parts of a request the fake needs after the body
// reader is consumed.
type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// fakeES is an in-memory ESClient. Each Do call is recorded and answered by
// the handler.
type fakeES struct {
	mu      sync.Mutex
	reqs    []recordedRequest
	handler func(req recordedRequest) (*http.Response, error)
}

func (f *fakeES) Do(_ context.Context, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}

	rec := recordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
		Body:   body,
	}

	f.mu.Lock()
	f.reqs = append(f.reqs, rec)
	f.mu.Unlock()

	return f.handler(rec)
}

func (f *fakeES) requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func httpResponse(status int, body string) (*http.Response, error) {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func newTestClient(t *testing.T, namespace string, es ESClient) *Client {
	t.Helper()

	c, err := NewClient(Config{Nodes: "localhost:9200", Namespace: namespace})
	require.NoError(t, err)

	u, err := url.Parse("http://localhost:9200")
	require.NoError(t, err)

	c.es = es
	c.baseURL = u
	return c
}

func TestOperationsRequireConnect(t *testing.T) {
	c, err := NewClient(Config{Nodes: "localhost:9200"})
	require.NoError(t, err)

	_, err = c.IndexExists(context.Background(), "segment")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.Get(context.Background(), "segment", "abc")
	assert.ErrorIs(t, err, ErrNotConnected)

	err = c.ForceInsert(context.Background(), "segment", "abc", map[string]any{})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.BulkProcessor(BulkProcessorConfig{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCreateIndexAppliesNamespace(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{"acknowledged": true}`)
	}}
	c := newTestClient(t, "prod", fake)

	acknowledged, err := c.CreateIndex(context.Background(), "segment",
		map[string]any{"number_of_shards": 1},
		map[string]any{"properties": map[string]any{"time_bucket": map[string]any{"type": "long"}}},
	)
	require.NoError(t, err)
	assert.True(t, acknowledged)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/prod_segment", reqs[0].Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Contains(t, body, "settings")
	assert.Contains(t, body, "mappings")
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected bool
	}{
		{name: "existing index", status: http.StatusOK, expected: true},
		{name: "missing index is not an error", status: http.StatusNotFound, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
				return httpResponse(tt.status, "")
			}}
			c := newTestClient(t, "", fake)

			exists, err := c.IndexExists(context.Background(), "segment")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, exists)
		})
	}
}

func TestCreateTemplatePattern(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{"acknowledged": true}`)
	}}
	c := newTestClient(t, "prod", fake)

	err := c.CreateTemplate(context.Background(), "metrics",
		map[string]any{"number_of_replicas": 0},
		map[string]any{"properties": map[string]any{}},
	)
	require.NoError(t, err)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/_template/prod_metrics", reqs[0].Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Equal(t, []any{"prod_metrics_*"}, body["index_patterns"])
}

func TestTemplateExistsStatusBranching(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected bool
		wantErr  bool
	}{
		{name: "200 means exists", status: http.StatusOK, expected: true},
		{name: "404 means missing", status: http.StatusNotFound, expected: false},
		{name: "500 is an error", status: http.StatusInternalServerError, wantErr: true},
		{name: "403 is an error", status: http.StatusForbidden, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
				return httpResponse(tt.status, "")
			}}
			c := newTestClient(t, "", fake)

			exists, err := c.TemplateExists(context.Background(), "metrics")
			if tt.wantErr {
				require.Error(t, err)
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.status, statusErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, exists)
		})
	}
}

func TestGetMissingDocument(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusNotFound, `{"_index":"segment","_id":"abc","found":false}`)
	}}
	c := newTestClient(t, "", fake)

	doc, err := c.Get(context.Background(), "segment", "abc")
	require.NoError(t, err)
	assert.False(t, doc.Found)
	assert.Equal(t, "abc", doc.ID)
}

func TestGetFoundDocument(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusOK,
			`{"_index":"prod_segment","_id":"abc","found":true,"_version":3,"_seq_no":7,"_primary_term":1,"_source":{"service":"gateway"}}`)
	}}
	c := newTestClient(t, "prod", fake)

	doc, err := c.Get(context.Background(), "segment", "abc")
	require.NoError(t, err)
	assert.True(t, doc.Found)
	assert.Equal(t, int64(3), doc.Version)
	assert.JSONEq(t, `{"service":"gateway"}`, string(doc.Source))

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/prod_segment/_doc/abc", reqs[0].Path)
}

func TestMultiGetPartialResults(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{
			"docs": [
				{"_id":"a","found":true,"_source":{"n":1}},
				{"_id":"b","found":false}
			]
		}`)
	}}
	c := newTestClient(t, "", fake)

	resp, err := c.MultiGet(context.Background(), "segment", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, resp.Docs, 2)
	assert.True(t, resp.Docs[0].Found)
	assert.False(t, resp.Docs[1].Found)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/segment/_mget", reqs[0].Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Equal(t, []any{"a", "b"}, body["ids"])
}

func TestSearchPassesQueryThrough(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{"took":2,"hits":{"total":{"value":1},"hits":[{"_id":"a"}]}}`)
	}}
	c := newTestClient(t, "prod", fake)

	query := `{"query":{"term":{"service":"gateway"}},"aggs":{"by_endpoint":{"terms":{"field":"endpoint"}}}}`
	size := 20
	resp, err := c.Search(context.Background(), "segment", &SearchRequest{
		Body:               strings.NewReader(query),
		Size:               &size,
		WithTrackTotalHits: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Hits.Total.Value)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/prod_segment/_search", reqs[0].Path)
	assert.Equal(t, "20", reqs[0].Query.Get("size"))
	assert.Equal(t, "true", reqs[0].Query.Get("track_total_hits"))
	assert.JSONEq(t, query, string(reqs[0].Body))
}

func TestForceInsertUsesImmediateRefresh(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusCreated, `{"result":"created"}`)
	}}
	c := newTestClient(t, "prod", fake)

	err := c.ForceInsert(context.Background(), "segment", "abc", map[string]any{"service": "gateway"})
	require.NoError(t, err)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/prod_segment/_doc/abc", reqs[0].Path)
	assert.Equal(t, "true", reqs[0].Query.Get("refresh"))
}

func TestForceUpdateVersionedConflict(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusConflict, `{"error":{"type":"version_conflict_engine_exception"}}`)
	}}
	c := newTestClient(t, "", fake)

	err := c.ForceUpdateVersioned(context.Background(), "segment", "abc",
		map[string]any{"latency": 5}, 7, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/segment/_update/abc", reqs[0].Path)
	assert.Equal(t, "7", reqs[0].Query.Get("if_seq_no"))
	assert.Equal(t, "1", reqs[0].Query.Get("if_primary_term"))
	assert.Equal(t, "true", reqs[0].Query.Get("refresh"))
}

func TestForceUpdateWrapsDoc(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{"result":"updated"}`)
	}}
	c := newTestClient(t, "", fake)

	err := c.ForceUpdate(context.Background(), "segment", "abc", map[string]any{"latency": 5})
	require.NoError(t, err)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"doc":{"latency":5}}`, string(reqs[0].Body))
	assert.Empty(t, reqs[0].Query.Get("if_seq_no"))
}

func TestDeleteByTimeRange(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{"took":12,"total":42,"deleted":41,"version_conflicts":1}`)
	}}
	c := newTestClient(t, "prod", fake)

	resp, err := c.DeleteByTimeRange(context.Background(), "segment", "time_bucket", 1000)
	require.NoError(t, err)
	assert.Equal(t, 41, resp.Deleted)
	assert.Equal(t, 1, resp.VersionConflicts)

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/prod_segment/_delete_by_query", reqs[0].Path)
	assert.Equal(t, "proceed", reqs[0].Query.Get("conflicts"))
	assert.JSONEq(t, `{"query":{"range":{"time_bucket":{"lte":1000}}}}`, string(reqs[0].Body))
}

func TestDeleteIndexPropagatesMissing(t *testing.T) {
	fake := &fakeES{handler: func(req recordedRequest) (*http.Response, error) {
		return httpResponse(http.StatusNotFound, `{"error":{"type":"index_not_found_exception"}}`)
	}}
	c := newTestClient(t, "", fake)

	_, err := c.DeleteIndex(context.Background(), "segment")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
