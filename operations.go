package esclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// CreateIndex creates an index with the given settings and mapping documents.
// Returns whether the cluster acknowledged the operation.
func (c *Client) CreateIndex(ctx context.Context, indexName string, settings, mapping map[string]any) (bool, error) {
	es, err := c.ready()
	if err != nil {
		return false, err
	}
	index := c.FormatIndexName(indexName)

	body := map[string]any{}
	if settings != nil {
		body["settings"] = settings
	}
	if mapping != nil {
		body["mappings"] = mapping
	}

	bodyReader, err := jsonBody(body)
	if err != nil {
		return false, err
	}

	u := newURL(c.baseURL, "/"+index, nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bodyReader)
	if err != nil {
		return false, errors.Wrap(err, "failed to create index request")
	}
	contentTypeJSON(httpReq)

	var resp acknowledgedResponse
	status, err := doJSON(ctx, es, httpReq, &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return false, &StatusError{Op: "create_index", StatusCode: status}
	}

	c.log.DebugWithCtx(ctx, "create index finished", "index", index, "acknowledged", resp.Acknowledged)
	return resp.Acknowledged, nil
}

// GetIndex returns the raw index definition (settings, mappings, aliases).
func (c *Client) GetIndex(ctx context.Context, indexName string) (map[string]any, error) {
	es, err := c.ready()
	if err != nil {
		return nil, err
	}
	index := c.FormatIndexName(indexName)

	u := newURL(c.baseURL, "/"+index, nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create get index request")
	}

	var resp map[string]any
	status, err := doJSON(ctx, es, httpReq, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "get_index", StatusCode: status}
	}

	return resp, nil
}

// IndexExists checks if the namespaced index exists. A missing index is a
// negative result, not an error.
func (c *Client) IndexExists(ctx context.Context, indexName string) (bool, error) {
	es, err := c.ready()
	if err != nil {
		return false, err
	}
	index := c.FormatIndexName(indexName)

	u := newURL(c.baseURL, "/"+index, nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to create index exists request")
	}

	status, err := doJSON(ctx, es, httpReq, nil)
	if err != nil {
		return false, err
	}

	return status == http.StatusOK, nil
}

// DeleteIndex deletes the namespaced index. Returns the acknowledgement flag;
// a missing index surfaces as a StatusError, not a silent success.
func (c *Client) DeleteIndex(ctx context.Context, indexName string) (bool, error) {
	es, err := c.ready()
	if err != nil {
		return false, err
	}
	index := c.FormatIndexName(indexName)

	u := newURL(c.baseURL, "/"+index, nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to create delete index request")
	}

	var resp acknowledgedResponse
	status, err := doJSON(ctx, es, httpReq, &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &StatusError{Op: "delete_index", StatusCode: status}
	}

	c.log.DebugWithCtx(ctx, "delete index finished", "index", index, "acknowledged", resp.Acknowledged)
	return resp.Acknowledged, nil
}

// CreateTemplate creates an index template whose pattern matches every index
// sharing the namespaced prefix ("{name}_*"). Succeeds only on HTTP 200.
func (c *Client) CreateTemplate(ctx context.Context, templateName string, settings, mapping map[string]any) error {
	es, err := c.ready()
	if err != nil {
		return err
	}
	name := c.FormatIndexName(templateName)

	template := map[string]any{
		"index_patterns": []string{name + "_*"},
		"settings":       settings,
		"mappings":       mapping,
	}

	bodyReader, err := jsonBody(template)
	if err != nil {
		return err
	}

	u := newURL(c.baseURL, "/_template/"+name, nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bodyReader)
	if err != nil {
		return errors.Wrap(err, "failed to create template request")
	}
	contentTypeJSON(httpReq)

	status, err := doJSON(ctx, es, httpReq, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Op: "create_template", StatusCode: status}
	}

	return nil
}

// TemplateExists checks if the namespaced template exists.
// HTTP 200 means true, 404 means false; any other status is an error.
func (c *Client) TemplateExists(ctx context.Context, templateName string) (bool, error) {
	es, err := c.ready()
	if err != nil {
		return false, err
	}
	name := c.FormatIndexName(templateName)

	u := newURL(c.baseURL, "/_template/"+name, nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to create template exists request")
	}

	status, err := doJSON(ctx, es, httpReq, nil)
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &StatusError{Op: "template_exists", StatusCode: status}
	}
}

// DeleteTemplate deletes the namespaced template. Succeeds only on HTTP 200.
func (c *Client) DeleteTemplate(ctx context.Context, templateName string) error {
	es, err := c.ready()
	if err != nil {
		return err
	}
	name := c.FormatIndexName(templateName)

	u := newURL(c.baseURL, "/_template/"+name, nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create delete template request")
	}

	status, err := doJSON(ctx, es, httpReq, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Op: "delete_template", StatusCode: status}
	}

	return nil
}

// Get performs a single-document point lookup. A missing document yields
// Found=false, not an error.
func (c *Client) Get(ctx context.Context, indexName, id string) (*Document, error) {
	es, err := c.ready()
	if err != nil {
		return nil, err
	}
	index := c.FormatIndexName(indexName)

	u := newURL(c.baseURL, fmt.Sprintf("/%s/_doc/%s", index, id), nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create get request")
	}

	var doc Document
	status, err := doJSON(ctx, es, httpReq, &doc)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return nil, &StatusError{Op: "get", StatusCode: status}
	}

	return &doc, nil
}

// MultiGet performs a batched point lookup. Each id resolves independently;
// partial misses are not an overall failure.
func (c *Client) MultiGet(ctx context.Context, indexName string, ids []string) (*MultiGetResponse, error) {
	es, err := c.ready()
	if err != nil {
		return nil, err
	}
	index := c.FormatIndexName(indexName)

	bodyReader, err := jsonBody(map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}

	u := newURL(c.baseURL, fmt.Sprintf("/%s/_mget", index), nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create multi get request")
	}
	contentTypeJSON(httpReq)

	var resp MultiGetResponse
	status, err := doJSON(ctx, es, httpReq, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "multi_get", StatusCode: status}
	}

	return &resp, nil
}

// Search executes a structured query against the namespaced index. The query
// body is passed through to the engine unmodified.
func (c *Client) Search(ctx context.Context, indexName string, req *SearchRequest) (*SearchResponse, error) {
	es, err := c.ready()
	if err != nil {
		return nil, err
	}
	index := c.FormatIndexName(indexName)

	query := url.Values{}
	if req.Size != nil {
		query.Set("size", strconv.Itoa(*req.Size))
	}
	if req.From != nil {
		query.Set("from", strconv.Itoa(*req.From))
	}
	if req.WithTrackTotalHits {
		query.Set("track_total_hits", "true")
	}

	u := newURL(c.baseURL, fmt.Sprintf("/%s/_search", index), query)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create search request")
	}
	contentTypeJSON(httpReq)

	var resp SearchResponse
	status, err := doJSON(ctx, es, httpReq, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "search", StatusCode: status}
	}

	return &resp, nil
}

// ForceInsert writes a document with immediate visibility: the write is
// refreshed before the call returns, so a subsequent Get sees it.
func (c *Client) ForceInsert(ctx context.Context, indexName, id string, doc any) error {
	es, err := c.ready()
	if err != nil {
		return err
	}
	index := c.FormatIndexName(indexName)

	bodyReader, err := jsonBody(doc)
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("refresh", "true")

	u := newURL(c.baseURL, fmt.Sprintf("/%s/_doc/%s", index, id), query)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bodyReader)
	if err != nil {
		return errors.Wrap(err, "failed to create insert request")
	}
	contentTypeJSON(httpReq)

	status, err := doJSON(ctx, es, httpReq, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &StatusError{Op: "force_insert", StatusCode: status}
	}

	return nil
}

// ForceUpdate applies a partial document update with immediate visibility.
func (c *Client) ForceUpdate(ctx context.Context, indexName, id string, doc any) error {
	return c.update(ctx, indexName, id, doc, nil)
}

// ForceUpdateVersioned applies a partial document update with optimistic
// concurrency control. The update fails with ErrVersionConflict when the
// stored document's sequence number and primary term do not match; the
// document is left unmodified in that case.
func (c *Client) ForceUpdateVersioned(ctx context.Context, indexName, id string, doc any, seqNo, primaryTerm int64) error {
	return c.update(ctx, indexName, id, doc, func(query url.Values) {
		query.Set("if_seq_no", strconv.FormatInt(seqNo, 10))
		query.Set("if_primary_term", strconv.FormatInt(primaryTerm, 10))
	})
}

func (c *Client) update(ctx context.Context, indexName, id string, doc any, versioned func(url.Values)) error {
	es, err := c.ready()
	if err != nil {
		return err
	}
	index := c.FormatIndexName(indexName)

	bodyReader, err := jsonBody(map[string]any{"doc": doc})
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("refresh", "true")
	if versioned != nil {
		versioned(query)
	}

	u := newURL(c.baseURL, fmt.Sprintf("/%s/_update/%s", index, id), query)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bodyReader)
	if err != nil {
		return errors.Wrap(err, "failed to create update request")
	}
	contentTypeJSON(httpReq)

	status, err := doJSON(ctx, es, httpReq, nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusConflict:
		return errors.Wrapf(ErrVersionConflict, "index %s id %s", index, id)
	default:
		return &StatusError{Op: "force_update", StatusCode: status}
	}
}

// DeleteByTimeRange deletes all documents whose timeColumn value is less than
// or equal to endTimeBucket. Runs with conflicts=proceed: a version conflict
// on one document skips it without aborting the rest.
func (c *Client) DeleteByTimeRange(ctx context.Context, indexName, timeColumn string, endTimeBucket int64) (*DeleteByQueryResponse, error) {
	es, err := c.ready()
	if err != nil {
		return nil, err
	}
	index := c.FormatIndexName(indexName)

	bodyReader, err := jsonBody(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				timeColumn: map[string]any{"lte": endTimeBucket},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("conflicts", "proceed")

	u := newURL(c.baseURL, fmt.Sprintf("/%s/_delete_by_query", index), query)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create delete by query request")
	}
	contentTypeJSON(httpReq)

	var resp DeleteByQueryResponse
	status, err := doJSON(ctx, es, httpReq, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "delete_by_query", StatusCode: status}
	}

	c.log.DebugWithCtx(ctx, "delete by time range finished",
		"index", index, "column", timeColumn, "end", endTimeBucket,
		"deleted", resp.Deleted, "conflicts", resp.VersionConflicts)
	return &resp, nil
}

// Bulk submits a prepared NDJSON body to the bulk endpoint. Used by the bulk
// processor; callers normally go through BulkProcessor instead.
func (c *Client) Bulk(ctx context.Context, body io.Reader) (*BulkResponse, error) {
	es, err := c.ready()
	if err != nil {
		return nil, err
	}

	u := newURL(c.baseURL, "/_bulk", nil)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bulk request")
	}
	httpReq.Header.Set("Content-Type", "application/x-ndjson")

	var resp BulkResponse
	status, err := doJSON(ctx, es, httpReq, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Op: "bulk", StatusCode: status}
	}

	return &resp, nil
}
