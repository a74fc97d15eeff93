package esclient

import (
	"encoding/json"
	"io"
)

// Document represents a single document lookup result.
// Found is false when the document does not exist; that is not an error.
type Document struct {
	Index       string          `json:"_index"`
	ID          string          `json:"_id"`
	Found       bool            `json:"found"`
	Version     int64           `json:"_version"`
	SeqNo       int64           `json:"_seq_no"`
	PrimaryTerm int64           `json:"_primary_term"`
	Source      json.RawMessage `json:"_source"`
}

// MultiGetResponse represents a batched point lookup result, one entry per
// requested id, order preserved.
type MultiGetResponse struct {
	Docs []Document `json:"docs"`
}

// SearchRequest represents Elasticsearch search request. The query body is an
// opaque structured document in the engine's query language and is passed
// through unmodified.
type SearchRequest struct {
	Body               io.Reader // Query body (JSON)
	Size               *int      // Number of results to return
	From               *int      // Offset for pagination
	WithTrackTotalHits bool      // Track total hits accurately
}

// SearchResponse represents Elasticsearch search response.
type SearchResponse struct {
	Took     int                    `json:"took"`
	TimedOut bool                   `json:"timed_out"`
	Shards   map[string]interface{} `json:"_shards"`
	Hits     struct {
		Total struct {
			Value    int    `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		MaxScore *float64                 `json:"max_score"`
		Hits     []map[string]interface{} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations,omitempty"`
}

// DeleteByQueryResponse represents delete by query response. Version
// conflicts are counted, not fatal, because deletes run with
// conflicts=proceed.
type DeleteByQueryResponse struct {
	Took             int                      `json:"took"`
	TimedOut         bool                     `json:"timed_out"`
	Total            int                      `json:"total"`
	Deleted          int                      `json:"deleted"`
	Batches          int                      `json:"batches"`
	VersionConflicts int                      `json:"version_conflicts"`
	Failures         []map[string]interface{} `json:"failures"`
}

// BulkResponse represents Elasticsearch bulk response.
type BulkResponse struct {
	Took   int                      `json:"took"`
	Errors bool                     `json:"errors"`
	Items  []map[string]interface{} `json:"items"`
}

// acknowledgedResponse is the common acknowledgement envelope of index
// management calls.
type acknowledgedResponse struct {
	Acknowledged bool `json:"acknowledged"`
}
