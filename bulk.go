package esclient

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Fixed retry policy for failed batch submissions.
const (
	bulkRetryBase  = 100 * time.Millisecond
	bulkRetryCount = 3
)

// BulkItem is a single prepared write request. It carries the namespaced
// action metadata and source as NDJSON lines, ready for the bulk endpoint.
type BulkItem struct {
	payload []byte
}

// PrepareInsert constructs an insert request without executing it. The index
// name is namespaced here, so the bulk processor never touches naming.
func (c *Client) PrepareInsert(indexName, id string, doc any) (*BulkItem, error) {
	return prepareItem("index", c.FormatIndexName(indexName), id, doc)
}

// PrepareUpdate constructs a partial-update request without executing it.
func (c *Client) PrepareUpdate(indexName, id string, doc any) (*BulkItem, error) {
	return prepareItem("update", c.FormatIndexName(indexName), id, map[string]any{"doc": doc})
}

func prepareItem(action, index, id string, source any) (*BulkItem, error) {
	meta, err := json.Marshal(map[string]any{
		action: map[string]any{"_index": index, "_id": id},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal bulk action metadata")
	}

	src, err := json.Marshal(source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal bulk source")
	}

	payload := make([]byte, 0, len(meta)+len(src)+2)
	payload = append(payload, meta...)
	payload = append(payload, '\n')
	payload = append(payload, src...)
	payload = append(payload, '\n')

	return &BulkItem{payload: payload}, nil
}

// OutcomeKind tags the result of one batch submission.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota // every document accepted
	OutcomePartial                    // batch accepted, some documents failed
	OutcomeFailure                    // submission failed after retries
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	default:
		return "failure"
	}
}

// BulkOutcome describes the result of exactly one flushed batch.
type BulkOutcome struct {
	ExecutionID int64
	Kind        OutcomeKind
	Actions     int
	Took        time.Duration
	Err         error            // set for OutcomeFailure
	Failed      []map[string]any // per-document failures for OutcomePartial
}

// BulkProcessorConfig configures the batched write facility.
type BulkProcessorConfig struct {
	BulkActions        int               // flush after this many actions (default: 1000)
	BulkSizeMB         int               // flush after this many megabytes (default: 5)
	FlushInterval      time.Duration     // flush a non-empty buffer at this interval (default: 10s)
	ConcurrentRequests int               // max in-flight batch submissions (default: 1)
	OnOutcome          func(BulkOutcome) // per-batch notification (default: logs)
}

func (cfg *BulkProcessorConfig) withDefaults() BulkProcessorConfig {
	out := *cfg
	if out.BulkActions <= 0 {
		out.BulkActions = 1000
	}
	if out.BulkSizeMB <= 0 {
		out.BulkSizeMB = 5
	}
	if out.FlushInterval <= 0 {
		out.FlushInterval = 10 * time.Second
	}
	if out.ConcurrentRequests <= 0 {
		out.ConcurrentRequests = 1
	}
	return out
}

// BulkProcessor accumulates prepared insert/update requests and submits them
// as grouped bulk calls. A batch is flushed when the action count or byte
// size threshold is reached, on the flush interval, on an explicit Flush, and
// on Close. Failed submissions are retried with exponential backoff and
// reported through the outcome callback after retries are exhausted.
type BulkProcessor struct {
	client *Client
	cfg    BulkProcessorConfig
	log    Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	actions int
	execID  int64
	closed  bool

	sem  chan struct{}
	wg   sync.WaitGroup
	stop chan struct{}
}

type bulkBatch struct {
	id      int64
	payload []byte
	actions int
}

// BulkProcessor creates and starts a batched write facility bound to this
// client. Requires a prior successful Connect.
func (c *Client) BulkProcessor(cfg BulkProcessorConfig) (*BulkProcessor, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}

	p := &BulkProcessor{
		client: c,
		cfg:    cfg.withDefaults(),
		log:    c.log,
		stop:   make(chan struct{}),
	}
	p.sem = make(chan struct{}, p.cfg.ConcurrentRequests)

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// Add enqueues a prepared request. When a threshold is crossed the batch is
// handed to a submission goroutine; Add blocks only while the concurrency
// limit is saturated.
func (p *BulkProcessor) Add(item *BulkItem) error {
	if item == nil || len(item.payload) == 0 {
		return errors.New("bulk item is empty")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	p.buf.Write(item.payload)
	p.actions++

	var batch *bulkBatch
	if p.actions >= p.cfg.BulkActions || p.buf.Len() >= p.cfg.BulkSizeMB*1024*1024 {
		batch = p.takeLocked()
	}
	p.mu.Unlock()

	if batch != nil {
		p.dispatch(batch)
	}
	return nil
}

// Flush submits the currently buffered batch, if any, without waiting for a
// threshold or the interval timer.
func (p *BulkProcessor) Flush() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	batch := p.takeLocked()
	p.mu.Unlock()

	if batch != nil {
		p.dispatch(batch)
	}
	return nil
}

// Close flushes the remaining buffer, stops the interval loop and waits for
// all in-flight submissions to drain, or for ctx to expire.
func (p *BulkProcessor) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	p.closed = true
	batch := p.takeLocked()
	p.mu.Unlock()

	close(p.stop)
	if batch != nil {
		p.dispatch(batch)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// takeLocked cuts the current buffer into a batch. Caller holds p.mu.
func (p *BulkProcessor) takeLocked() *bulkBatch {
	if p.actions == 0 {
		return nil
	}

	payload := make([]byte, p.buf.Len())
	copy(payload, p.buf.Bytes())
	p.buf.Reset()

	p.execID++
	batch := &bulkBatch{id: p.execID, payload: payload, actions: p.actions}
	p.actions = 0

	return batch
}

func (p *BulkProcessor) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			batch := p.takeLocked()
			p.mu.Unlock()
			if batch != nil {
				p.dispatch(batch)
			}
		case <-p.stop:
			return
		}
	}
}

func (p *BulkProcessor) dispatch(batch *bulkBatch) {
	p.sem <- struct{}{}
	p.wg.Add(1)

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		p.execute(batch)
	}()
}

// execute submits one batch, retrying transport failures and throttling
// responses with exponential backoff. Exactly one outcome is reported.
func (p *BulkProcessor) execute(batch *bulkBatch) {
	p.log.Debug("executing bulk", "execution_id", batch.id, "actions", batch.actions)

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= bulkRetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(bulkRetryBase << (attempt - 1))
		}

		resp, err := p.client.Bulk(context.Background(), bytes.NewReader(batch.payload))
		if err != nil {
			lastErr = err
			if !retryableBulkError(err) {
				break
			}
			continue
		}

		outcome := BulkOutcome{
			ExecutionID: batch.id,
			Kind:        OutcomeSuccess,
			Actions:     batch.actions,
			Took:        time.Since(start),
		}
		if resp.Errors {
			outcome.Kind = OutcomePartial
			outcome.Failed = failedBulkItems(resp)
		}
		p.report(outcome)
		return
	}

	p.report(BulkOutcome{
		ExecutionID: batch.id,
		Kind:        OutcomeFailure,
		Actions:     batch.actions,
		Took:        time.Since(start),
		Err:         lastErr,
	})
}

func (p *BulkProcessor) report(outcome BulkOutcome) {
	if p.cfg.OnOutcome != nil {
		p.cfg.OnOutcome(outcome)
		return
	}

	switch outcome.Kind {
	case OutcomeSuccess:
		p.log.Debug("bulk completed",
			"execution_id", outcome.ExecutionID, "actions", outcome.Actions, "took", outcome.Took)
	case OutcomePartial:
		p.log.Debug("bulk executed with document failures",
			"execution_id", outcome.ExecutionID, "failed", len(outcome.Failed))
	default:
		p.log.Debug("bulk failed after retries",
			"execution_id", outcome.ExecutionID, "error", outcome.Err)
	}
}

// retryableBulkError reports whether a submission failure is worth another
// attempt: transport errors and 429 throttling are, definitive statuses not.
func retryableBulkError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429
	}
	return true
}

// failedBulkItems extracts the per-document failures from a bulk response.
func failedBulkItems(resp *BulkResponse) []map[string]any {
	var failed []map[string]any
	for _, item := range resp.Items {
		for _, result := range item {
			m, ok := result.(map[string]any)
			if !ok {
				continue
			}
			if _, hasErr := m["error"]; hasErr {
				failed = append(failed, m)
			}
		}
	}
	return failed
}
