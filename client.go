package esclient

import (
	"context"
	"net/http"
	"net/url"

	elasticV8 "github.com/elastic/go-elasticsearch/v8"
	elasticV9 "github.com/elastic/go-elasticsearch/v9"
	"github.com/pkg/errors"
)

// ESClient is the core interface for Elasticsearch transport operations.
// It abstracts both v8 and v9 clients using HTTP transport layer.
type ESClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// esAdapter adapts ES v8/v9 clients to unified ESClient interface.
type esAdapter struct {
	perform func(req *http.Request) (*http.Response, error)
	baseURL *url.URL
}

// Do executes HTTP request with context, resolving relative URLs to absolute.
func (ea *esAdapter) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.URL == nil {
		return nil, errors.New("request url is nil")
	}

	r := req.Clone(ctx)
	if !r.URL.IsAbs() {
		if ea.baseURL == nil {
			return nil, errors.New("base url is nil")
		}
		u := *ea.baseURL
		u.Path = r.URL.Path
		u.RawQuery = r.URL.RawQuery
		r.URL = &u
	}

	return ea.perform(r)
}

// NewESClientV8 creates ESClient from Elasticsearch v8 client.
func NewESClientV8(c *elasticV8.Client, baseURL *url.URL) ESClient {
	return &esAdapter{
		perform: c.Transport.Perform,
		baseURL: baseURL,
	}
}

// NewESClientV9 creates ESClient from Elasticsearch v9 client.
func NewESClientV9(c *elasticV9.Client, baseURL *url.URL) ESClient {
	return &esAdapter{
		perform: c.Transport.Perform,
		baseURL: baseURL,
	}
}

// Client is a namespaced Elasticsearch client adapter. All index and template
// names passed to its operations are rewritten with the configured namespace
// prefix before any request is issued.
//
// Connect must be called once before any other operation; Shutdown releases
// the transport. The client is safe for concurrent operation calls, but
// Connect and Shutdown must not race with in-flight operations.
type Client struct {
	cfg Config
	log Logger

	es        ESClient
	baseURL   *url.URL
	transport *http.Transport
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithLogger attaches a logger for debug output.
func WithLogger(log Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates an unconnected client from configuration.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	c.log = safeLogger(c.log)

	return c, nil
}

// Connect parses the node list, builds the version-matching transport client
// and verifies cluster liveness with a ping. The node list is validated
// before any network call is attempted.
func (c *Client) Connect(ctx context.Context) error {
	addresses, err := parseClusterNodes(c.cfg.Nodes, c.cfg.scheme())
	if err != nil {
		return err
	}
	c.log.DebugWithCtx(ctx, "connecting to elasticsearch cluster", "nodes", c.cfg.Nodes)

	baseURL, err := url.Parse(addresses[0])
	if err != nil {
		return errors.Wrapf(err, "invalid base URL %q", addresses[0])
	}

	// Own the transport so Shutdown can release pooled connections.
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Basic auth is attached only when both parts are present.
	var username, password string
	if c.cfg.hasCredentials() {
		username = c.cfg.Username
		password = c.cfg.Password
	}

	var es ESClient
	switch c.cfg.version() {
	case 9:
		cl, err := elasticV9.NewClient(elasticV9.Config{
			Addresses: addresses,
			Username:  username,
			Password:  password,
			Transport: transport,
		})
		if err != nil {
			return errors.Wrapf(ErrConnectionFailed, "failed to create ES v9 client: %v", err)
		}
		es = NewESClientV9(cl, baseURL)

	default:
		cl, err := elasticV8.NewClient(elasticV8.Config{
			Addresses: addresses,
			Username:  username,
			Password:  password,
			Transport: transport,
		})
		if err != nil {
			return errors.Wrapf(ErrConnectionFailed, "failed to create ES v8 client: %v", err)
		}
		es = NewESClientV8(cl, baseURL)
	}

	if err := ping(ctx, es, baseURL); err != nil {
		transport.CloseIdleConnections()
		return err
	}

	c.es = es
	c.baseURL = baseURL
	c.transport = transport

	return nil
}

// Shutdown releases the connection handle and pooled transport resources.
func (c *Client) Shutdown() error {
	if c.es == nil {
		return ErrNotConnected
	}

	c.transport.CloseIdleConnections()
	c.es = nil
	c.baseURL = nil
	c.transport = nil

	return nil
}

// Ping issues a liveness probe against the cluster root.
func (c *Client) Ping(ctx context.Context) error {
	es, err := c.ready()
	if err != nil {
		return err
	}
	return ping(ctx, es, c.baseURL)
}

// FormatIndexName returns the namespaced form of a raw index name, exactly as
// every operation applies it.
func (c *Client) FormatIndexName(indexName string) string {
	return formatIndexName(c.cfg.Namespace, indexName)
}

// ready returns the established transport handle or ErrNotConnected.
func (c *Client) ready() (ESClient, error) {
	if c.es == nil {
		return nil, ErrNotConnected
	}
	return c.es, nil
}

func ping(ctx context.Context, es ESClient, baseURL *url.URL) error {
	u := newURL(baseURL, "/", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create ping request")
	}

	status, err := doJSON(ctx, es, req, nil)
	if err != nil {
		return errors.Wrapf(ErrConnectionFailed, "ping failed: %v", err)
	}
	if status != http.StatusOK {
		return errors.Wrapf(ErrConnectionFailed, "ping returned status %d", status)
	}

	return nil
}
