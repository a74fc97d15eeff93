package esclient

import (
	"fmt"
	"strconv"
	"strings"
)

// Config defines connection settings for a single Elasticsearch cluster.
type Config struct {
	Nodes     string // Comma-separated host:port list (e.g., "es-1:9200,es-2:9200")
	Namespace string // Optional prefix applied to every index/template name
	Username  string // Authentication username (optional)
	Password  string // Authentication password (optional)
	Version   int    // Elasticsearch version: 8 or 9 (default: 8)
	Scheme    string // "http" or "https" (default: "http")
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Nodes) == "" {
		return ErrEmptyNodes
	}

	if _, err := parseClusterNodes(c.Nodes, c.scheme()); err != nil {
		return err
	}

	if v := c.version(); v != 8 && v != 9 {
		return ErrInvalidESVersion(v)
	}

	return nil
}

func (c *Config) version() int {
	if c.Version == 0 {
		return 8
	}
	return c.Version
}

func (c *Config) scheme() string {
	if c.Scheme == "" {
		return "http"
	}
	return c.Scheme
}

// hasCredentials reports whether basic auth should be attached.
// Both username and password must be present.
func (c *Config) hasCredentials() bool {
	return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.Password) != ""
}

// parseClusterNodes converts a comma-separated host:port list into absolute
// addresses. Every entry must carry a numeric port.
func parseClusterNodes(nodes, scheme string) ([]string, error) {
	var addresses []string

	for _, node := range strings.Split(nodes, ",") {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}

		host, port, ok := strings.Cut(node, ":")
		if !ok || host == "" || port == "" {
			return nil, ErrInvalidNode(node)
		}
		if _, err := strconv.Atoi(port); err != nil {
			return nil, ErrInvalidNode(node)
		}

		addresses = append(addresses, fmt.Sprintf("%s://%s:%s", scheme, host, port))
	}

	if len(addresses) == 0 {
		return nil, ErrEmptyNodes
	}

	return addresses, nil
}

// formatIndexName applies the namespace prefix to a raw index/template name.
// Pure function of (namespace, indexName); every operation applies it exactly
// once before building a request.
func formatIndexName(namespace, indexName string) string {
	if namespace == "" {
		return indexName
	}
	return namespace + "_" + indexName
}
