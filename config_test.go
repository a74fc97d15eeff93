package esclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClusterNodes(t *testing.T) {
	tests := []struct {
		name     string
		nodes    string
		expected []string
		wantErr  bool
	}{
		{
			name:     "single node",
			nodes:    "localhost:9200",
			expected: []string{"http://localhost:9200"},
		},
		{
			name:     "multiple nodes",
			nodes:    "es-1:9200,es-2:9201",
			expected: []string{"http://es-1:9200", "http://es-2:9201"},
		},
		{
			name:     "nodes with surrounding spaces",
			nodes:    " es-1:9200 , es-2:9200 ",
			expected: []string{"http://es-1:9200", "http://es-2:9200"},
		},
		{
			name:    "missing port",
			nodes:   "host1",
			wantErr: true,
		},
		{
			name:    "non-numeric port",
			nodes:   "host1:abc",
			wantErr: true,
		},
		{
			name:    "empty port",
			nodes:   "host1:",
			wantErr: true,
		},
		{
			name:    "one bad entry fails the whole list",
			nodes:   "es-1:9200,host2",
			wantErr: true,
		},
		{
			name:    "empty list",
			nodes:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addresses, err := parseClusterNodes(tt.nodes, "http")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, addresses)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Nodes: "localhost:9200"}
	require.NoError(t, cfg.Validate())

	cfg = Config{Nodes: "localhost:9200", Version: 9}
	require.NoError(t, cfg.Validate())

	cfg = Config{Nodes: "localhost:9200", Version: 7}
	assert.Error(t, cfg.Validate())

	cfg = Config{Nodes: ""}
	assert.ErrorIs(t, cfg.Validate(), ErrEmptyNodes)

	cfg = Config{Nodes: "localhost"}
	assert.Error(t, cfg.Validate())
}

func TestConfigHasCredentials(t *testing.T) {
	cfg := Config{Username: "elastic", Password: "changeme"}
	assert.True(t, cfg.hasCredentials())

	cfg = Config{Username: "elastic"}
	assert.False(t, cfg.hasCredentials())

	cfg = Config{Password: "changeme"}
	assert.False(t, cfg.hasCredentials())

	cfg = Config{}
	assert.False(t, cfg.hasCredentials())
}

func TestFormatIndexName(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		indexName string
		expected  string
	}{
		{
			name:      "with namespace",
			namespace: "prod",
			indexName: "segment",
			expected:  "prod_segment",
		},
		{
			name:      "empty namespace",
			namespace: "",
			indexName: "segment",
			expected:  "segment",
		},
		{
			name:      "namespace with underscore",
			namespace: "team_a",
			indexName: "metrics",
			expected:  "team_a_metrics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatIndexName(tt.namespace, tt.indexName))
		})
	}
}
