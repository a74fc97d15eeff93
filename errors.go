package esclient

import "fmt"

// Configuration and lifecycle errors
var (
	ErrEmptyNodes       = fmt.Errorf("cluster nodes list is empty")
	ErrNotConnected     = fmt.Errorf("client is not connected, call Connect first")
	ErrConnectionFailed = fmt.Errorf("elasticsearch connection failed")
	ErrVersionConflict  = fmt.Errorf("document version conflict")
	ErrProcessorClosed  = fmt.Errorf("bulk processor is closed")
)

// ErrInvalidNode returns error for a cluster node entry without a valid
// host:port form.
func ErrInvalidNode(node string) error {
	return fmt.Errorf("cluster node %q is invalid (must be host:port with a numeric port)", node)
}

// ErrInvalidESVersion returns error for unsupported ES version.
func ErrInvalidESVersion(version int) error {
	return fmt.Errorf("invalid ES version %d (must be 8 or 9)", version)
}

// StatusError reports an HTTP status outside the set an operation handles.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("elasticsearch returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s returned status code %d", e.Op, e.StatusCode)
}
