package client

import "fmt"

// BindError reports a path placeholder with no matching call argument. It is
// raised before any network I/O, so the caller can correct the arguments and
// retry.
type BindError struct {
	Operation string
	Param     string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("operation %s: missing path parameter %q", e.Operation, e.Param)
}
