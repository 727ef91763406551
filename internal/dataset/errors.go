package dataset

import (
	"fmt"
	"strings"
)

// NetworkError reports a transport or decode failure while fetching one of
// the dataset endpoints. The corresponding readiness flag stays false; the
// load may be retried by calling the loader again.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IntegrityError reports that the checksum asserted by the manifest does not
// match the instance ids actually received. Kept distinct from NetworkError
// so operators can tell corruption from connectivity issues.
type IntegrityError struct {
	Claimed  string
	Computed string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("manifest checksum mismatch: server asserted %s, received data hashes to %s", e.Claimed, e.Computed)
}

// SkewError reports heuristic records keyed by instance ids absent from the
// manifest, under SkewFail.
type SkewError struct {
	IDs []string
}

func (e *SkewError) Error() string {
	return fmt.Sprintf("heuristics reference %d unknown instances: %s", len(e.IDs), strings.Join(e.IDs, ", "))
}
