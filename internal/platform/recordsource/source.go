// Package recordsource acquires the raw per-category record blob for one
// patient encounter. The core treats acquisition as a single synchronous
// read; the blob's format is stable for the lifetime of one request.
package recordsource

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound means the source has no record for the requested encounter.
var ErrNotFound = errors.New("patient record not found")

// Source supplies the raw record blob for an encounter.
type Source interface {
	Fetch(ctx context.Context, cpmrn string, encounter int) (json.RawMessage, error)
}
