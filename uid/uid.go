package uid

import "context"

// UID generates identifiers that are unique for the lifetime of the generator's backing store.
type UID interface {
	New(ctx context.Context) (string, error)
}
