package settings

import "context"

// Store persists the settings record.
type Store interface {
	// Get returns the record, or an error matching subvault.ErrNotInitialized.
	Get(ctx context.Context) (*Settings, error)
	// Create inserts the record once; a second call fails with an error
	// matching subvault.ErrAlreadyInitialized.
	Create(ctx context.Context, s *Settings) error
	Put(ctx context.Context, s *Settings) error
}
