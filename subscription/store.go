package subscription

import "context"

// Store persists subscription records. Put replaces the whole record; there
// are no partial updates and no deletion.
type Store interface {
	// Create allocates the next dense ID, assigns it to s, and inserts s.
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID ID) (*Subscription, error)
	Put(ctx context.Context, s *Subscription) error
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
}

// ListOpts filters a List call. Zero values disable a filter.
type ListOpts struct {
	Status Status
	// DueBefore keeps only records whose next interval charge is at or
	// before this unix timestamp.
	DueBefore int64
	Limit     int
	Offset    int
}
