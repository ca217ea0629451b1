package types

import "time"

// Entity carries bookkeeping timestamps for stored records. They are
// informational only and never participate in billing decisions.
type Entity struct {
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// NewEntity creates a new Entity stamped with t in UTC.
func NewEntity(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch sets UpdatedAt to t in UTC.
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC()
}
