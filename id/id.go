// Package id defines TypeID-based identifiers for the records subvault
// generates on its own: emitted events and batch charge runs.
//
// Subscriptions keep their dense integer ids; TypeIDs are used where a
// globally unique, K-sortable key is needed, for example to deduplicate
// events downstream or to correlate every item of one batch run.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the kind of record encoded in a TypeID.
type Prefix string

const (
	PrefixEvent Prefix = "evt"   // Emitted vault event
	PrefixBatch Prefix = "batch" // Batch charge run
)

// ID wraps a TypeID in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// EventID identifies one emitted event (prefix: "evt").
type EventID = ID

// BatchID identifies one BatchCharge run (prefix: "batch").
type BatchID = ID

// New generates a new ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// NewEventID generates a new event ID.
func NewEventID() EventID { return New(PrefixEvent) }

// NewBatchID generates a new batch run ID.
func NewBatchID() BatchID { return New(PrefixBatch) }

// Parse parses any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires the given prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// ParseEventID parses s and requires the "evt" prefix.
func ParseEventID(s string) (EventID, error) { return ParseWithPrefix(s, PrefixEvent) }

// ParseBatchID parses s and requires the "batch" prefix.
func ParseBatchID(s string) (BatchID, error) { return ParseWithPrefix(s, PrefixBatch) }

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
