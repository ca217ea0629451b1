package subvault

import "github.com/xraph/subvault/id"

// ID is the identifier type for events and batch runs.
type ID = id.ID

// Prefix identifies the record kind encoded in a TypeID.
type Prefix = id.Prefix
