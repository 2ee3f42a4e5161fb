package symbolic

import "github.com/xkilldash9x/actiongate/api/schemas"

// PageState is the read-only page snapshot predicates are evaluated against.
// Implementations must be safe for concurrent reads.
type PageState interface {
	ElementExists(id string) (bool, error)
	ElementVisible(id string) (bool, error)
	ElementEnabled(id string) (bool, error)
	ElementText(id string) (string, error)
	CurrentURL() string
}

// ElementCounter is implemented by page states that can count elements
// sharing an id. States without it are treated as holding at most one.
type ElementCounter interface {
	ElementCount(id string) (int, error)
}

var (
	_ PageState      = (*schemas.Snapshot)(nil)
	_ ElementCounter = (*schemas.Snapshot)(nil)
)
