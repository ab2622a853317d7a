package model

import "errors"

// Domain error taxonomy. The storage layer classifies driver errors into
// these; the API layer maps them onto HTTP status codes.
var (
	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict: an entity with the same qualified name already exists
	// with a different definition. Exactly one concurrent creator wins;
	// the database's unique constraint decides which.
	ErrConflict = errors.New("entity already exists")

	// ErrDangling: a definition references an entity that does not exist.
	ErrDangling = errors.New("dangling entity reference")

	// ErrCycle: the requested edges would make the lineage graph cyclic.
	ErrCycle = errors.New("lineage cycle detected")

	// ErrHasDependents: the entity cannot be deleted while downstream
	// entities depend on it.
	ErrHasDependents = errors.New("entity has dependent entities")

	// ErrDenied: the principal lacks the required access.
	ErrDenied = errors.New("access denied")

	// ErrInvalid: the request payload is malformed or incomplete.
	ErrInvalid = errors.New("invalid definition")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
