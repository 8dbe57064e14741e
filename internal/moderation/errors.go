package moderation

import "errors"

var (
	// ErrNotFound covers both "absent" and "not visible to this caller";
	// the two are deliberately indistinguishable so private data does not
	// leak its existence.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is known but the action needs a role
	// they do not hold.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict marks operations that found their work already done.
	// Callers treat it as success where idempotence is the contract.
	ErrConflict = errors.New("conflict")
)
