// Provides common mud error definitions.
package muderrors

import "errors"

var (
	ErrUnknownAttribute = errors.New("mud: unknown attribute")
	ErrFactNotFound     = errors.New("mud: unknown fact")

	ErrUniqueConstraintViolation = errors.New("mud: unique constraint violation")
	ErrSchemaClassChange         = errors.New("mud: update would change cardinality or uniqueness class")
	ErrSchemaVersionMismatch     = errors.New("mud: schema version mismatch")

	ErrSpaceUnknown = errors.New("mud: unknown space")
	ErrNotMember    = errors.New("mud: user is not a member")
	ErrBadToken     = errors.New("mud: invalid session token")
	ErrClosed       = errors.New("mud: store is closed")
)
