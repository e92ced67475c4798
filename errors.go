package norm

import (
	"errors"
	"fmt"

	"github.com/dusk-indust/norm/convert"
	"github.com/dusk-indust/norm/cypher"
	"github.com/dusk-indust/norm/schema"
)

// Aliases for the typed errors raised by the subpackages, so the whole
// taxonomy is importable from one place. See the IsXxx helpers in each
// package for classification.
type (
	// ConfigError reports invalid entity metadata. See schema.ConfigError.
	ConfigError = schema.ConfigError
	// RelationshipError reports invalid relationship metadata or an
	// unresolvable target. See schema.RelationshipError.
	RelationshipError = schema.RelationshipError
	// ConversionError reports a value the conversion registry cannot map.
	// See convert.Error.
	ConversionError = convert.Error
	// DerivationError reports an unparseable derived method name. See
	// cypher.DerivationError.
	DerivationError = cypher.DerivationError
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("norm: entity not found")

// NotFoundError reports a missing entity, carrying the entity name and the
// identity that was searched for.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("norm: %s not found (id=%v)", e.Entity, e.ID)
}

// Is reports whether the target matches ErrNotFound, so
// errors.Is(err, ErrNotFound) works on typed not-found errors.
func (e *NotFoundError) Is(err error) bool { return err == ErrNotFound }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UnsavedReferenceError reports a non-cascaded relationship pointing at an
// instance that has no identity yet. The save is aborted before any write
// executes.
type UnsavedReferenceError struct {
	Entity string
	Field  string
	Target string
}

func (e *UnsavedReferenceError) Error() string {
	return fmt.Sprintf("norm: %s.%s references an unsaved %s; save the target first or mark the relationship cascading",
		e.Entity, e.Field, e.Target)
}

// IsUnsavedReference reports whether err is an unsaved-reference error.
func IsUnsavedReference(err error) bool {
	var e *UnsavedReferenceError
	return errors.As(err, &e)
}

// RequiredPropertyError reports a required property holding its zero value
// at save time.
type RequiredPropertyError struct {
	Entity string
	Field  string
}

func (e *RequiredPropertyError) Error() string {
	return fmt.Sprintf("norm: %s.%s: required property is unset", e.Entity, e.Field)
}

// IsRequiredProperty reports whether err is a required-property error.
func IsRequiredProperty(err error) bool {
	var e *RequiredPropertyError
	return errors.As(err, &e)
}
