package schema

import (
	"errors"
	"fmt"
)

// ConfigError reports a bad entity, property, or identity declaration. It is
// raised lazily at first use of the entity type, is fatal, and is never
// retryable.
type ConfigError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema: entity %s: field %s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema: entity %s: %s", e.Entity, e.Reason)
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// RelationshipError reports an unresolvable target type or an illegal
// direction/cascade combination. It is raised at first resolution of the
// relationship, not at declaration.
type RelationshipError struct {
	Entity string
	Field  string
	Reason string
}

func (e *RelationshipError) Error() string {
	return fmt.Sprintf("schema: entity %s: relationship %s: %s", e.Entity, e.Field, e.Reason)
}

// IsRelationship reports whether err is a relationship configuration error.
func IsRelationship(err error) bool {
	var e *RelationshipError
	return errors.As(err, &e)
}
