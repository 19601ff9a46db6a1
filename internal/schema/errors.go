package schema

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaNotFoundError reports a schema whose catalog lists no tables.
type SchemaNotFoundError struct {
	Schema string
}

func (e *SchemaNotFoundError) Error() string {
	if e.Schema == "" {
		return "default schema not found or has no tables"
	}
	return fmt.Sprintf("schema %q not found or has no tables", e.Schema)
}

type TableNotFoundError struct {
	Schema string
	Table  string
}

func (e *TableNotFoundError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("table %q not found", e.Table)
	}
	return fmt.Sprintf("table %q not found in schema %q", e.Table, e.Schema)
}

// IncompleteSchemaError lists the tables left out of an extraction because
// their catalog queries failed.
type IncompleteSchemaError struct {
	Skipped []string
	Errs    []error
}

func (e *IncompleteSchemaError) Error() string {
	return fmt.Sprintf("skipped %d table(s) with unreadable metadata (%s): %v",
		len(e.Skipped), strings.Join(e.Skipped, ", "), errors.Join(e.Errs...))
}

func (e *IncompleteSchemaError) Unwrap() []error {
	return e.Errs
}
