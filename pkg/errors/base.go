package errors

import (
	"fmt"
	"strings"
)

// Error aggregates multiple errors and free-form messages into one value.
// Cascade operations (session deletion, engine shutdown) use it to report
// every failure instead of just the first.
type Error struct {
	Errs []error
	Msgs []any
}

func NewError(errs ...any) error {
	err := &Error{}

	for _, msg := range errs {
		switch v := msg.(type) {
		case error:
			err.Errs = append(err.Errs, v)
		case string:
			err.Msgs = append(err.Msgs, v)
		}
	}

	return err
}

// HasErrors reports whether any real error was collected.
func (err *Error) HasErrors() bool {
	return len(err.Errs) > 0
}

func (err *Error) Error() string {
	builder := &strings.Builder{}

	for _, err := range err.Errs {
		builder.WriteString(err.Error())
		builder.WriteString("\n")
	}

	for _, msg := range err.Msgs {
		builder.WriteString(fmt.Sprintf("%v\n", msg))
	}

	return builder.String()
}
