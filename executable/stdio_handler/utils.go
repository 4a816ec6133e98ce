package stdio_handler

import (
	"errors"
	"io"
	"os"
	"reflect"
)

func isNilCloser(c io.Closer) bool {
	if c == nil {
		return true
	}

	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// closeIfOpen closes c, treating "already closed" as success.
func closeIfOpen(c io.Closer) error {
	err := c.Close()

	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}

	return nil
}

// closeEach makes a best effort to close every non-nil closer, carrying on
// past failures. The first error is returned.
func closeEach(closers ...io.Closer) error {
	var firstError error

	for _, c := range closers {
		if isNilCloser(c) {
			continue
		}

		if err := closeIfOpen(c); err != nil && firstError == nil {
			firstError = err
		}
	}

	return firstError
}
