package config

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrLogOutputRequired is returned when logging to a file without a path.
var ErrLogOutputRequired = errors.New("you must specify a log output")

type invalidLogFormatError struct {
	format string
}

func (e invalidLogFormatError) Error() string {
	return fmt.Sprintf("logger format %s is invalid", e.format)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
