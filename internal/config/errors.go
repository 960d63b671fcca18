package config

import (
	"fmt"
	"strconv"
)

// KeyError names the configuration key that failed to parse.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

type errUnsupportedDriver string

func (e errUnsupportedDriver) Error() string {
	return "unsupported driver " + strconv.Quote(string(e)) + ", want postgres or sqlite"
}
