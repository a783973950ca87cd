package main

import (
	"errors"
	"fmt"
	"os"
)

// exitError carries the process exit code past cobra's error plumbing. A
// silent error has already been rendered, for example as a JSON payload, and
// must not be printed again.
type exitError struct {
	code    int
	message string
	silent  bool
}

func (e exitError) Error() string { return e.message }

func exitSilent(code int) error {
	return exitError{code: code, silent: true}
}

// exitCode renders err to stderr where needed and returns the process exit
// code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr exitError
	if errors.As(err, &exitErr) {
		if !exitErr.silent && exitErr.message != "" {
			fmt.Fprintln(os.Stderr, exitErr.message)
		}
		return exitErr.code
	}
	fmt.Fprintln(os.Stderr, err.Error())
	return 1
}
