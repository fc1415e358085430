// Package main provides the arcstore CLI, a command-line view over the
// request store of the REST client.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

func main() {
	err := rootCmd.Execute()
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps err to the process exit status. Bad input and missing
// entities are user errors; everything else is a system error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrInvalidData),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrConstraint),
		errors.Is(err, types.ErrBackendEmpty),
		errors.Is(err, types.ErrBackendUnknown),
		errors.Is(err, types.ErrLogLevel),
		errors.Is(err, errUsage):
		return exitUserError
	default:
		return exitSysError
	}
}
