package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bengal-ssg/bengal/internal/builderr"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes: 0 success, 1 generic failure, 2 config error, 3 rendering
// error count exceeded the strict threshold.
const (
	exitGeneric = 1
	exitConfig  = 2
	exitRender  = 3
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var be *builderr.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case builderr.KindConfig:
			return exitConfig
		case builderr.KindRendering, builderr.KindTemplate:
			return exitRender
		}
	}
	return exitGeneric
}
