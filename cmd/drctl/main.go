// Command drctl checks recovery plan files offline: it validates them,
// prints their execution groups and renders their dependency graphs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
