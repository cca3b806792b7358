// Command permcache serves permission checks from a Redis cache and keeps
// the cache consistent by consuming permission-change events.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
