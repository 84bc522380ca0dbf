// Command meshctl drives a local model mesh from the shell: discover the
// served catalog, route or run agent tasks, query stored answers, and serve
// the mesh over HTTP with Prometheus metrics.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "meshctl:", err)
		os.Exit(1)
	}
}
