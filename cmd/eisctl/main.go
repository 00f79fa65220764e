// Command eisctl drives an EIS instrument from the host: it queries and
// clears its status, starts and aborts measurements, and fetches sample
// data as CSV.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "eisctl: %v\n", err)
		os.Exit(1)
	}
}
