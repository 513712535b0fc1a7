// Command authclient is a terminal front end for the authclient package. It
// keeps the session in a YAML file (or Redis) between invocations, so
// "login" followed by "request" behaves like a browser tab would.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
