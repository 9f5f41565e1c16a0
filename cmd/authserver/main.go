// Command authserver runs the OAuth 2.1 authorization server in front of an MCP endpoint.
package main

import (
	"os"
)

// version can be set during build with -ldflags
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
