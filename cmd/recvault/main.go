// Command recvault is the operator CLI for the recording vault.
package main

import (
	"os"

	"github.com/recvault/recvault/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
