// Command pathguard detects and sanitizes path traversal attempts.
package main

import (
	"os"

	"github.com/dshills/pathguard/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
