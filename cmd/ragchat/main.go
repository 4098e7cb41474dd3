// Command ragchat is the client for a ragchat server.
package main

import (
	"os"

	"github.com/ubaidzafar05/Rag-github/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
