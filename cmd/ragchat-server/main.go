// Command ragchat-server runs the ragchat server.
package main

import (
	"os"

	"github.com/ubaidzafar05/Rag-github/internal/cli"
)

func main() {
	if err := cli.ExecuteServer(); err != nil {
		os.Exit(1)
	}
}
