// Command unzipbot extracts ZIP archives safely and serves them over a chat bot.
package main

import (
	"os"

	"github.com/meigma/unzipbot/cmd/unzipbot/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
