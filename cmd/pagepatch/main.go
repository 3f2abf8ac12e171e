// Command pagepatch serves live-patched pages and their browser previews.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/pagepatch/cmd/pagepatch/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
