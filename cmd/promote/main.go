// Command promote runs the data-promotion workflow: the HTTP API, config
// validation and request management from the shell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/felixgeelhaar/promote/interfaces/cli"
)

func main() {
	if err := cli.New().Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "promote:", err)
		os.Exit(1)
	}
}
