// Command dhtrecords runs and administers one record partition.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dhtrecords/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
