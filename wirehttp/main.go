package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/go-appsec/wirehttp/wirehttp/cli"
	"github.com/go-appsec/wirehttp/wirehttp/client"
	"github.com/go-appsec/wirehttp/wirehttp/cliutil"
	"github.com/go-appsec/wirehttp/wirehttp/fetch"
	"github.com/go-appsec/wirehttp/wirehttp/show"
)

var validCommands = []string{"fetch", "show", "version", "help"}

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(args []string) int {
	if len(args) < 1 {
		printRootUsage()
		return 1
	}

	var err error
	switch args[0] {
	case "fetch":
		err = fetch.Parse(args[1:])
	case "show":
		err = show.Parse(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("wirehttp version %s\n", client.Version)
		return 0
	case "help", "--help", "-h":
		printRootUsage()
		return 0
	default:
		err = cli.UnknownCommandError(args[0], validCommands)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", cliutil.Error("Error:"), err)
		return 1
	}
	return 0
}

func printRootUsage() {
	fmt.Fprint(os.Stderr, `Usage: wirehttp <command> [options]

Commands:
  fetch      Send HTTPS requests over one persistent connection
  show       List or inspect a recorded transcript
  version    Print the version

Use "wirehttp <command> --help" for specific command usage.

Debug connection problems with: wirehttp fetch --log-level debug <url>
`)
}
