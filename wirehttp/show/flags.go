package show

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/go-appsec/wirehttp/wirehttp/cliutil"
)

func Parse(args []string) error {
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	fs.SetInterspersed(true)

	var index int
	var asJSON, noColor bool

	fs.IntVarP(&index, "index", "n", 0, "print the full exchange at this 1-based position")
	fs.BoolVar(&asJSON, "json", false, "print exchanges as JSON")
	fs.BoolVar(&noColor, "no-color", false, "disable colored output")

	fs.Usage = func() {
		_, _ = fmt.Fprint(os.Stderr, `Usage: wirehttp show [options] <transcript>

List the exchanges recorded with 'wirehttp fetch --record'.

Examples:
  wirehttp show session.wht
  wirehttp show -n 2 session.wht
  wirehttp show --json session.wht

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	} else if len(fs.Args()) != 1 {
		fs.Usage()
		return errors.New("exactly one transcript path required")
	} else if index < 0 {
		return fmt.Errorf("invalid --index %d: must be positive", index)
	}

	if noColor {
		cliutil.SetColor(false)
	}
	return run(fs.Arg(0), index, asJSON, os.Stdout)
}
